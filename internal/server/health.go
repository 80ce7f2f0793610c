package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	serviceName        = "resume-agent"
	healthCheckTimeout = 3 * time.Second

	checkOK          = "ok"
	checkDisabled    = "not configured"
	checkUnavailable = "unavailable"
)

type healthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service,omitempty"`
	Version   string            `json:"version,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	Details   map[string]any    `json:"details,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Service:   serviceName,
		Version:   s.deps.Version,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "alive", Timestamp: time.Now().UTC()})
}

// handleReady fails when a configured dependency is unreachable. Dependencies
// that are not configured do not block readiness.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := s.checkDependencies(r.Context())

	resp := healthResponse{Status: "ready", Timestamp: time.Now().UTC(), Checks: checks}
	status := http.StatusOK
	for _, v := range checks {
		if v == checkUnavailable {
			resp.Status = "not ready"
			status = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	checks := s.checkDependencies(r.Context())
	checks["payments"] = checkDisabled
	if s.deps.Billing.Enabled() {
		checks["payments"] = checkOK
	}
	checks["oauth"] = checkDisabled
	if len(s.deps.OAuth) > 0 {
		checks["oauth"] = checkOK
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Service:   serviceName,
		Version:   s.deps.Version,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
		Details: map[string]any{
			"uptime_seconds":  int64(time.Since(s.started).Seconds()),
			"active_sessions": s.deps.Registry.Len(),
			"question_source": s.deps.Interview.Source(),
			"model":           s.deps.Model,
			"oauth_providers": s.deps.OAuth.Names(),
		},
	})
}

func (s *Server) checkDependencies(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"database": checkDisabled, "storage": checkDisabled}
	if s.deps.Store != nil {
		checks["database"] = checkOK
		if err := s.deps.Store.Ping(ctx); err != nil {
			s.logger.Warn("database health check failed", zap.Error(err))
			checks["database"] = checkUnavailable
		}
	}
	if s.deps.Objects != nil {
		checks["storage"] = checkOK
		if ok, err := s.deps.Objects.BucketExists(ctx); err != nil || !ok {
			s.logger.Warn("storage health check failed", zap.Bool("bucket_exists", ok), zap.Error(err))
			checks["storage"] = checkUnavailable
		}
	}
	return checks
}
