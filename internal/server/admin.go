package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/resume-agent/internal/apperr"
	"github.com/spigell/resume-agent/internal/report"
	"github.com/spigell/resume-agent/internal/store"
)

const (
	defaultPageSize = 50
	exportUserLimit = 500
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type usersResponse struct {
	Users  []store.User `json:"users"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

type metricsResponse struct {
	report.Snapshot
	TotalUsers     int    `json:"total_users"`
	ActiveSessions int    `json:"active_sessions"`
	QuestionSource string `json:"question_source"`
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	users, err := s.deps.Store.ListUsers(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	total, err := s.deps.Store.CountUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usersResponse{Users: users, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleAdminMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Recorder.Snapshot()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("metrics snapshot: %w", err))
		return
	}
	total, err := s.deps.Store.CountUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metricsResponse{
		Snapshot:       snap,
		TotalUsers:     total,
		ActiveSessions: s.deps.Registry.Len(),
		QuestionSource: s.deps.Interview.Source(),
	})
}

func (s *Server) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Recorder.Snapshot()
	if err != nil {
		s.writeError(w, r, fmt.Errorf("metrics snapshot: %w", err))
		return
	}
	users, err := s.deps.Store.ListUsers(r.Context(), exportUserLimit, 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	name := fmt.Sprintf("resume-agent-metrics-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := report.ExportXLSX(w, snap, users); err != nil {
		s.log(r).Error("export metrics workbook", zap.Error(err))
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation("%s must be a non-negative integer", key)
	}
	return n, nil
}
