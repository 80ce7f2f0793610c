// Package server exposes the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/spigell/resume-agent/internal/auth"
	"github.com/spigell/resume-agent/internal/billing"
	"github.com/spigell/resume-agent/internal/evaluation"
	"github.com/spigell/resume-agent/internal/interview"
	"github.com/spigell/resume-agent/internal/report"
	"github.com/spigell/resume-agent/internal/store"
)

const (
	defaultListen         = ":8000"
	defaultMaxUploadBytes = 10 << 20
	defaultShutdown       = 15 * time.Second
	defaultPresignTTL     = time.Hour
)

// Config holds the HTTP settings.
type Config struct {
	Listen          string        `mapstructure:"listen"`
	ReadTimeout     time.Duration `mapstructure:"read-timeout"`
	WriteTimeout    time.Duration `mapstructure:"write-timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
	// RateLimit is the sustained request rate allowed per client IP; zero disables limiting.
	RateLimit      float64       `mapstructure:"rate-limit"`
	RateBurst      int           `mapstructure:"rate-burst"`
	CORSOrigins    []string      `mapstructure:"cors-origins"`
	MaxUploadBytes int64         `mapstructure:"max-upload-bytes"`
	PresignTTL     time.Duration `mapstructure:"presign-ttl"`
	FrontendURL    string        `mapstructure:"frontend-url"`
}

// ObjectStore keeps uploaded files.
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	BucketExists(ctx context.Context) (bool, error)
}

// Deps are the collaborators behind the routes. Store, Objects and Issuer
// may be nil; the routes needing them then answer 501.
type Deps struct {
	Interview *interview.Service
	Registry  *interview.Registry
	Pipeline  *evaluation.Pipeline
	Store     *store.Store
	Objects   ObjectStore
	Issuer    *auth.Issuer
	OAuth     auth.Providers
	Billing   *billing.Service
	Recorder  *report.Recorder
	Model     string
	Version   string
	Logger    *zap.Logger
}

// Server is the HTTP API.
type Server struct {
	cfg     Config
	deps    Deps
	logger  *zap.Logger
	router  chi.Router
	limiter *ipLimiter
	started time.Time
}

// New validates deps and builds the router.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Interview == nil || deps.Pipeline == nil {
		return nil, errors.New("interview service and evaluation pipeline are required")
	}
	if deps.Registry == nil {
		return nil, errors.New("session registry is required")
	}
	if deps.Billing == nil {
		deps.Billing = billing.NewService(nil, nil, deps.Logger)
	}
	if deps.Recorder == nil {
		deps.Recorder = report.NewRecorder(0)
	}
	if deps.OAuth == nil {
		deps.OAuth = auth.Providers{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Listen == "" {
		cfg.Listen = defaultListen
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdown
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = defaultPresignTTL
	}
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "http://localhost:3000"
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		logger:  deps.Logger,
		started: time.Now(),
	}
	if cfg.RateLimit > 0 {
		s.limiter = newIPLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)
	r.Use(s.cors)
	if s.limiter != nil {
		r.Use(s.rateLimit)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "route not found", Code: "NOT_FOUND"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed", Code: "METHOD_NOT_ALLOWED"})
	})

	r.Route("/health", func(r chi.Router) {
		r.Get("/", s.handleHealth)
		r.Get("/live", s.handleLive)
		r.Get("/ready", s.handleReady)
		r.Get("/detailed", s.handleHealthDetailed)
	})

	r.Route("/interview", func(r chi.Router) {
		r.Post("/session/create", s.handleCreateSession)
		r.Get("/session/{id}", s.handleGetSession)
		r.Post("/session/{id}/next_question", s.handleNextQuestion)
		r.Post("/session/{id}/submit_answer", s.handleSubmitAnswer)
		r.Post("/evaluate", s.handleEvaluate)
		r.Post("/transcribe", s.handleTranscribe)
	})

	r.Post("/ats/score", s.handleATSScore)
	r.Post("/job/parse", s.handleJobParse)

	r.Route("/templates", func(r chi.Router) {
		r.Get("/", s.handleListTemplates)
		r.Get("/{id}", s.handleGetTemplate)
		r.Post("/generate", s.handleGenerateTemplate)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/oauth/{provider}", s.handleOAuthStart)
		r.Get("/oauth/{provider}/callback", s.handleOAuthCallback)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Get("/plans", s.handlePlans)
		r.Post("/create-checkout-session", s.handleCreateCheckout)
		r.Post("/retrieve-session", s.handleRetrieveCheckout)
		r.Post("/webhook", s.handleWebhook)
		r.With(s.authenticated).Post("/manage-subscription", s.handleManageSubscription)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticated)

		r.Get("/user/me", s.handleMe)
		r.Get("/user/subscription", s.handleSubscription)

		r.Post("/resume/upload", s.handleResumeUpload)
		r.Get("/resume/", s.handleListResumes)
		r.Get("/resume/{id}", s.handleGetResume)
		r.Get("/resume/{id}/download", s.handleDownloadResume)
		r.Post("/resume/rewrite", s.handleRewrite)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Get("/users", s.handleAdminUsers)
			r.Get("/metrics", s.handleAdminMetrics)
			r.Get("/metrics/export", s.handleAdminExport)
		})
	})

	return r
}

// Run serves until ctx is done and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		// Requests keep ctx values but outlive its cancellation so Shutdown can drain them.
		BaseContext: func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
