package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/resume-agent/internal/ai"
	"github.com/spigell/resume-agent/internal/ai/gemini"
	"github.com/spigell/resume-agent/internal/ai/vertex"
	"github.com/spigell/resume-agent/internal/auth"
	"github.com/spigell/resume-agent/internal/billing"
	"github.com/spigell/resume-agent/internal/evaluation"
	"github.com/spigell/resume-agent/internal/interview"
	"github.com/spigell/resume-agent/internal/report"
	"github.com/spigell/resume-agent/internal/secrets"
	"github.com/spigell/resume-agent/internal/storage"
	"github.com/spigell/resume-agent/internal/store"
)

const providerDisabled = "disabled"

// models holds the configured model clients and how to release them.
type models struct {
	gen   ai.Generator
	stt   ai.Transcriber
	close func() error
}

func newModels(ctx context.Context, cfg AIConfig, log *zap.Logger) (*models, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	nop := func() error { return nil }

	switch provider {
	case "", gemini.Provider:
		if cfg.Gemini == nil {
			return nil, errors.New("gemini configuration is required for the gemini provider")
		}
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.Gemini.APIKey,
			File:  cfg.Gemini.APIKeyFile,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
		}
		gen, err := gemini.NewGenerator(ctx, gemini.Config{
			APIKey:       apiKey,
			Model:        cfg.Gemini.Model,
			MaxAttempts:  cfg.Gemini.MaxAttempts,
			MaxLogLength: cfg.Gemini.MaxLogLength,
		}, log)
		if err != nil {
			return nil, err
		}
		return &models{gen: gen, stt: gen, close: nop}, nil

	case vertex.Provider:
		if cfg.Vertex == nil {
			return nil, errors.New("vertex configuration is required for the vertexai provider")
		}
		gen, err := vertex.NewGenerator(ctx, vertex.Config{
			Project:  cfg.Vertex.Project,
			Location: cfg.Vertex.Location,
			Model:    cfg.Vertex.Model,
		}, log)
		if err != nil {
			return nil, err
		}
		// Vertex has no audio transcription here; transcribe answers 503.
		return &models{gen: gen, stt: ai.Disabled{}, close: gen.Close}, nil

	case providerDisabled:
		log.Warn("language model disabled, scoring and generation will fail")
		return &models{gen: ai.Disabled{}, stt: ai.Disabled{}, close: nop}, nil

	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}

func loadPrompts(cfg EvaluationConfig) (evaluation.Catalog, error) {
	catalog, err := evaluation.DefaultCatalog()
	if err != nil {
		return nil, err
	}
	if cfg.PromptsFile == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(cfg.PromptsFile)
	if err != nil {
		return nil, fmt.Errorf("reading prompts file: %w", err)
	}
	override, err := evaluation.ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("parsing prompts file %s: %w", cfg.PromptsFile, err)
	}
	return catalog.Merge(override), nil
}

// core is the part of the application shared by the server and the cli
// commands: model clients, evaluation pipeline and interview service.
type core struct {
	models    *models
	recorder  *report.Recorder
	pipeline  *evaluation.Pipeline
	registry  *interview.Registry
	interview *interview.Service
}

func newCore(ctx context.Context, cfg *Config, log *zap.Logger) (*core, error) {
	m, err := newModels(ctx, cfg.AI, log)
	if err != nil {
		return nil, fmt.Errorf("building model clients: %w", err)
	}
	prompts, err := loadPrompts(cfg.Evaluation)
	if err != nil {
		m.close()
		return nil, err
	}
	bank, err := interview.DefaultBank()
	if err != nil {
		m.close()
		return nil, err
	}

	recorder := report.NewRecorder(cfg.Report.SampleSize)
	pipeline := evaluation.New(m.gen, m.stt, prompts, cfg.Evaluation.Config, log.Named("evaluation")).
		WithObserver(recorder)
	registry := interview.NewRegistry(cfg.Interview.Registry, log.Named("interview"))

	svc, err := interview.NewService(registry, pipeline, bank, cfg.Interview.QuestionSource, recorder, log.Named("interview"))
	if err != nil {
		m.close()
		return nil, err
	}

	return &core{
		models:    m,
		recorder:  recorder,
		pipeline:  pipeline,
		registry:  registry,
		interview: svc,
	}, nil
}

func (c *core) Close() error {
	c.registry.Close()
	return c.models.close()
}

func openStore(ctx context.Context, cfg store.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// newIssuer returns nil when no signing secret is configured; account routes
// then answer 501.
func newIssuer(cfg AuthConfig, log *zap.Logger) (*auth.Issuer, error) {
	secret, err := secrets.Optional(secrets.Source{
		Name:  "token signing secret",
		Value: cfg.Secret,
		File:  cfg.SecretFile,
		Env:   "JWT_SECRET",
	})
	if err != nil {
		return nil, err
	}
	if secret == "" {
		log.Warn("auth.secret is not set, account routes are disabled")
		return nil, nil
	}
	return auth.NewIssuer(auth.TokenConfig{
		Secret:     secret,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
}

// newObjectStore returns nil when no endpoint is configured.
func newObjectStore(ctx context.Context, cfg StorageConfig, log *zap.Logger) (*storage.Store, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		log.Warn("storage.endpoint is not set, resume uploads are disabled")
		return nil, nil
	}
	secret, err := secrets.Optional(secrets.Source{
		Name:  "object store secret key",
		Value: cfg.SecretKey,
		File:  cfg.SecretKeyFile,
	})
	if err != nil {
		return nil, err
	}
	cfg.Config.SecretKey = secret

	objects, err := storage.New(cfg.Config, log.Named("storage"))
	if err != nil {
		return nil, err
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		// The bucket may become reachable later; readiness reports it.
		log.Warn("object store bucket is not ready", zap.Error(err))
	}
	return objects, nil
}

// newPayments returns a service without a provider when no api key is set.
func newPayments(cfg PaymentsConfig, frontendURL string, db *store.Store, log *zap.Logger) (*billing.Service, error) {
	apiKey, err := secrets.Optional(secrets.Source{
		Name:  "stripe api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
		Env:   "STRIPE_SECRET_KEY",
	})
	if err != nil {
		return nil, err
	}
	if apiKey == "" || db == nil {
		log.Warn("payments are not configured")
		return billing.NewService(nil, nil, log.Named("billing")), nil
	}

	webhookSecret, err := secrets.Optional(secrets.Source{
		Name:  "stripe webhook secret",
		Value: cfg.WebhookSecret,
		File:  cfg.WebhookSecretFile,
		Env:   "STRIPE_WEBHOOK_SECRET",
	})
	if err != nil {
		return nil, err
	}

	provider, err := billing.NewStripe(billing.StripeConfig{
		APIKey:        apiKey,
		WebhookSecret: webhookSecret,
		FrontendURL:   frontendURL,
	}, nil)
	if err != nil {
		return nil, err
	}
	return billing.NewService(provider, db, log.Named("billing")), nil
}
