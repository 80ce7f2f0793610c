package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/resume-agent/internal/ai"
	"github.com/spigell/resume-agent/internal/evaluation"
	"github.com/spigell/resume-agent/internal/logger"
)

func TestNewModelsDisabled(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	m, err := newModels(context.Background(), AIConfig{Provider: "Disabled"}, zap.New(core))
	if err != nil {
		t.Fatalf("newModels: %v", err)
	}
	if _, ok := m.gen.(ai.Disabled); !ok {
		t.Fatalf("expected disabled generator, got %T", m.gen)
	}
	if logs.FilterMessage("language model disabled, scoring and generation will fail").Len() != 1 {
		t.Fatalf("expected a warning about the disabled model")
	}
}

func TestNewModelsGeminiTagsProviderOnce(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	m, err := newModels(context.Background(), AIConfig{
		Provider: "gemini",
		Gemini:   &GeminiConfig{APIKey: "test-key", Model: "gemini-test"},
	}, zap.New(core))
	if err != nil {
		t.Fatalf("newModels: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = m.stt.Transcribe(ctx, []byte("audio"), "audio/wav")

	entries := logs.FilterMessage("gemini transcribe request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one transcribe log entry, got %d", len(entries))
	}
	var providers int
	for _, f := range entries[0].Context {
		if f.Key == logger.FieldProvider {
			providers++
		}
	}
	if providers != 1 {
		t.Fatalf("expected %s once, got %d", logger.FieldProvider, providers)
	}
}

func TestNewModelsRejectsBadConfig(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	tests := []struct {
		name string
		cfg  AIConfig
		want string
	}{
		{name: "unknown provider", cfg: AIConfig{Provider: "openai"}, want: "unsupported ai provider"},
		{name: "gemini without section", cfg: AIConfig{Provider: "gemini"}, want: "gemini configuration is required"},
		{name: "gemini without key", cfg: AIConfig{Provider: "gemini", Gemini: &GeminiConfig{}}, want: "gemini api key"},
		{name: "vertex without section", cfg: AIConfig{Provider: "vertexai"}, want: "vertex configuration is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newModels(context.Background(), tt.cfg, zap.NewNop())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadPromptsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	override := `
ats:
  version: v2
  template: "Score {{resume}} against {{job}}"
  max_output_tokens: 512
`
	if err := os.WriteFile(path, []byte(override), 0o600); err != nil {
		t.Fatalf("write prompts: %v", err)
	}

	catalog, err := loadPrompts(EvaluationConfig{PromptsFile: path})
	if err != nil {
		t.Fatalf("loadPrompts: %v", err)
	}
	if got := catalog[evaluation.PromptATS].Version; got != "v2" {
		t.Fatalf("expected overridden ats prompt, got version %q", got)
	}
	if _, ok := catalog[evaluation.PromptRewrite]; !ok {
		t.Fatalf("built-in prompts must survive an override")
	}

	if _, err := loadPrompts(EvaluationConfig{PromptsFile: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Fatalf("expected an error for a missing prompts file")
	}
}

func TestNewIssuerOptional(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	issuer, err := newIssuer(AuthConfig{}, zap.NewNop())
	if err != nil || issuer != nil {
		t.Fatalf("expected no issuer without a secret, got %v, %v", issuer, err)
	}

	issuer, err = newIssuer(AuthConfig{Secret: "a-long-enough-signing-secret"}, zap.NewNop())
	if err != nil || issuer == nil {
		t.Fatalf("expected an issuer, got %v", err)
	}

	if _, err := newIssuer(AuthConfig{Secret: "short"}, zap.NewNop()); err == nil {
		t.Fatalf("expected short secrets to be rejected")
	}
}

func TestNewPaymentsWithoutKey(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "")

	svc, err := newPayments(PaymentsConfig{}, "", nil, zap.NewNop())
	if err != nil {
		t.Fatalf("newPayments: %v", err)
	}
	if svc.Enabled() {
		t.Fatalf("payments must be disabled without an api key")
	}
}
