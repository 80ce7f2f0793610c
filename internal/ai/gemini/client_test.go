package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/resume-agent/internal/ai"
	"github.com/spigell/resume-agent/internal/apperr"
)

type fakeResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeModels struct {
	mu      sync.Mutex
	queue   []fakeResponse
	calls   int
	configs []*genai.GenerateContentConfig
	inputs  [][]*genai.Content
}

func (f *fakeModels) enqueue(resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeResponse{resp: resp, err: err})
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.configs = append(f.configs, config)
	f.inputs = append(f.inputs, contents)
	if len(f.queue) == 0 {
		return nil, errors.New("unexpected call")
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	return next.resp, next.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func newTestGenerator(models contentModels, attempts int) *Generator {
	g := newGenerator(models, Config{Model: "gemini-test", MaxAttempts: attempts}, zap.NewNop())
	g.wait = func(context.Context, time.Duration) error { return nil }
	return g
}

func TestGenerateJoinsPartsAndPassesOptions(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(textResponse(" {\"score\": 70 ", "}"), nil)

	g := newTestGenerator(models, 1)
	out, err := g.Generate(context.Background(), "prompt", ai.Options{System: "system", MaxOutputTokens: 256, Temperature: 0.2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "{\"score\": 70\n}" {
		t.Fatalf("unexpected output %q", out)
	}

	cfg := models.configs[0]
	if cfg.MaxOutputTokens != 256 {
		t.Fatalf("expected max output tokens to be passed, got %d", cfg.MaxOutputTokens)
	}
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "system" {
		t.Fatalf("expected system instruction to be set")
	}
	if cfg.Temperature == nil || *cfg.Temperature != float32(0.2) {
		t.Fatalf("expected temperature to be set")
	}
}

func TestGenerateRetriesShortRateLimit(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED", Message: "retry after 1 seconds"})
	models.enqueue(textResponse("retry ok"), nil)

	g := newTestGenerator(models, 2)
	out, err := g.Generate(context.Background(), "prompt", ai.Options{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "retry ok" || models.calls != 2 {
		t.Fatalf("unexpected result %q after %d calls", out, models.calls)
	}
}

func TestGenerateDoesNotRetryServerErrors(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})

	g := newTestGenerator(models, 3)
	_, err := g.Generate(context.Background(), "prompt", ai.Options{})
	if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
	if models.calls != 1 {
		t.Fatalf("expected single call, got %d", models.calls)
	}
}

func TestGenerateDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	})

	g := newTestGenerator(models, 3)
	if _, err := g.Generate(context.Background(), "prompt", ai.Options{}); err == nil {
		t.Fatal("expected error when quota delay too long")
	}
	if models.calls != 1 {
		t.Fatalf("expected single call, got %d", models.calls)
	}
}

func TestGenerateMapsDeadlineToTimeout(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(nil, context.DeadlineExceeded)

	g := newTestGenerator(models, 1)
	_, err := g.Generate(context.Background(), "prompt", ai.Options{})
	if !errors.Is(err, apperr.ErrUpstreamTimeout) {
		t.Fatalf("expected upstream timeout, got %v", err)
	}
}

func TestGenerateEmptyResponse(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(textResponse("  "), nil)

	g := newTestGenerator(models, 1)
	_, err := g.Generate(context.Background(), "prompt", ai.Options{})
	if !errors.Is(err, ai.ErrEmptyResponse) {
		t.Fatalf("expected empty response error, got %v", err)
	}
}

func TestTranscribeSendsInlineAudio(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(textResponse("I used caching"), nil)

	g := newTestGenerator(models, 1)
	out, err := g.Transcribe(context.Background(), []byte{1, 2, 3}, "audio/webm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "I used caching" {
		t.Fatalf("unexpected transcript %q", out)
	}

	parts := models.inputs[0][0].Parts
	if len(parts) != 2 || parts[1].InlineData == nil || parts[1].InlineData.MIMEType != "audio/webm" {
		t.Fatalf("expected inline audio part, got %+v", parts)
	}
}
