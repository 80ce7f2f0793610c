package gemini

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/resume-agent/internal/ai"
	"github.com/spigell/resume-agent/internal/logger"
	"github.com/spigell/resume-agent/internal/utils"
)

const (
	Provider = "gemini"

	defaultModel        = "gemini-2.5-flash"
	defaultMaxLogLength = 200
	maxRetryDelay       = 5 * time.Second
	baseRetryDelay      = 500 * time.Millisecond

	transcribeInstruction = "Transcribe the spoken content of this audio verbatim. Return only the transcript text."
)

var retryAfterRe = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*s`)

// contentModels is the subset of *genai.Models used by the generator.
type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator wraps the Google GenAI client. It implements ai.Generator and
// ai.Transcriber.
type Generator struct {
	models     contentModels
	model      string
	maxRetries int
	maxLogLen  int
	logger     *zap.Logger
	wait       func(ctx context.Context, d time.Duration) error
}

// Config holds the generator settings.
type Config struct {
	APIKey string
	Model  string
	// MaxAttempts bounds the number of calls made for one request. Only
	// rate-limit rejections with a short retry delay are retried, since the
	// model never processed those requests.
	MaxAttempts  int
	MaxLogLength int
}

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, cfg Config, log *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(client.Models, cfg, log), nil
}

func newGenerator(models contentModels, cfg Config, log *zap.Logger) *Generator {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Generator{
		models:     models,
		model:      model,
		maxRetries: attempts,
		maxLogLen:  maxLogLen,
		logger:     logger.WithProvider(log, Provider, model),
		wait:       utils.WaitFor,
	}
}

// Generate sends the prompt to Gemini and returns the joined textual response.
func (g *Generator) Generate(ctx context.Context, prompt string, opts ai.Options) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	config := &genai.GenerateContentConfig{}
	if opts.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxOutputTokens)
	}
	if opts.Temperature > 0 {
		temp := float32(opts.Temperature)
		config.Temperature = &temp
	}
	if system := strings.TrimSpace(opts.System); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	g.logger.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, g.maxLogLen)),
	)

	out, err := g.generate(ctx, genai.Text(prompt), config)
	if err != nil {
		return "", ai.Classify(Provider, err)
	}

	g.logger.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(out)),
		zap.String("response_preview", logger.TruncateForLog(out, g.maxLogLen)),
	)

	return out, nil
}

// Transcribe sends the audio inline and asks the model for a verbatim transcript.
func (g *Generator) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("audio must not be empty")
	}
	if strings.TrimSpace(mimeType) == "" {
		mimeType = "audio/wav"
	}

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{Text: transcribeInstruction},
			{InlineData: &genai.Blob{Data: audio, MIMEType: mimeType}},
		},
	}}

	g.logger.Debug("gemini transcribe request", zap.Int("audio_bytes", len(audio)), zap.String("mime_type", mimeType))

	out, err := g.generate(ctx, contents, nil)
	if err != nil {
		return "", ai.Classify(Provider+" speech-to-text", err)
	}
	return out, nil
}

func (g *Generator) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
		if err == nil {
			return extractText(resp)
		}
		lastErr = err

		delay, ok := retryDelay(err, attempt)
		if !ok || attempt == g.maxRetries-1 {
			break
		}

		g.logger.Warn("gemini rate limited, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := g.wait(ctx, delay); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("generate content: %w", lastErr)
}

// retryDelay reports whether err is a rate-limit rejection worth retrying and
// how long to wait. Long quota delays are not retried.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return 0, false
	}
	if apiErr.Code != 429 {
		return 0, false
	}

	if m := retryAfterRe.FindStringSubmatch(apiErr.Message); len(m) == 2 {
		seconds, parseErr := strconv.ParseFloat(m[1], 64)
		if parseErr == nil {
			delay := time.Duration(seconds * float64(time.Second))
			if delay > maxRetryDelay {
				return 0, false
			}
			return delay, true
		}
	}

	return utils.Backoff(attempt, baseRetryDelay, maxRetryDelay), true
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ai.ErrEmptyResponse
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", ai.ErrEmptyResponse
	}

	return output, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}
