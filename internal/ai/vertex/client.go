package vertex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"go.uber.org/zap"

	"github.com/spigell/resume-agent/internal/ai"
	"github.com/spigell/resume-agent/internal/logger"
)

const (
	Provider = "vertexai"

	defaultModel    = "gemini-1.5-flash"
	defaultLocation = "us-central1"
)

type generativeModel interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Generator talks to Gemini models hosted on Vertex AI.
type Generator struct {
	client   *genai.Client
	model    string
	newModel func(opts ai.Options) generativeModel
	logger   *zap.Logger
}

// Config holds the Vertex AI project settings.
type Config struct {
	Project  string
	Location string
	Model    string
}

// NewGenerator creates a Vertex AI backed generator. Credentials come from the
// ambient Google application default credentials.
func NewGenerator(ctx context.Context, cfg Config, log *zap.Logger) (*Generator, error) {
	project := strings.TrimSpace(cfg.Project)
	if project == "" {
		return nil, errors.New("vertex ai project is required")
	}
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = defaultLocation
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, project, location)
	if err != nil {
		return nil, fmt.Errorf("create vertex ai client: %w", err)
	}

	g := &Generator{
		client: client,
		model:  model,
		logger: logger.WithProvider(log, Provider, model),
	}
	g.newModel = func(opts ai.Options) generativeModel {
		m := client.GenerativeModel(model)
		if opts.MaxOutputTokens > 0 {
			m.SetMaxOutputTokens(int32(opts.MaxOutputTokens))
		}
		if opts.Temperature > 0 {
			m.SetTemperature(float32(opts.Temperature))
		}
		if system := strings.TrimSpace(opts.System); system != "" {
			m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
		}
		return m
	}
	return g, nil
}

func (g *Generator) Generate(ctx context.Context, prompt string, opts ai.Options) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	g.logger.Debug("vertex ai generate content request", zap.Int("prompt_length", len(prompt)))

	resp, err := g.newModel(opts).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", ai.Classify(Provider, fmt.Errorf("generate content: %w", err))
	}

	out, err := extractText(resp)
	if err != nil {
		return "", ai.Classify(Provider, err)
	}
	return out, nil
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ai.ErrEmptyResponse
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				builder.WriteString(string(text))
			}
		}
	}

	out := strings.TrimSpace(builder.String())
	if out == "" {
		return "", ai.ErrEmptyResponse
	}
	return out, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// Close releases the underlying client.
func (g *Generator) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}
