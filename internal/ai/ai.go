// Package ai defines the text-generation and speech-to-text capabilities the
// evaluation pipeline depends on. Providers live in sub-packages.
package ai

import (
	"context"
	"errors"

	"github.com/spigell/resume-agent/internal/apperr"
)

// Options tunes a single generation call.
type Options struct {
	// System is an optional system instruction.
	System string
	// MaxOutputTokens limits the response size; zero leaves the provider default.
	MaxOutputTokens int
	// Temperature is passed through when positive.
	Temperature float64
}

// Generator turns a prompt into raw text.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	Model() string
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// ErrEmptyResponse is returned by providers when the model produced no text.
var ErrEmptyResponse = errors.New("model returned empty response")

// Classify maps a provider error onto the upstream error taxonomy.
// Caller cancellation is returned as is; errors that already carry an
// application code are left untouched.
func Classify(service string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.UpstreamTimeout(service, err)
	case errors.Is(err, ErrEmptyResponse):
		return apperr.UpstreamParse(service, err)
	default:
		return apperr.UpstreamUnavailable(service, err)
	}
}

// Disabled is used when no provider is configured. Every call fails with an
// upstream-unavailable error.
type Disabled struct{}

var errNoProvider = errors.New("no ai provider configured")

func (Disabled) Generate(context.Context, string, Options) (string, error) {
	return "", apperr.UpstreamUnavailable("language model", errNoProvider)
}

func (Disabled) Transcribe(context.Context, []byte, string) (string, error) {
	return "", apperr.UpstreamUnavailable("speech-to-text", errNoProvider)
}

func (Disabled) Model() string { return "" }
