package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/spigell/resume-agent/internal/apperr"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: apperr.ErrUpstreamTimeout},
		{name: "network", err: errors.New("dial tcp: connection refused"), want: apperr.ErrUpstreamUnavailable},
		{name: "already classified", err: apperr.UpstreamParse("gemini", nil), want: apperr.ErrUpstreamParse},
		{name: "canceled", err: context.Canceled, want: context.Canceled},
		{name: "empty response", err: ErrEmptyResponse, want: apperr.ErrUpstreamParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify("gemini", tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	if Classify("gemini", nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestDisabled(t *testing.T) {
	var d Disabled
	if _, err := d.Generate(context.Background(), "p", Options{}); !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
	if _, err := d.Transcribe(context.Background(), []byte("x"), "audio/wav"); !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}
