// Package evaluation turns resume/job and question/answer pairs into
// structured scores and generated content by delegating to a language model.
package evaluation

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

	"github.com/spigell/resume-agent/internal/ai"
	"github.com/spigell/resume-agent/internal/apperr"
	"github.com/spigell/resume-agent/internal/logger"
)

const (
	DefaultTimeout       = 20 * time.Second
	defaultMaxInputRunes = 12000
	maxLineRunes         = 200
	maxLogPreview        = 200

	serviceLLM = "language model"
	serviceSTT = "speech-to-text"
)

var listMarkerRe = regexp.MustCompile(`^\s*(?:[-*#]+|[0-9]+[.)])\s*`)

// Observer receives the outcome of every pipeline operation.
type Observer interface {
	ObserveEvaluation(operation string, score float64, err error)
}

// Config holds pipeline settings.
type Config struct {
	// Timeout bounds every upstream call.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxInputRunes truncates long resume, job and answer texts before prompting.
	MaxInputRunes int `mapstructure:"max-input-runes"`
}

// Pipeline is stateless apart from its collaborators and safe for concurrent use.
type Pipeline struct {
	gen      ai.Generator
	stt      ai.Transcriber
	prompts  Catalog
	timeout  time.Duration
	maxInput int
	logger   *zap.Logger
	observer Observer
}

// New builds a pipeline. A nil generator or transcriber is replaced by
// ai.Disabled so calls fail with an upstream-unavailable error.
func New(gen ai.Generator, stt ai.Transcriber, prompts Catalog, cfg Config, log *zap.Logger) *Pipeline {
	if gen == nil {
		gen = ai.Disabled{}
	}
	if stt == nil {
		stt = ai.Disabled{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxInput := cfg.MaxInputRunes
	if maxInput <= 0 {
		maxInput = defaultMaxInputRunes
	}

	return &Pipeline{
		gen:      gen,
		stt:      stt,
		prompts:  prompts,
		timeout:  timeout,
		maxInput: maxInput,
		logger:   log,
	}
}

// WithObserver sets the observer notified after each operation.
func (p *Pipeline) WithObserver(o Observer) *Pipeline {
	p.observer = o
	return p
}

// ScoreResume rates how well resume matches job.
func (p *Pipeline) ScoreResume(ctx context.Context, resume, job string) (*ScoreResult, error) {
	if strings.TrimSpace(resume) == "" {
		return nil, apperr.Validation("resume is required")
	}
	if strings.TrimSpace(job) == "" {
		return nil, apperr.Validation("job is required")
	}

	return p.score(ctx, PromptATS, map[string]string{
		"resume": truncateRunes(resume, p.maxInput),
		"job":    truncateRunes(job, p.maxInput),
	})
}

// EvaluateAnswer rates the quality of answer to question.
func (p *Pipeline) EvaluateAnswer(ctx context.Context, question, answer string) (*ScoreResult, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, apperr.Validation("answer is required")
	}

	return p.score(ctx, PromptInterviewEval, map[string]string{
		"question": truncateRunes(question, p.maxInput),
		"answer":   truncateRunes(answer, p.maxInput),
	})
}

// GenerateQuestion asks the model for the next interview question. seq is the
// zero-based number of the question about to be handed out.
func (p *Pipeline) GenerateQuestion(ctx context.Context, role, difficulty, language, previous string, seq int) (string, error) {
	raw, err := p.call(ctx, PromptQuestionGen, map[string]string{
		"role":       sanitizeLine(role, maxLineRunes),
		"difficulty": sanitizeLine(difficulty, maxLineRunes),
		"language":   sanitizeLine(language, maxLineRunes),
		"previous":   sanitizeLine(previous, p.maxInput),
		"number":     strconv.Itoa(seq + 1),
	})
	if err != nil {
		p.observe(PromptQuestionGen, 0, err)
		return "", err
	}

	question := firstQuestionLine(raw)
	if question == "" {
		err := apperr.UpstreamParse(serviceLLM, errors.New("no question text in response"))
		p.observe(PromptQuestionGen, 0, err)
		return "", err
	}

	p.observe(PromptQuestionGen, 0, nil)
	return question, nil
}

// Rewrite returns resume rewritten for role as markdown.
func (p *Pipeline) Rewrite(ctx context.Context, role, resume string) (string, error) {
	if strings.TrimSpace(resume) == "" {
		return "", apperr.Validation("resume is required")
	}

	raw, err := p.call(ctx, PromptRewrite, map[string]string{
		"role":   sanitizeLine(role, maxLineRunes),
		"resume": truncateRunes(resume, p.maxInput),
	})
	p.observe(PromptRewrite, 0, err)
	if err != nil {
		return "", err
	}
	return stripFences(raw), nil
}

// GenerateFromTemplate produces content for one of the generated templates.
func (p *Pipeline) GenerateFromTemplate(ctx context.Context, templateID, resume, job, extra string) (*Generated, error) {
	tmpl, ok := LookupTemplate(templateID)
	if !ok {
		return nil, apperr.NotFound("template")
	}
	if tmpl.Prompt == "" {
		return nil, apperr.Validation("template %q does not generate content", templateID)
	}
	if strings.TrimSpace(resume) == "" {
		return nil, apperr.Validation("resume is required")
	}

	raw, err := p.call(ctx, tmpl.Prompt, map[string]string{
		"resume": truncateRunes(resume, p.maxInput),
		"job":    truncateRunes(job, p.maxInput),
		"extra":  truncateRunes(extra, p.maxInput),
	})
	p.observe(tmpl.Prompt, 0, err)
	if err != nil {
		return nil, err
	}

	content := stripFences(raw)
	return &Generated{
		Template: tmpl.ID,
		Content:  content,
		HTML:     renderMarkdown(content),
	}, nil
}

// Transcribe converts recorded audio to text.
func (p *Pipeline) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", apperr.Validation("audio file is required")
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	text, err := p.stt.Transcribe(callCtx, audio, mimeType)
	if err != nil {
		err = classifyCall(ctx, callCtx, serviceSTT, err)
		p.observe("transcribe", 0, err)
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	p.observe("transcribe", 0, nil)
	return strings.TrimSpace(text), nil
}

func (p *Pipeline) score(ctx context.Context, name string, vars map[string]string) (*ScoreResult, error) {
	raw, err := p.call(ctx, name, vars)
	if err != nil {
		p.observe(name, 0, err)
		return nil, err
	}

	result, err := parseScore(raw)
	if err != nil {
		p.logger.Warn("unparseable model response",
			zap.String(logger.FieldPrompt, name),
			zap.String("response_preview", logger.TruncateForLog(raw, maxLogPreview)),
			zap.Error(err),
		)
		err = apperr.UpstreamParse(serviceLLM, err)
		p.observe(name, 0, err)
		return nil, err
	}

	p.observe(name, result.Score, nil)
	return result, nil
}

// call renders the prompt and runs one bounded generation. A result that
// arrives after the caller gave up is dropped.
func (p *Pipeline) call(ctx context.Context, name string, vars map[string]string) (string, error) {
	prompt, opts, err := p.prompts.Render(name, vars)
	if err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}

	log := logger.FromContext(ctx, p.logger).With(
		zap.String(logger.FieldPrompt, name),
		zap.String(logger.FieldModel, p.gen.Model()),
	)

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	raw, err := p.gen.Generate(callCtx, prompt, opts)
	elapsed := time.Since(start)
	if err != nil {
		err = classifyCall(ctx, callCtx, serviceLLM, err)
		log.Warn("model call failed",
			zap.Duration("elapsed", elapsed),
			zap.String("code", apperr.Code(err)),
			zap.Error(err),
		)
		return "", err
	}
	if ctx.Err() != nil {
		log.Debug("dropping late model response", zap.Duration("elapsed", elapsed))
		return "", ctx.Err()
	}

	log.Debug("model call completed",
		zap.Duration("elapsed", elapsed),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
	)
	return raw, nil
}

// classifyCall decides between caller cancellation, our own deadline and a
// provider failure.
func classifyCall(parent, callCtx context.Context, service string, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return parent.Err()
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, apperr.ErrUpstreamTimeout) {
		return apperr.UpstreamTimeout(service, err)
	}
	return ai.Classify(service, err)
}

func (p *Pipeline) observe(operation string, score float64, err error) {
	if p.observer == nil || errors.Is(err, context.Canceled) {
		return
	}
	p.observer.ObserveEvaluation(operation, score, err)
}

// firstQuestionLine takes the first meaningful line of a generated question,
// dropping list markers, labels and quotes.
func firstQuestionLine(raw string) string {
	for _, line := range strings.Split(stripFences(raw), "\n") {
		line = listMarkerRe.ReplaceAllString(line, "")
		for _, prefix := range []string{"Question:", "question:", "Q:"} {
			line = strings.TrimPrefix(line, prefix)
		}
		line = strings.Trim(strings.TrimSpace(line), `"'*`)
		if line != "" {
			return line
		}
	}
	return ""
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	if idx := strings.Index(raw, "\n"); idx != -1 {
		raw = raw[idx+1:]
	} else {
		raw = strings.TrimLeft(raw, "`")
	}
	raw = strings.TrimSpace(raw)
	return strings.TrimSpace(strings.TrimSuffix(raw, "```"))
}
