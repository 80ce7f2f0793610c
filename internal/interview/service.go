package interview

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/resume-agent/internal/apperr"
	"github.com/spigell/resume-agent/internal/evaluation"
	"github.com/spigell/resume-agent/internal/logger"
)

// Question sources.
const (
	SourceAI   = "ai"
	SourceBank = "bank"
)

// Counter names reported by the service.
const (
	CounterSessionsCreated  = "sessions_created"
	CounterQuestionsAsked   = "questions_asked"
	CounterAnswersSubmitted = "answers_submitted"
)

// Evaluator is the part of the evaluation pipeline the service uses.
type Evaluator interface {
	GenerateQuestion(ctx context.Context, role, difficulty, language, previous string, seq int) (string, error)
	EvaluateAnswer(ctx context.Context, question, answer string) (*evaluation.ScoreResult, error)
}

// Counter counts service events.
type Counter interface {
	Inc(name string)
}

type nopCounter struct{}

func (nopCounter) Inc(string) {}

// Service runs the create / next question / submit answer flow.
type Service struct {
	registry  *Registry
	evaluator Evaluator
	bank      *Bank
	source    string
	counter   Counter
	logger    *zap.Logger
}

// NewService wires the registry to the evaluator. source selects where
// question text comes from; anything other than SourceAI uses the bank.
func NewService(registry *Registry, evaluator Evaluator, bank *Bank, source string, counter Counter, log *zap.Logger) (*Service, error) {
	if registry == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if bank == nil {
		return nil, fmt.Errorf("question bank is required")
	}
	source = strings.ToLower(strings.TrimSpace(source))
	if source != SourceAI {
		source = SourceBank
	}
	if counter == nil {
		counter = nopCounter{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		registry:  registry,
		evaluator: evaluator,
		bank:      bank,
		source:    source,
		counter:   counter,
		logger:    log,
	}, nil
}

// Source reports the configured question source.
func (s *Service) Source() string { return s.source }

// CreateSession starts a new interview.
func (s *Service) CreateSession(role, difficulty, language string) (*Session, error) {
	session, err := s.registry.Create(role, difficulty, language)
	if err != nil {
		return nil, err
	}
	s.counter.Inc(CounterSessionsCreated)
	return session, nil
}

// NextQuestion hands out the next question of a session. With the ai source
// the text is generated before the session advances, so a failed generation
// leaves the sequence untouched.
func (s *Service) NextQuestion(ctx context.Context, id string) (*Question, error) {
	log := logger.FromContext(ctx, s.logger).With(zap.String(logger.FieldSessionID, id))

	var (
		q   *Question
		err error
	)

	switch s.source {
	case SourceAI:
		session, getErr := s.registry.Get(id)
		if getErr != nil {
			return nil, getErr
		}

		text, genErr := s.evaluator.GenerateQuestion(ctx, session.Role, session.Difficulty, session.Language, session.LastQuestion, session.Seq)
		if genErr != nil {
			log.Warn("question generation failed", zap.Error(genErr))
			return nil, genErr
		}
		q, err = s.registry.Advance(id, text)
	default:
		q, err = s.registry.AdvanceFunc(id, s.bank.Pick)
	}
	if err != nil {
		return nil, err
	}

	s.counter.Inc(CounterQuestionsAsked)
	log.Debug("question handed out", zap.String("question_id", q.ID), zap.String("source", s.source))
	return q, nil
}

// SubmitAnswer evaluates answer against the last question of the session.
func (s *Service) SubmitAnswer(ctx context.Context, id, answer string) (*evaluation.ScoreResult, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, apperr.Validation("answer is required")
	}

	session, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	if session.LastQuestion == "" {
		return nil, apperr.Validation("no question has been asked in this session yet")
	}

	result, err := s.evaluator.EvaluateAnswer(ctx, session.LastQuestion, answer)
	if err != nil {
		return nil, err
	}

	// The session may have expired while the model was thinking; the
	// evaluation is still returned.
	if err := s.registry.RecordAnswer(id); err != nil {
		logger.FromContext(ctx, s.logger).Debug("answer not recorded",
			zap.String(logger.FieldSessionID, id),
			zap.Error(err),
		)
	}
	s.counter.Inc(CounterAnswersSubmitted)
	return result, nil
}

// Session returns a read-only view of a session.
func (s *Service) Session(id string) (Session, error) {
	return s.registry.Get(id)
}
