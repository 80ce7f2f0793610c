package interview

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/spigell/resume-agent/internal/apperr"
	"github.com/spigell/resume-agent/internal/evaluation"
)

type stubEvaluator struct {
	mu        sync.Mutex
	question  string
	genErr    error
	result    *evaluation.ScoreResult
	evalErr   error
	evaluated []string
}

func (s *stubEvaluator) GenerateQuestion(_ context.Context, role, difficulty, _, _ string, seq int) (string, error) {
	if s.genErr != nil {
		return "", s.genErr
	}
	if s.question != "" {
		return s.question, nil
	}
	return role + " " + difficulty + " question", nil
}

func (s *stubEvaluator) EvaluateAnswer(_ context.Context, question, answer string) (*evaluation.ScoreResult, error) {
	s.mu.Lock()
	s.evaluated = append(s.evaluated, question+"|"+answer)
	s.mu.Unlock()
	if s.evalErr != nil {
		return nil, s.evalErr
	}
	return s.result, nil
}

type countingCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingCounter) Inc(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[name]++
}

func newTestService(t *testing.T, eval Evaluator, source string) (*Service, *countingCounter) {
	t.Helper()
	bank, err := DefaultBank()
	if err != nil {
		t.Fatalf("DefaultBank: %v", err)
	}
	counter := &countingCounter{}
	svc, err := NewService(NewRegistry(Config{}, nil), eval, bank, source, counter, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, counter
}

func TestInterviewFlow(t *testing.T) {
	t.Parallel()

	for _, source := range []string{SourceAI, SourceBank} {
		t.Run(source, func(t *testing.T) {
			t.Parallel()

			eval := &stubEvaluator{result: &evaluation.ScoreResult{Score: 64}}
			svc, counter := newTestService(t, eval, source)

			session, err := svc.CreateSession("backend engineer", "medium", "")
			if err != nil {
				t.Fatalf("CreateSession: %v", err)
			}

			first, err := svc.NextQuestion(context.Background(), session.ID)
			if err != nil {
				t.Fatalf("NextQuestion: %v", err)
			}
			second, err := svc.NextQuestion(context.Background(), session.ID)
			if err != nil {
				t.Fatalf("NextQuestion: %v", err)
			}
			if first.ID != "q0" || second.ID != "q1" {
				t.Fatalf("question ids = %q, %q", first.ID, second.ID)
			}
			if second.Text == "" {
				t.Fatal("question text is empty")
			}

			result, err := svc.SubmitAnswer(context.Background(), session.ID, "I used caching")
			if err != nil {
				t.Fatalf("SubmitAnswer: %v", err)
			}
			if result.Score < 0 || result.Score > 100 {
				t.Fatalf("score out of range: %v", result.Score)
			}
			if want := second.Text + "|I used caching"; eval.evaluated[0] != want {
				t.Fatalf("evaluated %q, want %q", eval.evaluated[0], want)
			}

			view, err := svc.Session(session.ID)
			if err != nil {
				t.Fatalf("Session: %v", err)
			}
			if view.Seq != 2 || view.Answered != 1 {
				t.Fatalf("unexpected session view %#v", view)
			}
			if counter.counts[CounterSessionsCreated] != 1 || counter.counts[CounterQuestionsAsked] != 2 || counter.counts[CounterAnswersSubmitted] != 1 {
				t.Fatalf("unexpected counters %#v", counter.counts)
			}
		})
	}
}

func TestFailedGenerationKeepsSequence(t *testing.T) {
	t.Parallel()

	eval := &stubEvaluator{genErr: apperr.UpstreamTimeout("language model", context.DeadlineExceeded)}
	svc, _ := newTestService(t, eval, SourceAI)

	session, err := svc.CreateSession("sre", "hard", "en")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := svc.NextQuestion(context.Background(), session.ID); !errors.Is(err, apperr.ErrUpstreamTimeout) {
		t.Fatalf("expected upstream timeout, got %v", err)
	}

	eval.genErr = nil
	q, err := svc.NextQuestion(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("NextQuestion: %v", err)
	}
	if q.ID != "q0" {
		t.Fatalf("failed generation consumed a sequence number, got %q", q.ID)
	}
}

func TestServiceErrors(t *testing.T) {
	t.Parallel()

	eval := &stubEvaluator{result: &evaluation.ScoreResult{Score: 50}}
	svc, _ := newTestService(t, eval, SourceBank)

	if _, err := svc.NextQuestion(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("NextQuestion on unknown id: %v", err)
	}
	if _, err := svc.SubmitAnswer(context.Background(), "missing", "answer"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("SubmitAnswer on unknown id: %v", err)
	}

	session, err := svc.CreateSession("qa", "", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := svc.SubmitAnswer(context.Background(), session.ID, "  "); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("blank answer: %v", err)
	}
	if _, err := svc.SubmitAnswer(context.Background(), session.ID, "answer"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("answer before any question: %v", err)
	}
	if len(eval.evaluated) != 0 {
		t.Fatalf("evaluator called for rejected input: %v", eval.evaluated)
	}
}

func TestBankPick(t *testing.T) {
	t.Parallel()

	bank, err := ParseBank([]byte("medium:\n  - First for {role}\n  - Second\nhard:\n  - Hard one\n"))
	if err != nil {
		t.Fatalf("ParseBank: %v", err)
	}

	tests := []struct {
		session Session
		want    string
	}{
		{session: Session{Role: "dev", Difficulty: "medium", Seq: 0}, want: "First for dev"},
		{session: Session{Role: "dev", Difficulty: "medium", Seq: 3}, want: "Second"},
		{session: Session{Role: "dev", Difficulty: "hard", Seq: 5}, want: "Hard one"},
		{session: Session{Role: "dev", Difficulty: "insane", Seq: 0}, want: "First for dev"},
	}
	for _, tt := range tests {
		if got := bank.Pick(tt.session); got != tt.want {
			t.Fatalf("Pick(%+v) = %q, want %q", tt.session, got, tt.want)
		}
	}

	if _, err := ParseBank([]byte("easy:\n  - only easy\n")); err == nil {
		t.Fatal("expected error for a bank without medium questions")
	}
}

func TestDefaultBankMentionsRole(t *testing.T) {
	t.Parallel()

	bank, err := DefaultBank()
	if err != nil {
		t.Fatalf("DefaultBank: %v", err)
	}
	if got := bank.Pick(Session{Role: "data engineer", Difficulty: "easy"}); !strings.Contains(got, "data engineer") {
		t.Fatalf("first easy question should mention the role: %q", got)
	}
}
