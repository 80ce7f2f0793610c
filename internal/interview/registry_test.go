package interview

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/spigell/resume-agent/internal/apperr"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(cfg Config) (*Registry, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(cfg, nil)
	r.now = clock.Now
	return r, clock
}

func TestCreateAssignsDefaults(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(Config{})
	s, err := r.Create("  backend engineer ", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Role != "backend engineer" || s.Difficulty != DefaultDifficulty || s.Language != DefaultLanguage || s.Seq != 0 {
		t.Fatalf("unexpected session %#v", s)
	}
	if len(s.ID) != 36 {
		t.Fatalf("expected a uuid, got %q", s.ID)
	}
}

func TestCreateRejectsBlankRole(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(Config{})
	for _, role := range []string{"", "   ", "\n\t"} {
		if _, err := r.Create(role, "easy", "en"); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("Create(%q) error = %v, want validation", role, err)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("rejected creates must not insert, len = %d", r.Len())
	}
}

func TestCreateReturnsUniqueIDs(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(Config{})
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		s, err := r.Create("role", "easy", "en")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, dup := seen[s.ID]; dup {
			t.Fatalf("duplicate id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
}

func TestCreateRedrawsCollidingID(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(Config{})
	ids := []string{"same", "same", "other"}
	r.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := r.Create("role", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := r.Create("role", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.ID != "same" || second.ID != "other" {
		t.Fatalf("ids = %q, %q", first.ID, second.ID)
	}
}

func TestAdvanceNumbersQuestions(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(Config{})
	s, err := r.Create("backend engineer", "medium", "en")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 3; i++ {
		q, err := r.Advance(s.ID, "question "+strconv.Itoa(i))
		if err != nil {
			t.Fatalf("Advance: %v", err)
		}
		if want := "q" + strconv.Itoa(i); q.ID != want {
			t.Fatalf("question id = %q, want %q", q.ID, want)
		}
		if q.Difficulty != "medium" {
			t.Fatalf("difficulty = %q", q.Difficulty)
		}
	}

	got, err := r.Get(s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Seq != 3 || got.LastQuestion != "question 2" {
		t.Fatalf("unexpected session state %#v", got)
	}
}

func TestUnknownIDIsNotFound(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(Config{})
	if _, err := r.Create("role", "", ""); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, id := range []string{"", "q0", "00000000-0000-0000-0000-000000000000", "../etc/passwd", "日本語"} {
		if _, err := r.Get(id); !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("Get(%q) error = %v, want not found", id, err)
		}
		if _, err := r.Advance(id, "text"); !errors.Is(err, apperr.ErrNotFound) {
			t.Fatalf("Advance(%q) error = %v, want not found", id, err)
		}
	}
}

func TestConcurrentAdvanceHasNoDuplicatesOrGaps(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(Config{})
	s, err := r.Create("role", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	other, err := r.Create("other role", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const workers = 64
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seqs []int
	)
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			q, err := r.Advance(s.ID, "text")
			if err != nil {
				t.Errorf("Advance: %v", err)
				return
			}
			mu.Lock()
			seqs = append(seqs, q.Seq)
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			if _, err := r.Advance(other.ID, "text"); err != nil {
				t.Errorf("Advance other: %v", err)
			}
		}()
	}
	wg.Wait()

	sort.Ints(seqs)
	if len(seqs) != workers {
		t.Fatalf("got %d questions, want %d", len(seqs), workers)
	}
	for i, seq := range seqs {
		if seq != i {
			t.Fatalf("sequence %v has a duplicate or gap at %d", seqs, i)
		}
	}

	for _, id := range []string{s.ID, other.ID} {
		got, err := r.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Seq != workers {
			t.Fatalf("session %s seq = %d, want %d", id, got.Seq, workers)
		}
	}
}

func TestExpiredSessionsAreNotFoundAndSwept(t *testing.T) {
	t.Parallel()

	r, clock := newTestRegistry(Config{TTL: time.Minute})
	idle, err := r.Create("idle", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	active, err := r.Create("active", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock.Add(40 * time.Second)
	if _, err := r.Advance(active.ID, "keep alive"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	clock.Add(40 * time.Second)

	if _, err := r.Advance(idle.ID, "late"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expired session should be not found, got %v", err)
	}
	if _, err := r.Get(active.ID); err != nil {
		t.Fatalf("active session expired early: %v", err)
	}

	if n := r.Sweep(clock.Now()); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestCreateRespectsMaxSessions(t *testing.T) {
	t.Parallel()

	r, clock := newTestRegistry(Config{TTL: time.Minute, MaxSessions: 2})
	for i := 0; i < 2; i++ {
		if _, err := r.Create("role", "", ""); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := r.Create("role", "", ""); !errors.Is(err, apperr.ErrResourceExhausted) {
		t.Fatalf("expected resource exhausted, got %v", err)
	}

	clock.Add(2 * time.Minute)
	if _, err := r.Create("role", "", ""); err != nil {
		t.Fatalf("Create after expiry should reclaim space: %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(Config{})
	s, err := r.Create("role", "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	r.Close()

	if _, err := r.Advance(s.ID, "text"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found after close, got %v", err)
	}
	if _, err := r.Create("role", "", ""); !errors.Is(err, apperr.ErrResourceExhausted) {
		t.Fatalf("expected resource exhausted after close, got %v", err)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	t.Parallel()

	r, _ := newTestRegistry(Config{ReapInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
