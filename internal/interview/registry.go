// Package interview owns mock-interview sessions: their identity, their
// question sequence and their expiry.
package interview

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/resume-agent/internal/apperr"
	"github.com/spigell/resume-agent/internal/logger"
)

const (
	DefaultDifficulty = "medium"
	DefaultLanguage   = "en"

	defaultTTL          = 2 * time.Hour
	defaultReapInterval = time.Minute
	defaultMaxSessions  = 10000
)

// Session is one in-progress mock interview.
type Session struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	Difficulty string `json:"difficulty"`
	Language   string `json:"language"`
	// Seq is the number of questions handed out so far.
	Seq          int       `json:"seq"`
	LastQuestion string    `json:"last_question,omitempty"`
	Answered     int       `json:"answered"`
	CreatedAt    time.Time `json:"created_at"`
	LastActive   time.Time `json:"last_active"`
}

// Question is one prompt handed out by a session.
type Question struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Difficulty string `json:"difficulty"`
	Seq        int    `json:"-"`
}

// Config bounds the registry.
type Config struct {
	TTL          time.Duration `mapstructure:"ttl"`
	ReapInterval time.Duration `mapstructure:"reap-interval"`
	MaxSessions  int           `mapstructure:"max-sessions"`
}

type entry struct {
	mu      sync.Mutex
	session Session
	removed bool
}

// Registry is an in-memory, bounded session store. The map lock is held only
// for lookup, insert and delete; each session is advanced under its own lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	closed   bool

	ttl          time.Duration
	reapInterval time.Duration
	maxSessions  int

	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, log *zap.Logger) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = defaultReapInterval
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Registry{
		sessions:     make(map[string]*entry),
		ttl:          cfg.TTL,
		reapInterval: cfg.ReapInterval,
		maxSessions:  cfg.MaxSessions,
		now:          time.Now,
		newID:        uuid.NewString,
		logger:       log,
	}
}

// Create allocates a new session.
func (r *Registry) Create(role, difficulty, language string) (*Session, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return nil, apperr.Validation("role is required")
	}
	difficulty = strings.ToLower(strings.TrimSpace(difficulty))
	if difficulty == "" {
		difficulty = DefaultDifficulty
	}
	language = strings.TrimSpace(language)
	if language == "" {
		language = DefaultLanguage
	}

	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, apperr.ResourceExhausted("session registry is closed")
	}
	if len(r.sessions) >= r.maxSessions {
		r.sweepLocked(now)
		if len(r.sessions) >= r.maxSessions {
			return nil, apperr.ResourceExhausted("too many active interview sessions")
		}
	}

	id := r.newID()
	for _, taken := r.sessions[id]; taken; _, taken = r.sessions[id] {
		id = r.newID()
	}

	s := Session{
		ID:         id,
		Role:       role,
		Difficulty: difficulty,
		Language:   language,
		CreatedAt:  now,
		LastActive: now,
	}
	r.sessions[id] = &entry{session: s}

	r.logger.Debug("interview session created",
		zap.String(logger.FieldSessionID, id),
		zap.String("role", role),
		zap.String("difficulty", difficulty),
	)

	return &s, nil
}

// Advance hands out the next question of the session with the given text.
func (r *Registry) Advance(id, text string) (*Question, error) {
	return r.AdvanceFunc(id, func(Session) string { return text })
}

// AdvanceFunc is Advance with the text composed from the session state under
// the session lock. compose must not block.
func (r *Registry) AdvanceFunc(id string, compose func(Session) string) (*Question, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	now := r.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed || r.expired(e.session, now) {
		return nil, apperr.NotFound("session")
	}

	seq := e.session.Seq
	q := &Question{
		ID:         "q" + strconv.Itoa(seq),
		Text:       strings.TrimSpace(compose(e.session)),
		Difficulty: e.session.Difficulty,
		Seq:        seq,
	}

	e.session.Seq++
	e.session.LastQuestion = q.Text
	e.session.LastActive = now

	return q, nil
}

// RecordAnswer counts an evaluated answer and refreshes the session.
func (r *Registry) RecordAnswer(id string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	now := r.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed || r.expired(e.session, now) {
		return apperr.NotFound("session")
	}
	e.session.Answered++
	e.session.LastActive = now
	return nil
}

// Get returns a copy of the session.
func (r *Registry) Get(id string) (Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed || r.expired(e.session, r.now()) {
		return Session{}, apperr.NotFound("session")
	}
	return e.session, nil
}

// Len reports the number of stored sessions, expired ones included until swept.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than the TTL and reports how many.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked(now)
}

func (r *Registry) sweepLocked(now time.Time) int {
	removed := 0
	for id, e := range r.sessions {
		e.mu.Lock()
		if r.expired(e.session, now) {
			e.removed = true
			delete(r.sessions, id)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}

// Run sweeps expired sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(r.now()); n > 0 {
				r.logger.Info("expired interview sessions removed",
					zap.Int("removed", n),
					zap.Int("remaining", r.Len()),
				)
			}
		}
	}
}

// Close drops every session and rejects further creates.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.sessions {
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
		delete(r.sessions, id)
	}
	r.closed = true
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("session")
	}
	return e, nil
}

func (r *Registry) expired(s Session, now time.Time) bool {
	return now.Sub(s.LastActive) > r.ttl
}
