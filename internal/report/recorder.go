// Package report collects in-process usage counters and score statistics for
// the admin dashboard.
package report

import (
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/spigell/resume-agent/internal/apperr"
)

const (
	CounterUsersRegistered = "users_registered"
	CounterUpstreamFailure = "upstream_failures"

	defaultSampleSize = 1000
)

// Recorder is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	started  time.Time
	counters map[string]int64
	failures map[string]int64
	samples  map[string]*ring
	size     int
	now      func() time.Time
}

// NewRecorder keeps up to sampleSize recent scores per operation.
func NewRecorder(sampleSize int) *Recorder {
	if sampleSize <= 0 {
		sampleSize = defaultSampleSize
	}
	return &Recorder{
		started:  time.Now(),
		counters: make(map[string]int64),
		failures: make(map[string]int64),
		samples:  make(map[string]*ring),
		size:     sampleSize,
		now:      time.Now,
	}
}

// Inc increments a named counter.
func (r *Recorder) Inc(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name]++
}

// ObserveEvaluation records the outcome of an evaluation pipeline call.
// Failures are counted by error code; successful scoring calls keep their score.
func (r *Recorder) ObserveEvaluation(operation string, score float64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters[operation]++
	if err != nil {
		r.failures[apperr.Code(err)]++
		switch apperr.Code(err) {
		case apperr.CodeUpstreamUnavailable, apperr.CodeUpstreamTimeout, apperr.CodeUpstreamParse:
			r.counters[CounterUpstreamFailure]++
		}
		return
	}
	if !scored(operation) {
		return
	}
	s, ok := r.samples[operation]
	if !ok {
		s = newRing(r.size)
		r.samples[operation] = s
	}
	s.add(score)
}

// scored lists operations whose score is meaningful.
func scored(operation string) bool {
	return operation == "ats" || operation == "interview_eval"
}

// ScoreStats summarises recent scores of one operation.
type ScoreStats struct {
	Operation string  `json:"operation"`
	Count     int     `json:"count"`
	Mean      float64 `json:"mean"`
	Median    float64 `json:"median"`
	P90       float64 `json:"p90"`
	StdDev    float64 `json:"stddev"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
}

// Snapshot is a point-in-time copy of the recorder.
type Snapshot struct {
	GeneratedAt   time.Time        `json:"generated_at"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Counters      map[string]int64 `json:"counters"`
	Failures      map[string]int64 `json:"failures"`
	Scores        []ScoreStats     `json:"scores"`
}

// Snapshot copies the current counters and computes score statistics.
func (r *Recorder) Snapshot() (Snapshot, error) {
	r.mu.Lock()
	now := r.now()
	snap := Snapshot{
		GeneratedAt:   now,
		UptimeSeconds: int64(now.Sub(r.started).Seconds()),
		Counters:      make(map[string]int64, len(r.counters)),
		Failures:      make(map[string]int64, len(r.failures)),
		Scores:        []ScoreStats{},
	}
	for k, v := range r.counters {
		snap.Counters[k] = v
	}
	for k, v := range r.failures {
		snap.Failures[k] = v
	}
	data := make(map[string][]float64, len(r.samples))
	for op, s := range r.samples {
		data[op] = s.values()
	}
	r.mu.Unlock()

	ops := make([]string, 0, len(data))
	for op := range data {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	for _, op := range ops {
		st, err := summarize(op, data[op])
		if err != nil {
			return Snapshot{}, err
		}
		snap.Scores = append(snap.Scores, st)
	}
	return snap, nil
}

func summarize(op string, data []float64) (ScoreStats, error) {
	out := ScoreStats{Operation: op, Count: len(data)}
	if len(data) == 0 {
		return out, nil
	}

	var err error
	if out.Mean, err = stats.Mean(data); err != nil {
		return out, err
	}
	if out.Median, err = stats.Median(data); err != nil {
		return out, err
	}
	if out.P90, err = stats.Percentile(data, 90); err != nil {
		return out, err
	}
	if out.StdDev, err = stats.StandardDeviation(data); err != nil {
		return out, err
	}
	if out.Min, err = stats.Min(data); err != nil {
		return out, err
	}
	if out.Max, err = stats.Max(data); err != nil {
		return out, err
	}
	return out, nil
}

// ring is a fixed-size buffer of the most recent samples.
type ring struct {
	buf  []float64
	next int
	full bool
}

func newRing(size int) *ring {
	return &ring{buf: make([]float64, size)}
}

func (r *ring) add(v float64) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) values() []float64 {
	if r.full {
		out := make([]float64, len(r.buf))
		copy(out, r.buf)
		return out
	}
	out := make([]float64, r.next)
	copy(out, r.buf[:r.next])
	return out
}
