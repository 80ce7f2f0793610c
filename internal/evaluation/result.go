package evaluation

import (
	"math"
	"strings"
)

const (
	MinScore = 0
	MaxScore = 100
)

// ScoreResult is the structured outcome of one evaluation call.
type ScoreResult struct {
	Score            float64  `json:"score"`
	MatchedKeywords  []string `json:"matched_keywords"`
	MissingKeywords  []string `json:"missing_keywords"`
	Feedback         string   `json:"feedback"`
	SuggestedBullets []string `json:"suggested_bullets,omitempty"`
}

// normalize enforces the result invariants: the score is clamped into
// [MinScore, MaxScore], keyword lists are trimmed and de-duplicated
// case-insensitively, and a keyword reported as both matched and missing is
// kept only as matched.
func (r *ScoreResult) normalize() {
	r.Score = clampScore(r.Score)
	r.MatchedKeywords = uniqueKeywords(r.MatchedKeywords, nil)

	matched := make(map[string]struct{}, len(r.MatchedKeywords))
	for _, k := range r.MatchedKeywords {
		matched[strings.ToLower(k)] = struct{}{}
	}
	r.MissingKeywords = uniqueKeywords(r.MissingKeywords, matched)
	r.SuggestedBullets = uniqueKeywords(r.SuggestedBullets, nil)
	r.Feedback = strings.TrimSpace(r.Feedback)
}

func clampScore(score float64) float64 {
	switch {
	case math.IsNaN(score):
		return MinScore
	case score < MinScore:
		return MinScore
	case score > MaxScore:
		return MaxScore
	default:
		return score
	}
}

func uniqueKeywords(in []string, exclude map[string]struct{}) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, k := range in {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		key := strings.ToLower(k)
		if _, ok := exclude[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, k)
	}
	return out
}
