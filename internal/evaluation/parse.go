package evaluation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

var (
	errNoScore = errors.New("no numeric score in response")

	// score: 82 / "score" = 82.5 / Score - 82 / score of 82 / score: 82/100.
	// A dash is a separator only when followed by space, so "score -10" stays negative.
	labelledScoreRe = regexp.MustCompile(`(?i)\bscore\b["'*]*\s*(?:[:=]|-\s|is|of)?\s*["']?(-?[0-9]+(?:\.[0-9]+)?)(?:\s*(?:/|out\s+of)\s*([0-9]+(?:\.[0-9]+)?))?`)
	// 82/100, 82 out of 100
	outOfHundredRe = regexp.MustCompile(`(?i)(-?[0-9]+(?:\.[0-9]+)?)\s*(?:/|out\s+of)\s*(100)\b`)

	scoreKeys = []string{"score", "ats_score", "overall_score", "rating"}
)

// looseResult mirrors ScoreResult for weakly typed decoding of model output.
type looseResult struct {
	MatchedKeywords  []string `mapstructure:"matched_keywords"`
	MissingKeywords  []string `mapstructure:"missing_keywords"`
	Feedback         string   `mapstructure:"feedback"`
	SuggestedBullets []string `mapstructure:"suggested_bullets"`
}

// parseScore maps raw model output onto ScoreResult.
//
// A JSON object with a numeric score is decoded field by field. Free text that
// still carries a recognisable score yields that score with empty defaults for
// everything else. Anything else is an error: a score is never invented.
func parseScore(raw string) (*ScoreResult, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err == nil {
		if score, ok := scoreFromMap(data); ok {
			result, err := decodeResult(data)
			if err != nil {
				// Malformed optional fields fall back to empty defaults.
				result = &ScoreResult{}
			}
			result.Score = score
			result.normalize()
			return result, nil
		}
	}

	score, ok := scoreFromText(raw)
	if !ok {
		return nil, errNoScore
	}

	result := &ScoreResult{Score: score}
	result.normalize()
	return result, nil
}

func decodeResult(data map[string]any) (*ScoreResult, error) {
	var loose looseResult
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		Result:           &loose,
	})
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}

	// Aliases seen in model output.
	if _, ok := data["feedback"]; !ok {
		for _, alias := range []string{"suggestions", "comments", "summary"} {
			if v, ok := data[alias]; ok {
				data["feedback"] = coerceString(v)
				break
			}
		}
	}
	if v, ok := data["feedback"]; ok {
		data["feedback"] = coerceString(v)
	}

	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("decode result fields: %w", err)
	}

	return &ScoreResult{
		MatchedKeywords:  loose.MatchedKeywords,
		MissingKeywords:  loose.MissingKeywords,
		Feedback:         loose.Feedback,
		SuggestedBullets: loose.SuggestedBullets,
	}, nil
}

func scoreFromMap(data map[string]any) (float64, bool) {
	for _, key := range scoreKeys {
		v, ok := data[key]
		if !ok {
			continue
		}
		score := coerceFloat(v)
		if !math.IsNaN(score) && !math.IsInf(score, 0) {
			return score, true
		}
	}
	return 0, false
}

// scoreFromText finds a 0-100 score in free text. Scores on any other scale
// are not recognised.
func scoreFromText(raw string) (float64, bool) {
	for _, re := range []*regexp.Regexp{labelledScoreRe, outOfHundredRe} {
		m := re.FindStringSubmatch(raw)
		if len(m) != 3 {
			continue
		}
		if m[2] != "" {
			if scale, err := strconv.ParseFloat(m[2], 64); err != nil || scale != 100 {
				continue
			}
		}
		f, err := strconv.ParseFloat(m[1], 64)
		if err == nil && !math.IsInf(f, 0) {
			return f, true
		}
	}
	return 0, false
}

// extractJSON strips markdown fences and any prose around the outermost object.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start != -1 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		trimmed := strings.TrimSpace(val)
		trimmed = strings.TrimSuffix(trimmed, "%")
		if idx := strings.Index(trimmed, "/"); idx != -1 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := coerceString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case nil:
		return ""
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
