package interview

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var defaultQuestions []byte

// Bank is a fixed set of questions per difficulty.
type Bank struct {
	byDifficulty map[string][]string
}

// DefaultBank returns the embedded question bank.
func DefaultBank() (*Bank, error) {
	return ParseBank(defaultQuestions)
}

// ParseBank decodes a YAML question bank keyed by difficulty.
func ParseBank(data []byte) (*Bank, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}

	b := &Bank{byDifficulty: make(map[string][]string, len(raw))}
	for difficulty, questions := range raw {
		kept := make([]string, 0, len(questions))
		for _, q := range questions {
			if q = strings.TrimSpace(q); q != "" {
				kept = append(kept, q)
			}
		}
		if len(kept) > 0 {
			b.byDifficulty[strings.ToLower(difficulty)] = kept
		}
	}
	if _, ok := b.byDifficulty[DefaultDifficulty]; !ok {
		return nil, fmt.Errorf("question bank has no %q questions", DefaultDifficulty)
	}
	return b, nil
}

// Pick returns the question for the given session state. Unknown
// difficulties use the default set; sequences past the end wrap around.
func (b *Bank) Pick(s Session) string {
	questions, ok := b.byDifficulty[s.Difficulty]
	if !ok {
		questions = b.byDifficulty[DefaultDifficulty]
	}
	q := questions[s.Seq%len(questions)]
	return strings.ReplaceAll(q, "{role}", s.Role)
}
