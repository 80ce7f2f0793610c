package evaluation

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spigell/resume-agent/internal/ai"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Prompt names known to the pipeline.
const (
	PromptATS             = "ats"
	PromptInterviewEval   = "interview_eval"
	PromptQuestionGen     = "question_gen"
	PromptRewrite         = "rewrite"
	PromptCoverLetter     = "cover_letter"
	PromptLinkedIn        = "linkedin"
	PromptATSOptimization = "ats_optimization"
)

// Prompt is one versioned prompt template.
type Prompt struct {
	Version         string  `yaml:"version"`
	Description     string  `yaml:"description"`
	System          string  `yaml:"system"`
	Template        string  `yaml:"template"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	Temperature     float64 `yaml:"temperature"`
}

// Catalog holds prompt templates by name.
type Catalog map[string]Prompt

// DefaultCatalog returns the embedded prompt catalog.
func DefaultCatalog() (Catalog, error) {
	return ParseCatalog(defaultPrompts)
}

// ParseCatalog decodes a YAML prompt catalog. Overrides are merged over the
// embedded defaults by the caller via Merge.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse prompt catalog: %w", err)
	}
	for name, p := range c {
		if strings.TrimSpace(p.Template) == "" {
			return nil, fmt.Errorf("prompt %q has an empty template", name)
		}
	}
	return c, nil
}

// Merge returns a copy of c with entries from override replacing same-named ones.
func (c Catalog) Merge(override Catalog) Catalog {
	out := make(Catalog, len(c)+len(override))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Names lists the prompt names in stable order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render fills the named template. Missing variables render as "none".
func (c Catalog) Render(name string, vars map[string]string) (string, ai.Options, error) {
	p, ok := c[name]
	if !ok {
		return "", ai.Options{}, fmt.Errorf("unknown prompt %q", name)
	}

	out := p.Template
	for key, value := range vars {
		if strings.TrimSpace(value) == "" {
			value = "none"
		}
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}

	return strings.TrimSpace(out), ai.Options{
		System:          p.System,
		MaxOutputTokens: p.MaxOutputTokens,
		Temperature:     p.Temperature,
	}, nil
}

// sanitizeLine collapses a user-provided single-line value and neutralises
// bracketed section markers so it cannot impersonate prompt structure.
func sanitizeLine(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.NewReplacer("[", "(", "]", ")").Replace(s)
	return truncateRunes(s, maxRunes)
}

func truncateRunes(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	if maxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}
