package evaluation

import (
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Template describes a resume layout or a generated-content kind offered to users.
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Premium     bool   `json:"is_premium"`
	// Prompt is set for templates that generate content through the model.
	Prompt string `json:"prompt,omitempty"`
}

var templates = []Template{
	{ID: "modern", Name: "Modern Professional", Description: "Clean, modern design with emphasis on achievements", Category: "resume"},
	{ID: "classic", Name: "Classic Traditional", Description: "Traditional format preferred by conservative industries", Category: "resume"},
	{ID: "creative", Name: "Creative Portfolio", Description: "Eye-catching design for creative professionals", Category: "resume", Premium: true},
	{ID: "technical", Name: "Technical Expert", Description: "Skills-focused layout for technical roles", Category: "resume"},
	{ID: "cover_letter", Name: "Cover Letter", Description: "Professional cover letter tailored to the job", Category: "generated", Prompt: PromptCoverLetter},
	{ID: "linkedin", Name: "LinkedIn Summary", Description: "Engaging LinkedIn profile summary", Category: "generated", Prompt: PromptLinkedIn},
	{ID: "ats_optimization", Name: "ATS Optimization", Description: "Resume rewritten for applicant tracking systems", Category: "generated", Premium: true, Prompt: PromptATSOptimization},
}

// Templates returns the template list.
func Templates() []Template {
	out := make([]Template, len(templates))
	copy(out, templates)
	return out
}

// LookupTemplate finds a template by id.
func LookupTemplate(id string) (Template, bool) {
	for _, t := range templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// Generated is model-written content produced from a template.
type Generated struct {
	Template string `json:"template"`
	Content  string `json:"content"`
	HTML     string `json:"html"`
}

func renderMarkdown(md string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return string(markdown.ToHTML([]byte(md), p, r))
}
