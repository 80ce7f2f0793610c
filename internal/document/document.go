// Package document turns uploaded files into plain text.
package document

import (
	"bytes"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const (
	PreviewRunes = 2000

	maxKeywords   = 50
	minKeywordLen = 4
)

// Kind classifies an uploaded file.
type Kind string

const (
	KindText   Kind = "text"
	KindHTML   Kind = "html"
	KindBinary Kind = "binary"
)

// Detect decides how to read a file from its content type, name and bytes.
func Detect(filename, contentType string, data []byte) Kind {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case mediaType == "text/html" || ext == ".html" || ext == ".htm":
		return KindHTML
	case strings.HasPrefix(mediaType, "text/"), ext == ".txt", ext == ".md":
		return KindText
	case bytes.HasPrefix(data, []byte("%PDF")), mediaType == "application/pdf":
		return KindBinary
	case utf8.Valid(data):
		return KindText
	default:
		return KindBinary
	}
}

// Extract returns the readable text of an uploaded file. HTML is converted to
// markdown; everything else is decoded leniently as UTF-8 with control
// characters removed.
func Extract(filename, contentType string, data []byte) (string, error) {
	switch Detect(filename, contentType, data) {
	case KindHTML:
		md, err := htmltomarkdown.ConvertString(string(data))
		if err != nil {
			return "", fmt.Errorf("convert html to markdown: %w", err)
		}
		return strings.TrimSpace(md), nil
	default:
		return Sanitize(data), nil
	}
}

// Sanitize drops invalid UTF-8 and control characters and collapses blank runs.
func Sanitize(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))

	blank := 0
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if r == utf8.RuneError && size <= 1 {
			continue
		}
		switch {
		case r == '\n':
			blank++
			if blank <= 2 {
				b.WriteRune(r)
			}
			continue
		case r == '\t':
			r = ' '
		case unicode.IsControl(r) || r == '\uFEFF':
			continue
		}
		if !unicode.IsSpace(r) {
			blank = 0
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// Preview shortens text to n runes.
func Preview(text string, n int) string {
	if n <= 0 {
		n = PreviewRunes
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

// Keywords picks candidate keywords from a job description: words longer
// than three characters, trimmed of trailing punctuation, de-duplicated in
// order of appearance, at most 50.
func Keywords(text string) []string {
	out := make([]string, 0, maxKeywords)
	seen := make(map[string]struct{})
	for _, word := range strings.Fields(text) {
		if len(out) == maxKeywords {
			break
		}
		if utf8.RuneCountInString(word) < minKeywordLen {
			continue
		}
		word = strings.Trim(word, ".,;:!?()\"'")
		if word == "" {
			continue
		}
		key := strings.ToLower(word)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, word)
	}
	return out
}
