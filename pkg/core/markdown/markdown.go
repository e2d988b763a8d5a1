// Package markdown cleans and validates the narrative prose an AI provider
// returns before it is attached to a report section. Adapted from the
// teacher's pkg/core/utils/markdown.go (CleanMarkdown/ValidateMarkdown),
// narrowed to the narrative assembler's one call site.
package markdown

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/text"
)

// Clean strips conversational wrapper fences a model sometimes adds around
// its answer (```markdown ... ``` or a bare ``` ... ```).
func Clean(input string) string {
	cleaned := strings.TrimSpace(input)

	switch {
	case strings.HasPrefix(cleaned, "```markdown") && strings.HasSuffix(cleaned, "```"):
		cleaned = strings.TrimPrefix(cleaned, "```markdown")
		cleaned = strings.TrimSuffix(cleaned, "```")
	case strings.HasPrefix(cleaned, "```") && strings.HasSuffix(cleaned, "```"):
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}

	return strings.TrimSpace(cleaned)
}

// Valid reports whether input parses as Markdown at all. Goldmark is
// permissive, so this only catches the degenerate case of a reader that
// fails to produce a document.
func Valid(input string) bool {
	doc := goldmark.DefaultParser().Parse(text.NewReader([]byte(input)))
	return doc != nil
}
