// Package parser extracts indexable text from stored artifacts.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/starford/kbsync/internal/models"
)

var tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

// Result is the text view of an artifact.
type Result struct {
	Title       string
	Text        string
	Frontmatter map[string]interface{}
	Tags        []string
	// Note is set when the artifact is a canonically encoded note.
	Note *models.Note
}

// Empty reports whether there is nothing to index.
func (r *Result) Empty() bool {
	return r == nil || strings.TrimSpace(r.Text) == ""
}

// Extract dispatches on the extension of name. Formats without a text
// representation (pdf, office, parquet) return an empty result and no error;
// the caller decides whether to ship the raw bytes instead.
func Extract(name string, data []byte) (*Result, error) {
	switch models.Ext(name) {
	case "md", "markdown":
		return parseMarkdown(data), nil
	case models.NoteExtension:
		return parseNote(data)
	case "txt", "csv", "tsv":
		if !utf8.Valid(data) {
			return &Result{}, nil
		}
		return &Result{Title: strings.TrimSuffix(name, "."+models.Ext(name)), Text: string(data)}, nil
	}
	return &Result{}, nil
}

func parseNote(data []byte) (*Result, error) {
	n, err := models.DecodeNote(data)
	if err != nil {
		return nil, fmt.Errorf("parser: decode note: %w", err)
	}
	return &Result{Title: n.Title, Text: n.Text(), Note: n}, nil
}

func parseMarkdown(data []byte) *Result {
	fm, body := splitFrontmatter(data)
	return &Result{
		Title:       deriveTitle(fm, body),
		Text:        body,
		Frontmatter: fm,
		Tags:        extractTags(body, fm),
	}
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(rest[:idx], &fm); err != nil {
		// Invalid YAML: index the whole file as text.
		return nil, string(data)
	}
	return fm, body
}

// extractTags collects #tags from body and from the frontmatter "tags" list.
func extractTags(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	if list, ok := fm["tags"].([]interface{}); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if s, ok := fm["title"].(string); ok && s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
