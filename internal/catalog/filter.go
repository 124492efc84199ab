package catalog

import (
	"fmt"
	"strings"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/models"
)

// Filter is a pure predicate over catalog entries. Zero fields match anything.
type Filter struct {
	Query    string
	Kind     models.Kind
	Category models.Category
}

// NewFilter parses user input. Empty kind or category means "all"; unknown
// values are validation errors.
func NewFilter(query, kind, category string) (Filter, error) {
	f := Filter{Query: strings.TrimSpace(query)}
	if k := strings.TrimSpace(kind); k != "" && !strings.EqualFold(k, "all") {
		parsed, ok := models.ParseKind(k)
		if !ok {
			return Filter{}, apperr.New(apperr.KindValidation, "filter", "", fmt.Sprintf("unknown kind %q", kind))
		}
		f.Kind = parsed
	}
	if c := strings.TrimSpace(category); c != "" && !strings.EqualFold(c, "all") {
		parsed, ok := models.ParseCategory(c)
		if !ok {
			return Filter{}, apperr.New(apperr.KindValidation, "filter", "", fmt.Sprintf("unknown category %q", category))
		}
		f.Category = parsed
	}
	return f, nil
}

// Match reports whether e passes every set criterion. The query matches the
// name or category, case-insensitively.
func (f Filter) Match(e models.CatalogEntry) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.Query == "" {
		return true
	}
	q := strings.ToLower(f.Query)
	return strings.Contains(strings.ToLower(e.Name), q) ||
		strings.Contains(strings.ToLower(string(e.Category)), q)
}

// Apply returns the matching entries in their original order. The input is
// not modified.
func (f Filter) Apply(entries []models.CatalogEntry) []models.CatalogEntry {
	out := make([]models.CatalogEntry, 0, len(entries))
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Summary counts entries for display.
type Summary struct {
	Total      int                     `json:"total"`
	Documents  int                     `json:"documents"`
	Notes      int                     `json:"notes"`
	ByCategory map[models.Category]int `json:"by_category"`
}

// Summarize counts entries by kind and category.
func Summarize(entries []models.CatalogEntry) Summary {
	s := Summary{Total: len(entries), ByCategory: make(map[models.Category]int)}
	for _, e := range entries {
		switch e.Kind {
		case models.KindNote:
			s.Notes++
		default:
			s.Documents++
		}
		s.ByCategory[e.Category]++
	}
	return s
}
