// Package index keeps the search index in step with the object store.
//
// Two drivers implement Synchronizer: Remote talks to an external
// embedding/search service over HTTP, Local keeps chunks in SQLite and
// answers searches itself.
package index

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/models"
)

// Priorities weight search hits; lower ranks higher.
const (
	PriorityNote    = 1
	PriorityHigh    = 2
	PriorityDefault = 3
)

var priorityWeights = map[int]float64{
	PriorityNote:    0.3,
	PriorityHigh:    0.7,
	PriorityDefault: 1.0,
}

// Weight returns the distance multiplier for a priority. Unknown priorities
// weigh as the default.
func Weight(priority int) float64 {
	if w, ok := priorityWeights[priority]; ok {
		return w
	}
	return 1.0
}

// CheckPriority rejects priorities outside 1..3.
func CheckPriority(p int) error {
	if p < PriorityNote || p > PriorityDefault {
		return apperr.New(apperr.KindValidation, "index", "", fmt.Sprintf("priority %d is out of range 1-3", p))
	}
	return nil
}

// Document is what gets indexed for one artifact.
type Document struct {
	// Path is the fully-qualified bucket/folder/name key.
	Path     string
	Name     string
	Kind     models.Kind
	Category models.Category
	Priority int
	Data     []byte

	// Note metadata; empty for documents.
	Location       string
	EffectiveStart *time.Time
	EffectiveEnd   *time.Time
}

// NewDocument builds the index document for a stored artifact. Notes are
// decoded for their location and effective window and always get
// PriorityNote; a zero document priority becomes PriorityDefault.
func NewDocument(a models.Artifact, data []byte, priority int) (Document, error) {
	d := Document{
		Path:     a.Path(),
		Name:     a.Name,
		Kind:     a.Kind,
		Category: a.Category,
		Priority: priority,
		Data:     data,
	}
	if a.Kind == models.KindNote {
		n, err := models.DecodeNote(data)
		if err != nil {
			return Document{}, apperr.Wrap(apperr.KindValidation, "index", d.Path, err)
		}
		d.Priority = PriorityNote
		d.Location = n.Location
		d.EffectiveStart = n.EffectiveStart
		d.EffectiveEnd = n.EffectiveEnd
		return d, nil
	}
	if d.Priority == 0 {
		d.Priority = PriorityDefault
	}
	return d, CheckPriority(d.Priority)
}

// Synchronizer is the index side of the pipeline. Every failure is an
// apperr sync error carrying the path and the external message.
type Synchronizer interface {
	// Add creates or replaces the record for d.Path.
	Add(ctx context.Context, d Document) error
	// Remove deletes the record for path.
	Remove(ctx context.Context, path string) error
	// Reset drops every record.
	Reset(ctx context.Context) error
}

// SearchResult is one ranked hit.
type SearchResult struct {
	Path     string          `json:"path"`
	Title    string          `json:"title"`
	Kind     models.Kind     `json:"kind"`
	Category models.Category `json:"category"`
	Priority int             `json:"priority"`
	Snippet  string          `json:"snippet"`
	// Distance is the priority-weighted distance; lower is better.
	Distance float64 `json:"distance"`
}

// Searcher answers queries against indexed content.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

var (
	_ Synchronizer = (*Local)(nil)
	_ Searcher     = (*Local)(nil)
	_ Synchronizer = (*Remote)(nil)
)
