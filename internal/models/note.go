package models

import (
	"encoding/json"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// NoteExtension is the file extension of canonically encoded notes.
const NoteExtension = "json"

// Note is a structured artifact authored in the pipeline rather than uploaded.
type Note struct {
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	Category       Category   `json:"category"`
	Location       string     `json:"location,omitempty"`
	EffectiveStart *time.Time `json:"start_date,omitempty"`
	EffectiveEnd   *time.Time `json:"end_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Validate checks required fields. When locations is non-empty, a scheduling
// note's location must be one of them.
func (n *Note) Validate(locations ...string) error {
	isScheduling := n.Category == CategoryScheduling
	allowed := make([]interface{}, len(locations))
	for i, l := range locations {
		allowed[i] = l
	}

	return validation.ValidateStruct(n,
		validation.Field(&n.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&n.Content, validation.Required),
		validation.Field(&n.Category, validation.Required, validation.In(categoryValues()...)),
		validation.Field(&n.Location,
			validation.When(isScheduling, validation.Required.Error("is required for scheduling notes")),
			validation.When(isScheduling && len(allowed) > 0, validation.In(allowed...).Error("is not a known location")),
		),
		validation.Field(&n.EffectiveEnd, validation.By(func(interface{}) error {
			if n.EffectiveStart != nil && n.EffectiveEnd != nil && n.EffectiveEnd.Before(*n.EffectiveStart) {
				return validation.NewError("validation_end_before_start", "must not be before start_date")
			}
			return nil
		})),
	)
}

// ActiveOn reports whether the note's effective window contains day.
// Only the calendar date is compared.
func (n *Note) ActiveOn(day time.Time) bool {
	d := day.Format(time.DateOnly)
	if n.EffectiveStart != nil && n.EffectiveStart.Format(time.DateOnly) > d {
		return false
	}
	if n.EffectiveEnd != nil && n.EffectiveEnd.Format(time.DateOnly) < d {
		return false
	}
	return true
}

// Text returns the indexable form: title and content separated by a blank line.
func (n *Note) Text() string {
	if n.Title == "" {
		return n.Content
	}
	return n.Title + "\n\n" + n.Content
}

// Encode returns the canonical JSON encoding stored in the object store.
func (n *Note) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeNote parses a canonically encoded note.
func DecodeNote(data []byte) (*Note, error) {
	var n Note
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func categoryValues() []interface{} {
	out := make([]interface{}, len(Categories))
	for i, c := range Categories {
		out[i] = c
	}
	return out
}
