// Package models defines the domain types of the ingestion pipeline.
package models

import (
	"path"
	"strings"
	"time"
)

// Kind distinguishes binary documents from structured notes.
type Kind string

const (
	KindDocument Kind = "document"
	KindNote     Kind = "note"
)

// ParseKind accepts "document", "note" and the legacy "protocol" alias.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "document", "documents", "protocol", "protocols":
		return KindDocument, true
	case "note", "notes":
		return KindNote, true
	}
	return "", false
}

// Category is the fixed catalog enumeration.
type Category string

const (
	CategoryLocationsRooms Category = "Locations/Rooms"
	CategoryGeneralTips    Category = "General Tips"
	CategoryPreps          Category = "Preps"
	CategoryScheduling     Category = "Scheduling"
	CategoryOther          Category = "Other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryLocationsRooms,
	CategoryGeneralTips,
	CategoryPreps,
	CategoryScheduling,
	CategoryOther,
}

// ParseCategory resolves display names ("General Tips") and slug forms
// ("general-tips", "general_tips", "locations/rooms") case-insensitively.
func ParseCategory(s string) (Category, bool) {
	key := categoryKey(s)
	if key == "" {
		return "", false
	}
	for _, c := range Categories {
		if categoryKey(string(c)) == key {
			return c, true
		}
	}
	return "", false
}

func categoryKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case ' ', '_', '-', '/':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Partition is a (bucket, folder) pair.
type Partition struct {
	Bucket string `json:"bucket"`
	Folder string `json:"folder"`
}

func (p Partition) String() string {
	return p.Bucket + "/" + p.Folder
}

// ObjectPath returns folder/name, the object key inside the bucket.
func (p Partition) ObjectPath(name string) string {
	return p.Folder + "/" + name
}

// QualifiedPath returns bucket/folder/name, the key used by the index.
func (p Partition) QualifiedPath(name string) string {
	return p.Bucket + "/" + p.Folder + "/" + name
}

// Artifact is an uploaded unit of content.
type Artifact struct {
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Category  Category  `json:"category"`
	Partition Partition `json:"partition"`
	Extension string    `json:"extension"`
	CreatedAt time.Time `json:"created_at"`
}

// Path returns the fully-qualified partition/name path.
func (a Artifact) Path() string {
	return a.Partition.QualifiedPath(a.Name)
}

// Ext returns the lower-cased extension of name without the leading dot.
func Ext(name string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
}

// CatalogEntry is the read projection shown to users.
type CatalogEntry struct {
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Category  Category  `json:"category"`
	Partition Partition `json:"partition"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
	Size      int64     `json:"size,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobStatus is the lifecycle state of a transformation job.
type JobStatus string

const (
	JobTriggered JobStatus = "triggered"
	JobPolling   JobStatus = "polling"
	JobSucceeded JobStatus = "succeeded"
	JobTimedOut  JobStatus = "timed-out"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobTimedOut || s == JobFailed
}
