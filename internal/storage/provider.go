// Package storage defines the object store abstraction: named partitions
// (bucket + folder) holding flat objects.
package storage

import (
	"context"
	"mime"
	"strings"
	"time"

	"github.com/starford/kbsync/internal/models"
)

// ObjectInfo is one entry of a partition listing.
type ObjectInfo struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Timestamp returns the store-reported update time, falling back to the
// creation time when the store does not report one.
func (o ObjectInfo) Timestamp() time.Time {
	if !o.UpdatedAt.IsZero() {
		return o.UpdatedAt
	}
	return o.CreatedAt
}

// PutOptions controls a write.
type PutOptions struct {
	// Overwrite replaces an existing object instead of failing with a conflict.
	Overwrite bool
	// ContentType overrides the type derived from the name's extension.
	ContentType string
}

// PutResult describes a successful write.
//
// UpdatedAt is the write time as the driver observes it. The FS driver reads
// the file's modification time back. Supabase's upload response carries no
// timestamp, so that driver reports the local clock at acknowledgement; the
// authoritative store time is the one returned by List.
type PutResult struct {
	Locator   string    `json:"locator"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lister lists a partition.
type Lister interface {
	// List returns the objects directly inside p. A missing partition lists as empty.
	List(ctx context.Context, p models.Partition) ([]ObjectInfo, error)
}

// Remover deletes objects.
type Remover interface {
	// Remove deletes name from p.
	Remove(ctx context.Context, p models.Partition, name string) error
}

// Provider is the object store adapter, the system of record for artifact bytes.
type Provider interface {
	Lister
	Remover
	// Put stores data at p/name. Without Overwrite an existing object is an
	// apperr conflict; a rejected content type is an apperr unsupported-media error.
	Put(ctx context.Context, p models.Partition, name string, data []byte, opts PutOptions) (PutResult, error)
	// Get returns the bytes of p/name.
	Get(ctx context.Context, p models.Partition, name string) ([]byte, error)
	// PublicURL returns the public locator of p/name. It makes no network call.
	PublicURL(p models.Partition, name string) string
}

var contentTypes = map[string]string{
	"csv":     "text/csv",
	"tsv":     "text/tab-separated-values",
	"json":    "application/json",
	"md":      "text/markdown",
	"txt":     "text/plain",
	"pdf":     "application/pdf",
	"doc":     "application/msword",
	"docx":    "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":     "application/vnd.ms-excel",
	"xlsx":    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"pptx":    "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"parquet": "application/vnd.apache.parquet",
}

// ContentType returns the MIME type for name's extension.
func ContentType(name string) string {
	ext := models.Ext(name)
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension("." + ext); ct != "" {
		return strings.SplitN(ct, ";", 2)[0]
	}
	return "application/octet-stream"
}
