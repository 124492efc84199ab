package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/models"
	"github.com/starford/kbsync/internal/storage"
)

// ObjectGetter reads stored objects.
type ObjectGetter interface {
	Get(ctx context.Context, p models.Partition, name string) ([]byte, error)
}

// FileHandler serves objects of the filesystem store at their public locators.
type FileHandler struct {
	store ObjectGetter
}

// NewFileHandler creates a handler reading from store.
func NewFileHandler(store ObjectGetter) *FileHandler {
	return &FileHandler{store: store}
}

// ServeFile handles GET /files/{bucket}/{folder}/{name}.
func (h *FileHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	p := models.Partition{Bucket: chi.URLParam(r, "bucket"), Folder: chi.URLParam(r, "folder")}
	name := chi.URLParam(r, "name")
	data, err := h.store.Get(r.Context(), p, name)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", storage.ContentType(name))
	http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(data))
}
