// Package deletion removes an artifact from the index and then the store.
//
// There is no transaction across the two systems. The index goes first so
// deleted content can never answer a query; if that fails the store is left
// untouched.
package deletion

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/classify"
	"github.com/starford/kbsync/internal/models"
	"github.com/starford/kbsync/internal/storage"
)

// State is a step of a deletion.
type State string

const (
	StateRequested         State = "requested"
	StateIndexRemoving     State = "index-removing"
	StateStoreDeleting     State = "store-deleting"
	StateCompleted         State = "completed"
	StateIndexRemoveFailed State = "index-remove-failed"
	StateStoreDeleteFailed State = "store-delete-failed"
)

// StoreDeleteGuidance is attached to store-delete failures.
const StoreDeleteGuidance = "the artifact was removed from the search index but is still in the store; delete it manually"

// Request names one artifact.
type Request struct {
	Bucket string `json:"bucket"`
	Folder string `json:"folder"`
	Name   string `json:"name"`
}

// Partition returns the request's partition.
func (r Request) Partition() models.Partition {
	return models.Partition{Bucket: r.Bucket, Folder: r.Folder}
}

// Path returns the fully-qualified index key.
func (r Request) Path() string {
	return r.Partition().QualifiedPath(r.Name)
}

// Result reports how far a deletion got.
type Result struct {
	Path   string  `json:"path"`
	State  State   `json:"state"`
	Trace  []State `json:"trace"`
	Reason string  `json:"reason,omitempty"`
}

// IndexRemover is the index side of a deletion.
type IndexRemover interface {
	Remove(ctx context.Context, path string) error
}

// Coordinator runs deletions. A second deletion of a path that is already
// in flight fails with a conflict.
type Coordinator struct {
	index  IndexRemover
	store  storage.Remover
	logger *slog.Logger

	inflight sync.Map
}

// New creates a Coordinator.
func New(idx IndexRemover, store storage.Remover, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{index: idx, store: store, logger: logger}
}

// Delete runs Requested -> IndexRemoving -> StoreDeleting -> Completed. The
// returned error is an apperr of kind InvalidRequest, Conflict,
// IndexRemoveFailed or StoreDeleteFailed; the Result is filled either way.
func (c *Coordinator) Delete(ctx context.Context, req Request) (Result, error) {
	res := Result{Path: req.Path()}
	res.step(StateRequested)

	if err := validate(req); err != nil {
		return res, err
	}

	path := req.Path()
	if _, busy := c.inflight.LoadOrStore(path, struct{}{}); busy {
		return res, apperr.New(apperr.KindConflict, "delete", path, "a deletion of this artifact is already in progress")
	}
	defer c.inflight.Delete(path)

	res.step(StateIndexRemoving)
	if err := c.index.Remove(ctx, path); err != nil {
		res.step(StateIndexRemoveFailed)
		res.Reason = err.Error()
		c.logger.Warn("deletion: index remove failed, store untouched",
			slog.String("path", path), slog.String("error", err.Error()))
		return res, &apperr.Error{Kind: apperr.KindIndexRemoveFailed, Op: "delete", Path: path, Err: err}
	}

	res.step(StateStoreDeleting)
	if err := c.store.Remove(ctx, req.Partition(), req.Name); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// Already gone from the store; the index is now consistent with it.
			c.logger.Info("deletion: object already absent", slog.String("path", path))
		} else {
			res.step(StateStoreDeleteFailed)
			res.Reason = err.Error()
			c.logger.Error("deletion: store delete failed after index removal",
				slog.String("path", path), slog.String("error", err.Error()))
			return res, &apperr.Error{
				Kind: apperr.KindStoreDeleteFailed, Op: "delete", Path: path,
				Msg: StoreDeleteGuidance, Err: err,
			}
		}
	}

	res.step(StateCompleted)
	c.logger.Info("deletion: completed", slog.String("path", path))
	return res, nil
}

func (r *Result) step(s State) {
	r.State = s
	r.Trace = append(r.Trace, s)
}

func validate(req Request) error {
	var missing []string
	if strings.TrimSpace(req.Bucket) == "" {
		missing = append(missing, "bucket")
	}
	if strings.TrimSpace(req.Folder) == "" {
		missing = append(missing, "folder")
	}
	if strings.TrimSpace(req.Name) == "" {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		return apperr.New(apperr.KindInvalidRequest, "delete", req.Path(),
			"a fully-qualified path is required; missing "+strings.Join(missing, ", "))
	}
	for _, seg := range []string{req.Bucket, req.Folder, req.Name} {
		if err := classify.CheckName(seg); err != nil {
			return apperr.New(apperr.KindInvalidRequest, "delete", req.Path(), "invalid path segment "+`"`+seg+`"`)
		}
	}
	return nil
}
