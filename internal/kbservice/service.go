// Package kbservice orchestrates the ingestion pipeline: routing, store
// writes, conversion jobs, index synchronisation, catalog and deletion.
package kbservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/catalog"
	"github.com/starford/kbsync/internal/checksum"
	"github.com/starford/kbsync/internal/classify"
	"github.com/starford/kbsync/internal/deletion"
	"github.com/starford/kbsync/internal/index"
	"github.com/starford/kbsync/internal/models"
	"github.com/starford/kbsync/internal/storage"
	"github.com/starford/kbsync/internal/transform"
)

// Service is the pipeline entry point shared by the HTTP API, the MCP
// server and the CLI.
type Service struct {
	store     storage.Provider
	index     index.Synchronizer
	searcher  index.Searcher
	jobs      *transform.Manager
	catalog   *catalog.Reconciler
	deleter   *deletion.Coordinator
	locations []string
	workers   int
	now       func() time.Time
	logger    *slog.Logger
	hidden    []string
}

// Option configures a Service.
type Option func(*Service)

// WithSearcher enables Search. Only the local index driver can answer queries.
func WithSearcher(s index.Searcher) Option {
	return func(svc *Service) { svc.searcher = s }
}

// WithLocations restricts scheduling note locations.
func WithLocations(locs []string) Option {
	return func(svc *Service) { svc.locations = locs }
}

// WithHidden hides objects by name in the catalog.
func WithHidden(names []string) Option {
	return func(svc *Service) { svc.hidden = names }
}

// WithWorkers bounds the rebuild worker pool.
func WithWorkers(n int) Option {
	return func(svc *Service) {
		if n > 0 {
			svc.workers = n
		}
	}
}

// WithNow overrides the clock stamping new notes.
func WithNow(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) { svc.logger = l }
}

// New wires a Service.
func New(store storage.Provider, idx index.Synchronizer, jobs *transform.Manager, opts ...Option) *Service {
	s := &Service{
		store:   store,
		index:   idx,
		jobs:    jobs,
		workers: max(runtime.NumCPU()/2, 1),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.catalog = catalog.New(store, catalog.WithHidden(s.hidden...), catalog.WithLogger(s.logger))
	s.deleter = deletion.New(idx, store, s.logger)
	return s
}

// UploadRequest is a document upload.
type UploadRequest struct {
	Filename          string
	DeclaredExtension string
	Category          string
	Data              []byte
	Overwrite         bool
	// Priority weights search hits, 1 (highest) to 3. Zero means 3.
	Priority int
}

// WriteResult describes a stored artifact and what happened after the write.
type WriteResult struct {
	Artifact  models.Artifact `json:"artifact"`
	Path      string          `json:"path"`
	Locator   string          `json:"locator"`
	UpdatedAt time.Time       `json:"updated_at"`
	Checksum  string          `json:"checksum"`
	// Searchable is false when the artifact is stored but has no index
	// record, either by policy or because the index call failed.
	Searchable bool   `json:"searchable"`
	SyncError  string `json:"sync_error,omitempty"`
	// Job is set for uploads that start a conversion.
	Job *transform.Job `json:"job,omitempty"`
}

// UploadDocument routes, stores and then converts or indexes a file.
// Validation failures make no external call. A conversion trigger failure
// is returned after the write succeeded; an index failure is reported in
// the result instead.
func (s *Service) UploadDocument(ctx context.Context, req UploadRequest) (*WriteResult, error) {
	a, err := classify.RouteDocument(req.Category, req.DeclaredExtension, req.Filename)
	if err != nil {
		return nil, err
	}
	if req.Priority == 0 {
		req.Priority = index.PriorityDefault
	}
	if err := index.CheckPriority(req.Priority); err != nil {
		return nil, err
	}
	if len(req.Data) == 0 {
		return nil, apperr.New(apperr.KindValidation, "upload", a.Path(), "file is empty")
	}
	return s.write(ctx, "upload", a, req.Data, req.Overwrite, req.Priority)
}

// SaveNote validates, encodes and stores a note, then indexes it.
func (s *Service) SaveNote(ctx context.Context, n *models.Note, overwrite bool) (*WriteResult, error) {
	n.Title = strings.TrimSpace(n.Title)
	n.Location = strings.TrimSpace(n.Location)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	if err := n.Validate(s.locations...); err != nil {
		return nil, apperr.New(apperr.KindValidation, "save note", "", err.Error())
	}
	a, err := classify.RouteNote(n)
	if err != nil {
		return nil, err
	}
	if err := classify.CheckName(a.Name); err != nil {
		return nil, err
	}
	data, err := n.Encode()
	if err != nil {
		return nil, fmt.Errorf("kbservice: encode note: %w", err)
	}
	return s.write(ctx, "save note", a, data, overwrite, index.PriorityNote)
}

func (s *Service) write(ctx context.Context, op string, a models.Artifact, data []byte, overwrite bool, priority int) (*WriteResult, error) {
	put, err := s.store.Put(ctx, a.Partition, a.Name, data, storage.PutOptions{
		Overwrite:   overwrite,
		ContentType: storage.ContentType(a.Name),
	})
	if err != nil {
		return nil, err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = put.UpdatedAt
	}
	res := &WriteResult{
		Artifact:  a,
		Path:      a.Path(),
		Locator:   put.Locator,
		UpdatedAt: put.UpdatedAt,
		Checksum:  checksum.Sum(data),
	}
	s.logger.Info("kbservice: stored",
		slog.String("op", op),
		slog.String("path", res.Path),
		slog.Int("bytes", len(data)),
		slog.String("checksum", checksum.Short(res.Checksum)))

	if classify.NeedsTransform(a) {
		job, err := s.jobs.Start(ctx, a)
		res.Job = &job
		return res, err
	}
	if !classify.Indexable(a) {
		return res, nil
	}

	doc, err := index.NewDocument(a, data, priority)
	if err == nil {
		err = s.index.Add(ctx, doc)
	}
	if err != nil {
		res.SyncError = err.Error()
		s.logger.Warn("kbservice: stored but not searchable",
			slog.String("path", res.Path), slog.String("error", err.Error()))
		return res, nil
	}
	res.Searchable = true
	return res, nil
}

// Delete removes an artifact from the index, then from the store.
func (s *Service) Delete(ctx context.Context, req deletion.Request) (deletion.Result, error) {
	return s.deleter.Delete(ctx, req)
}

// CatalogView is a filtered catalog listing.
type CatalogView struct {
	Entries  []models.CatalogEntry `json:"entries"`
	Summary  catalog.Summary       `json:"summary"`
	Warnings []string              `json:"warnings,omitempty"`
}

// Catalog lists every partition and applies f. Partitions that fail to list
// become warnings; the rest is still returned.
func (s *Service) Catalog(ctx context.Context, f catalog.Filter) (*CatalogView, error) {
	entries, err := s.catalog.List(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	view := &CatalogView{Entries: f.Apply(entries)}
	view.Summary = catalog.Summarize(view.Entries)
	if err != nil {
		view.Warnings = splitJoined(err)
	}
	return view, nil
}

// Locate describes a stored object from its path. The category is derived
// from the folder, the kind from the extension.
func (s *Service) Locate(bucket, folder, name string) (models.Artifact, error) {
	for _, seg := range []string{bucket, folder, name} {
		if err := classify.CheckName(seg); err != nil {
			return models.Artifact{}, apperr.New(apperr.KindInvalidRequest, "locate", bucket+"/"+folder+"/"+name, err.Error())
		}
	}
	cat, ok := classify.CategoryForFolder(folder)
	if !ok {
		return models.Artifact{}, apperr.New(apperr.KindInvalidRequest, "locate", bucket+"/"+folder+"/"+name,
			fmt.Sprintf("unknown folder %q", folder))
	}
	return models.Artifact{
		Name:      name,
		Kind:      classify.KindForName(name),
		Category:  cat,
		Partition: models.Partition{Bucket: bucket, Folder: folder},
		Extension: models.Ext(name),
	}, nil
}

// StartTransform re-triggers the conversion of a stored source file, e.g.
// after a timeout.
func (s *Service) StartTransform(ctx context.Context, bucket, folder, name string) (transform.Job, error) {
	a, err := s.Locate(bucket, folder, name)
	if err != nil {
		return transform.Job{}, err
	}
	if _, err := s.store.Get(ctx, a.Partition, a.Name); err != nil {
		return transform.Job{}, err
	}
	return s.jobs.Start(ctx, a)
}

// Job returns a conversion job snapshot.
func (s *Service) Job(id string) (transform.Job, error) { return s.jobs.Get(id) }

// Jobs lists tracked conversion jobs.
func (s *Service) Jobs() []transform.Job { return s.jobs.List() }

// CancelJob stops polling for a job.
func (s *Service) CancelJob(id string) (transform.Job, error) {
	if err := s.jobs.Cancel(id); err != nil {
		return transform.Job{}, err
	}
	return s.jobs.Get(id)
}

// Search queries the index.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error) {
	if s.searcher == nil {
		return nil, apperr.New(apperr.KindInvalidRequest, "search", "", "search requires the local index driver")
	}
	if strings.TrimSpace(query) == "" {
		return nil, apperr.New(apperr.KindValidation, "search", "", "query is required")
	}
	return s.searcher.Search(ctx, query, limit)
}

// ResetIndex drops every index record.
func (s *Service) ResetIndex(ctx context.Context) error {
	return s.index.Reset(ctx)
}

func splitJoined(err error) []string {
	var multi interface{ Unwrap() []error }
	if errors.As(err, &multi) {
		var out []string
		for _, e := range multi.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
