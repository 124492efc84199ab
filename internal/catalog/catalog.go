// Package catalog builds the unified, filterable view over every partition.
// Entries are computed from live listings on each call and never cached.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/starford/kbsync/internal/classify"
	"github.com/starford/kbsync/internal/models"
	"github.com/starford/kbsync/internal/storage"
)

// Source is the store surface the catalog reads.
type Source interface {
	storage.Lister
	PublicURL(p models.Partition, name string) string
}

// Reconciler lists partitions and projects objects into catalog entries.
type Reconciler struct {
	source     Source
	partitions []models.Partition
	hidden     map[string]bool
	logger     *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithHidden excludes objects with these names from every listing.
func WithHidden(names ...string) Option {
	return func(r *Reconciler) {
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				r.hidden[n] = true
			}
		}
	}
}

// WithPartitions overrides the scanned partitions.
func WithPartitions(ps ...models.Partition) Option {
	return func(r *Reconciler) { r.partitions = ps }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// New creates a Reconciler over every routed partition.
func New(source Source, opts ...Option) *Reconciler {
	r := &Reconciler{
		source:     source,
		partitions: classify.Partitions(),
		hidden:     make(map[string]bool),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Hidden reports whether name is excluded from the catalog. Dot-prefixed
// names (store placeholders, temp files) are always hidden.
func (r *Reconciler) Hidden(name string) bool {
	return strings.HasPrefix(name, ".") || r.hidden[name]
}

// List issues one listing per partition concurrently. Entries come back in
// partition order, then by name. When some partitions fail the entries of
// the others are still returned together with the joined errors.
func (r *Reconciler) List(ctx context.Context) ([]models.CatalogEntry, error) {
	results := make([][]models.CatalogEntry, len(r.partitions))
	errs := make([]error, len(r.partitions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range r.partitions {
		g.Go(func() error {
			objs, err := r.source.List(gctx, p)
			if err != nil {
				r.logger.Warn("catalog: list partition failed",
					slog.String("partition", p.String()),
					slog.String("error", err.Error()))
				errs[i] = fmt.Errorf("catalog: list %s: %w", p, err)
				return nil
			}
			results[i] = r.project(p, objs)
			return nil
		})
	}
	_ = g.Wait()

	var out []models.CatalogEntry
	for _, part := range results {
		out = append(out, part...)
	}
	return out, errors.Join(errs...)
}

func (r *Reconciler) project(p models.Partition, objs []storage.ObjectInfo) []models.CatalogEntry {
	category, ok := classify.CategoryForFolder(p.Folder)
	if !ok {
		category = models.CategoryOther
	}
	out := make([]models.CatalogEntry, 0, len(objs))
	for _, o := range objs {
		if r.Hidden(o.Name) {
			continue
		}
		out = append(out, models.CatalogEntry{
			Name:      o.Name,
			Kind:      classify.KindForName(o.Name),
			Category:  category,
			Partition: p,
			Path:      p.QualifiedPath(o.Name),
			URL:       r.source.PublicURL(p, o.Name),
			Size:      o.Size,
			UpdatedAt: o.Timestamp(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
