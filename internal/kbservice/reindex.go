package kbservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/starford/kbsync/internal/catalog"
	"github.com/starford/kbsync/internal/classify"
	"github.com/starford/kbsync/internal/index"
	"github.com/starford/kbsync/internal/models"
)

// ReindexReport summarises a rebuild.
type ReindexReport struct {
	Indexed  int      `json:"indexed"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Reindex resets the index and re-adds every indexable artifact from the
// store. Documents come back at the default priority.
func (s *Service) Reindex(ctx context.Context) (*ReindexReport, error) {
	if err := s.index.Reset(ctx); err != nil {
		return nil, err
	}
	view, err := s.Catalog(ctx, catalog.Filter{})
	if err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return nil, fmt.Errorf("kbservice: worker pool: %w", err)
	}
	defer pool.Release()

	report := &ReindexReport{Warnings: view.Warnings}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, err.Error())
			return
		}
		report.Indexed++
	}

	for _, e := range view.Entries {
		a := artifactFor(e)
		if !classify.Indexable(a) {
			report.Skipped++
			continue
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			record(s.reindexOne(ctx, a))
		}); err != nil {
			wg.Done()
			record(fmt.Errorf("kbservice: submit %s: %w", a.Path(), err))
		}
	}
	wg.Wait()

	s.logger.Info("kbservice: reindex finished",
		slog.Int("indexed", report.Indexed),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed))
	return report, ctx.Err()
}

func (s *Service) reindexOne(ctx context.Context, a models.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.store.Get(ctx, a.Partition, a.Name)
	if err != nil {
		return err
	}
	doc, err := index.NewDocument(a, data, index.PriorityDefault)
	if err != nil {
		return err
	}
	return s.index.Add(ctx, doc)
}

func artifactFor(e models.CatalogEntry) models.Artifact {
	return models.Artifact{
		Name:      e.Name,
		Kind:      e.Kind,
		Category:  e.Category,
		Partition: e.Partition,
		Extension: models.Ext(e.Name),
		CreatedAt: e.UpdatedAt,
	}
}
