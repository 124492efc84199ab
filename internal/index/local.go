package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/checksum"
	"github.com/starford/kbsync/internal/parser"
)

// Record is the stored metadata of one indexed artifact.
type Record struct {
	Path      string
	Name      string
	Kind      string
	Category  string
	Title     string
	Tags      []string
	Priority  int
	Location  string
	StartDate string
	EndDate   string
	Checksum  string
	Chunks    int
	IndexedAt time.Time
}

// Add parses d, chunks its text and replaces any previous record for d.Path
// in one transaction. Unchanged content at the same priority is a no-op.
func (l *Local) Add(ctx context.Context, d Document) error {
	if d.Path == "" {
		return apperr.New(apperr.KindSync, "index add", "", "path is required")
	}
	sum := checksum.Sum(d.Data)
	if rec, err := l.Record(ctx, d.Path); err == nil && rec.Checksum == sum && rec.Priority == d.Priority {
		l.logger.Debug("index: unchanged", slog.String("path", d.Path))
		return nil
	}

	res, err := parser.Extract(d.Name, d.Data)
	if err != nil {
		return apperr.Wrap(apperr.KindSync, "index add", d.Path, err)
	}
	title := res.Title
	if title == "" {
		title = d.Name
	}
	chunks := parser.Chunk(res.Text, l.size, l.overlap)

	var vectors [][]float32
	if l.embedder != nil && len(chunks) > 0 {
		vectors, err = l.embedder.EmbedDocuments(ctx, chunks)
		if err != nil {
			return apperr.Wrap(apperr.KindSync, "index add", d.Path, fmt.Errorf("embed: %w", err))
		}
		if len(vectors) != len(chunks) {
			return apperr.New(apperr.KindSync, "index add", d.Path,
				fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)))
		}
	}

	if err := l.replace(ctx, d, title, res.Tags, sum, chunks, vectors); err != nil {
		return apperr.Wrap(apperr.KindSync, "index add", d.Path, err)
	}
	l.logger.Debug("index: added", slog.String("path", d.Path), slog.Int("chunks", len(chunks)))
	return nil
}

func (l *Local) replace(ctx context.Context, d Document, title string, tags []string, sum string, chunks []string, vectors [][]float32) error {
	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)

	if err := ftsDelete(tx, d.Path); err != nil {
		return fmt.Errorf("index: delete fts: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM chunks WHERE path = ?`, d.Path); err != nil {
		return fmt.Errorf("index: delete chunks: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO records (path, name, kind, category, title, tags, priority, location, start_date, end_date, checksum, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name       = excluded.name,
			kind       = excluded.kind,
			category   = excluded.category,
			title      = excluded.title,
			tags       = excluded.tags,
			priority   = excluded.priority,
			location   = excluded.location,
			start_date = excluded.start_date,
			end_date   = excluded.end_date,
			checksum   = excluded.checksum,
			indexed_at = excluded.indexed_at
	`, d.Path, d.Name, string(d.Kind), string(d.Category), title, string(tagsJSON), d.Priority,
		d.Location, dateOnly(d.EffectiveStart), dateOnly(d.EffectiveEnd), sum, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("index: upsert record: %w", err)
	}

	if len(chunks) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO chunks (path, seq, body, embedding) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare chunk insert: %w", err)
		}
		defer stmt.Close()
		joinedTags := string(tagsJSON)
		for i, body := range chunks {
			var blob []byte
			if vectors != nil {
				blob = encodeVector(vectors[i])
			}
			if _, err := stmt.Exec(d.Path, i, body, blob); err != nil {
				return fmt.Errorf("index: insert chunk: %w", err)
			}
			if err := ftsInsert(tx, d.Path, i, title, body, joinedTags); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// Remove deletes the record and its chunks. Removing an unknown path succeeds.
func (l *Local) Remove(ctx context.Context, path string) error {
	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindSync, "index remove", path, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(tx, path); err != nil {
		return apperr.Wrap(apperr.KindSync, "index remove", path, err)
	}
	if _, err := tx.Exec(`DELETE FROM records WHERE path = ?`, path); err != nil {
		return apperr.Wrap(apperr.KindSync, "index remove", path, err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindSync, "index remove", path, err)
	}
	l.logger.Debug("index: removed", slog.String("path", path))
	return nil
}

// Reset drops every record.
func (l *Local) Reset(ctx context.Context) error {
	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindSync, "index reset", "", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsReset(tx); err != nil {
		return apperr.Wrap(apperr.KindSync, "index reset", "", err)
	}
	if _, err := tx.Exec(`DELETE FROM records`); err != nil {
		return apperr.Wrap(apperr.KindSync, "index reset", "", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindSync, "index reset", "", err)
	}
	l.logger.Info("index: reset")
	return nil
}

// Record returns the stored metadata for path, or an apperr not-found error.
func (l *Local) Record(ctx context.Context, path string) (*Record, error) {
	var r Record
	var tags string
	err := l.conn.QueryRowContext(ctx, `
		SELECT r.path, r.name, r.kind, r.category, r.title, r.tags, r.priority,
		       r.location, r.start_date, r.end_date, r.checksum, r.indexed_at,
		       (SELECT count(*) FROM chunks c WHERE c.path = r.path)
		FROM records r WHERE r.path = ?
	`, path).Scan(&r.Path, &r.Name, &r.Kind, &r.Category, &r.Title, &tags, &r.Priority,
		&r.Location, &r.StartDate, &r.EndDate, &r.Checksum, &r.IndexedAt, &r.Chunks)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, "index record", path, "")
	}
	if err != nil {
		return nil, fmt.Errorf("index: get record: %w", err)
	}
	_ = json.Unmarshal([]byte(tags), &r.Tags)
	return &r, nil
}

// Paths returns every indexed path in sorted order.
func (l *Local) Paths(ctx context.Context) ([]string, error) {
	rows, err := l.conn.QueryContext(ctx, `SELECT path FROM records ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("index: all paths: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func dateOnly(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}
