//go:build sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			path UNINDEXED,
			seq UNINDEXED,
			title,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(tx *sql.Tx, path string, seq int, title, body, tags string) error {
	_, err := tx.Exec(`INSERT INTO chunks_fts (path, seq, title, body, tags) VALUES (?, ?, ?, ?, ?)`,
		path, seq, title, body, tags)
	if err != nil {
		return fmt.Errorf("index: insert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) error {
	_, err := tx.Exec(`DELETE FROM chunks_fts WHERE path = ?`, path)
	return err
}

func ftsReset(tx *sql.Tx) error {
	_, err := tx.Exec(`DELETE FROM chunks_fts`)
	return err
}

// ftsQuery quotes every term so user input cannot inject FTS5 syntax.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(fields, " ")
}

// textSearch ranks chunks with bm25. The raw score is folded into (0, 1] so
// it composes with priority weights the same way a vector distance does.
func (l *Local) textSearch(ctx context.Context, query, today string, limit int) ([]SearchResult, error) {
	rows, err := l.conn.QueryContext(ctx, `
		SELECT f.path, r.title, r.kind, r.category, r.priority,
		       snippet(chunks_fts, 3, '<b>', '</b>', '...', 32),
		       bm25(chunks_fts)
		FROM chunks_fts f
		JOIN records r ON r.path = f.path
		WHERE chunks_fts MATCH ? AND `+windowClause+`
		ORDER BY bm25(chunks_fts)
		LIMIT ?
	`, ftsQuery(query), today, today, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var score float64
		if err := rows.Scan(&r.Path, &r.Title, &r.Kind, &r.Category, &r.Priority, &r.Snippet, &score); err != nil {
			return nil, err
		}
		r.Distance = 1 / (1 + math.Abs(score))
		out = append(out, r)
	}
	return out, rows.Err()
}
