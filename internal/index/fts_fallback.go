//go:build !sqlite_fts5

package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; full-text search uses LIKE on chunks.body.
	return nil
}

func ftsInsert(_ *sql.Tx, _ string, _ int, _, _, _ string) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) error { return nil }

func ftsReset(_ *sql.Tx) error { return nil }

// textSearch matches the query as a substring. Distance falls with the number
// of occurrences in the chunk, saturating at ten.
func (l *Local) textSearch(ctx context.Context, query, today string, limit int) ([]SearchResult, error) {
	like := "%" + query + "%"
	rows, err := l.conn.QueryContext(ctx, `
		SELECT c.path, r.title, r.kind, r.category, r.priority, c.body
		FROM chunks c
		JOIN records r ON r.path = c.path
		WHERE (c.body LIKE ? OR r.title LIKE ? OR r.tags LIKE ?) AND `+windowClause+`
		ORDER BY r.priority, c.path, c.seq
		LIMIT ?
	`, like, like, like, today, today, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	needle := strings.ToLower(query)
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var body string
		if err := rows.Scan(&r.Path, &r.Title, &r.Kind, &r.Category, &r.Priority, &body); err != nil {
			return nil, err
		}
		hits := min(strings.Count(strings.ToLower(body), needle), 10)
		r.Distance = 1 - float64(hits)/20
		r.Snippet = snippet(body, 200)
		out = append(out, r)
	}
	return out, rows.Err()
}
