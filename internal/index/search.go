package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

// windowClause keeps notes whose effective window contains the given day.
// Dates are stored as YYYY-MM-DD so string comparison orders them.
const windowClause = `(r.kind <> 'note' OR ((r.start_date = '' OR r.start_date <= ?) AND (r.end_date = '' OR r.end_date >= ?)))`

const defaultSearchLimit = 20

// Search returns the best hit per artifact, ranked by priority-weighted
// distance. Notes outside their effective window are excluded.
func (l *Local) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	today := l.now().In(l.zone).Format("2006-01-02")

	var (
		hits []SearchResult
		err  error
	)
	if l.embedder != nil {
		hits, err = l.vectorSearch(ctx, query, today)
	} else {
		// Over-fetch so deduplication by path still fills the page.
		hits, err = l.textSearch(ctx, query, today, limit*4)
	}
	if err != nil {
		return nil, err
	}
	return rank(hits, limit), nil
}

func (l *Local) vectorSearch(ctx context.Context, query, today string) ([]SearchResult, error) {
	qv, err := l.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("index: embed query: %w", err)
	}
	rows, err := l.conn.QueryContext(ctx, `
		SELECT c.path, r.title, r.kind, r.category, r.priority, c.body, c.embedding
		FROM chunks c
		JOIN records r ON r.path = c.path
		WHERE c.embedding IS NOT NULL AND `+windowClause, today, today)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var body string
		var blob []byte
		if err := rows.Scan(&r.Path, &r.Title, &r.Kind, &r.Category, &r.Priority, &body, &blob); err != nil {
			return nil, err
		}
		r.Distance = 1 - cosine(qv, decodeVector(blob))
		r.Snippet = snippet(body, 200)
		out = append(out, r)
	}
	return out, rows.Err()
}

// rank applies priority weights, keeps the best hit per path and truncates.
func rank(hits []SearchResult, limit int) []SearchResult {
	best := make(map[string]int, len(hits))
	var out []SearchResult
	for _, h := range hits {
		h.Distance *= Weight(h.Priority)
		if i, ok := best[h.Path]; ok {
			if h.Distance < out[i].Distance {
				out[i] = h
			}
			continue
		}
		best[h.Path] = len(out)
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func snippet(body string, n int) string {
	r := []rune(strings.TrimSpace(body))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
