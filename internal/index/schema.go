package index

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tmc/langchaingo/embeddings"

	"github.com/starford/kbsync/internal/parser"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	path       TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	category   TEXT NOT NULL DEFAULT '',
	title      TEXT NOT NULL DEFAULT '',
	tags       TEXT NOT NULL DEFAULT '[]',
	priority   INTEGER NOT NULL DEFAULT 3,
	location   TEXT NOT NULL DEFAULT '',
	start_date TEXT NOT NULL DEFAULT '',
	end_date   TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	indexed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chunks (
	path      TEXT NOT NULL REFERENCES records(path) ON DELETE CASCADE,
	seq       INTEGER NOT NULL,
	body      TEXT NOT NULL,
	embedding BLOB,
	PRIMARY KEY (path, seq)
);

CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind);
`

// Local is the SQLite index driver.
type Local struct {
	conn     *sql.DB
	embedder embeddings.Embedder
	zone     *time.Location
	now      func() time.Time
	size     int
	overlap  int
	logger   *slog.Logger
}

// LocalOption configures a Local index.
type LocalOption func(*Local)

// WithEmbedder enables vector search. Without one, search is full-text.
func WithEmbedder(e embeddings.Embedder) LocalOption {
	return func(l *Local) { l.embedder = e }
}

// WithTimeZone sets the zone in which "today" is computed for note windows.
func WithTimeZone(z *time.Location) LocalOption {
	return func(l *Local) {
		if z != nil {
			l.zone = z
		}
	}
}

// WithNow overrides the clock used for note windows.
func WithNow(now func() time.Time) LocalOption {
	return func(l *Local) { l.now = now }
}

// WithChunking sets chunk size and overlap in runes.
func WithChunking(size, overlap int) LocalOption {
	return func(l *Local) { l.size, l.overlap = size, overlap }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) { l.logger = logger }
}

// OpenLocal opens (or creates) the SQLite database and applies the schema.
func OpenLocal(dsn string, opts ...LocalOption) (*Local, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}

	l := &Local{
		conn:    conn,
		zone:    time.UTC,
		now:     time.Now,
		size:    parser.DefaultChunkSize,
		overlap: parser.DefaultChunkOverlap,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Close closes the underlying database connection.
func (l *Local) Close() error {
	return l.conn.Close()
}
