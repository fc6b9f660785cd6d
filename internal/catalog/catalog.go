// Package catalog provides a SQLite-backed registry of uploaded papers and
// their indexing status. The registry survives restarts, so operators can see
// which uploads are still pending, which are searchable, and which failed,
// even though the vector index itself is the source of truth for retrieval.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Status tracks an upload through the indexing pipeline.
type Status string

const (
	// StatusPending means the upload is queued or being indexed.
	StatusPending Status = "pending"
	// StatusIndexed means the paper's vectors are searchable.
	StatusIndexed Status = "indexed"
	// StatusFailed means indexing failed; Error carries the reason.
	StatusFailed Status = "failed"
)

// Upload is one registered paper.
type Upload struct {
	// ID is the document ID assigned at upload time.
	ID string
	// Filename is the original name of the uploaded file.
	Filename string
	// Title is the extracted paper title.
	Title string
	// Status is the upload's position in the indexing pipeline.
	Status Status
	// Error is the failure reason when Status is StatusFailed.
	Error string
	// CreatedAt is when the upload was registered.
	CreatedAt time.Time
	// UpdatedAt is when the status last changed.
	UpdatedAt time.Time
}

// Catalog persists upload records. Safe for concurrent use.
type Catalog struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the upload catalog database.
// It resolves to ~/.scichat/uploads.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("catalog: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".scichat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("catalog: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "uploads.db"), nil
}

// Open opens (or creates) a Catalog at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*Catalog, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	c := &Catalog{db: db}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// migrate creates the schema if it does not already exist.
func (c *Catalog) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS uploads (
    id          TEXT    PRIMARY KEY,
    filename    TEXT    NOT NULL,
    title       TEXT    NOT NULL,
    status      TEXT    NOT NULL CHECK(status IN ('pending','indexed','failed')),
    error       TEXT    NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL,  -- Unix timestamp (seconds)
    updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_uploads_created
    ON uploads (created_at DESC);
`
	if _, err := c.db.Exec(ddl); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

// Record registers a new upload as pending. Re-uploading the same document ID
// resets its record, matching the overwrite semantics of the vector index.
func (c *Catalog) Record(ctx context.Context, id, filename, title string) error {
	const q = `
INSERT INTO uploads (id, filename, title, status, error, created_at, updated_at)
VALUES (?, ?, ?, ?, '', ?, ?)
ON CONFLICT(id) DO UPDATE SET
    filename = excluded.filename,
    title    = excluded.title,
    status   = excluded.status,
    error    = '',
    updated_at = excluded.updated_at`
	now := time.Now().Unix()
	if _, err := c.db.ExecContext(ctx, q, id, filename, title, string(StatusPending), now, now); err != nil {
		return fmt.Errorf("catalog: record: %w", err)
	}
	return nil
}

// MarkIndexed transitions an upload to indexed.
func (c *Catalog) MarkIndexed(ctx context.Context, id string) error {
	return c.setStatus(ctx, id, StatusIndexed, "")
}

// MarkFailed transitions an upload to failed with a reason.
func (c *Catalog) MarkFailed(ctx context.Context, id, reason string) error {
	return c.setStatus(ctx, id, StatusFailed, reason)
}

func (c *Catalog) setStatus(ctx context.Context, id string, status Status, reason string) error {
	const q = `UPDATE uploads SET status = ?, error = ?, updated_at = ? WHERE id = ?`
	res, err := c.db.ExecContext(ctx, q, string(status), reason, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("catalog: set status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("catalog: unknown upload %q", id)
	}
	return nil
}

// List returns all uploads, newest first.
func (c *Catalog) List(ctx context.Context) ([]Upload, error) {
	const q = `
SELECT id, filename, title, status, error, created_at, updated_at
FROM   uploads
ORDER  BY created_at DESC, id DESC`

	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		var u Upload
		var status string
		var created, updated int64
		if err := rows.Scan(&u.ID, &u.Filename, &u.Title, &status, &u.Error, &created, &updated); err != nil {
			return nil, fmt.Errorf("catalog: list scan: %w", err)
		}
		u.Status = Status(status)
		u.CreatedAt = time.Unix(created, 0)
		u.UpdatedAt = time.Unix(updated, 0)
		uploads = append(uploads, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list rows: %w", err)
	}
	return uploads, nil
}

// Get returns one upload by document ID.
func (c *Catalog) Get(ctx context.Context, id string) (*Upload, error) {
	const q = `
SELECT id, filename, title, status, error, created_at, updated_at
FROM   uploads WHERE id = ?`

	var u Upload
	var status string
	var created, updated int64
	err := c.db.QueryRowContext(ctx, q, id).
		Scan(&u.ID, &u.Filename, &u.Title, &status, &u.Error, &created, &updated)
	if err != nil {
		return nil, fmt.Errorf("catalog: get %q: %w", id, err)
	}
	u.Status = Status(status)
	u.CreatedAt = time.Unix(created, 0)
	u.UpdatedAt = time.Unix(updated, 0)
	return &u, nil
}

// Ping verifies the underlying database connection. Used by readiness probes.
func (c *Catalog) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("catalog: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (c *Catalog) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("catalog: close: %w", err)
	}
	return nil
}
