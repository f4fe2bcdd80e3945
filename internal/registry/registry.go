// Package registry keeps the SQLite-backed mapping from working directories to
// global-project trees.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/mind/internal/apperr"
	"github.com/starford/mind/internal/checksum"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS projects (
	cwd        TEXT PRIMARY KEY,
	key        TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Project maps one working directory to its tree directory key.
type Project struct {
	Cwd       string
	Key       string
	CreatedAt time.Time
}

// Registry defines the project mapping operations.
// Consumers should depend on this interface rather than the concrete *DB type.
type Registry interface {
	Lookup(ctx context.Context, cwd string) (Project, bool, error)
	Register(ctx context.Context, cwd string) (Project, error)
	Unregister(ctx context.Context, cwd string) error
	List(ctx context.Context) ([]Project, error)
	Close() error
}

// Verify *DB satisfies Registry at compile time.
var _ Registry = (*DB)(nil)

// DB wraps a sql.DB with registry operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("registry: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// KeyFor derives the tree directory name for a working directory.
func KeyFor(cwd string) string {
	return checksum.Sum([]byte(cwd))[:16]
}

// normalize cleans cwd. Matching is exact on the cleaned absolute path.
func normalize(cwd string) (string, error) {
	if !filepath.IsAbs(cwd) {
		return "", fmt.Errorf("registry: working directory must be absolute: %q", cwd)
	}
	return filepath.Clean(cwd), nil
}

// Lookup returns the project registered for exactly cwd.
func (db *DB) Lookup(ctx context.Context, cwd string) (Project, bool, error) {
	cwd, err := normalize(cwd)
	if err != nil {
		return Project{}, false, err
	}
	var p Project
	err = db.conn.QueryRowContext(ctx,
		`SELECT cwd, key, created_at FROM projects WHERE cwd = ?`, cwd,
	).Scan(&p.Cwd, &p.Key, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, false, nil
	}
	if err != nil {
		return Project{}, false, fmt.Errorf("registry: lookup: %w", err)
	}
	return p, true, nil
}

// Register maps cwd to a new project key. Registering the same directory twice
// fails with apperr.ErrAlreadyExists.
func (db *DB) Register(ctx context.Context, cwd string) (Project, error) {
	cwd, err := normalize(cwd)
	if err != nil {
		return Project{}, err
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Project{}, fmt.Errorf("registry: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM projects WHERE cwd = ?`, cwd).Scan(&n); err != nil {
		return Project{}, fmt.Errorf("registry: check: %w", err)
	}
	if n > 0 {
		return Project{}, fmt.Errorf("%w: project for %s", apperr.ErrAlreadyExists, cwd)
	}

	p := Project{Cwd: cwd, Key: KeyFor(cwd), CreatedAt: time.Now().UTC().Truncate(time.Second)}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO projects (cwd, key, created_at) VALUES (?, ?, ?)`,
		p.Cwd, p.Key, p.CreatedAt,
	); err != nil {
		return Project{}, fmt.Errorf("registry: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Project{}, fmt.Errorf("registry: commit: %w", err)
	}
	return p, nil
}

// Unregister removes the mapping for cwd. The tree file is left on disk.
func (db *DB) Unregister(ctx context.Context, cwd string) error {
	cwd, err := normalize(cwd)
	if err != nil {
		return err
	}
	res, err := db.conn.ExecContext(ctx, `DELETE FROM projects WHERE cwd = ?`, cwd)
	if err != nil {
		return fmt.Errorf("registry: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: no project for %s", apperr.ErrNotFound, cwd)
	}
	return nil
}

// List returns every registered project ordered by working directory.
func (db *DB) List(ctx context.Context) ([]Project, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT cwd, key, created_at FROM projects ORDER BY cwd`)
	if err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.Cwd, &p.Key, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
