package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/vaultsync/internal/db"
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS vault_files (
	path TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	action TEXT NOT NULL,
	fingerprint TEXT NOT NULL DEFAULT '',
	mtime INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS vault_versions (
	path TEXT NOT NULL,
	mtime INTEGER NOT NULL,
	size INTEGER NOT NULL,
	PRIMARY KEY (path, mtime)
);

CREATE INDEX IF NOT EXISTS idx_vault_files_action ON vault_files(action);
`

// dbFileMetadata mirrors a vault_files row
type dbFileMetadata struct {
	Path        string `db:"path"`
	Kind        string `db:"kind"`
	Action      string `db:"action"`
	Fingerprint string `db:"fingerprint"`
	MTime       int64  `db:"mtime"`
}

// index keeps metadata records and the version catalogue in SQLite.
// Version content itself lives in a Backend.
type index struct {
	db *sqlx.DB
}

func newIndex(sqldb *sqlx.DB) (*index, error) {
	if err := db.Migrate(sqldb, indexSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize vault index: %w", err)
	}
	return &index{db: sqldb}, nil
}

func (ix *index) GetMetadata(ctx context.Context, path string) (*FileMetadata, error) {
	var row dbFileMetadata
	err := ix.db.GetContext(ctx, &row,
		"SELECT path, kind, action, fingerprint, mtime FROM vault_files WHERE path = ?", path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("query metadata %s: %w", path, err)
	}

	return &FileMetadata{
		Path:        row.Path,
		Kind:        Kind(row.Kind),
		Action:      Action(row.Action),
		Fingerprint: row.Fingerprint,
		MTime:       row.MTime,
	}, nil
}

func (ix *index) PutMetadata(ctx context.Context, meta *FileMetadata) error {
	_, err := ix.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO vault_files (path, kind, action, fingerprint, mtime) VALUES (?, ?, ?, ?, ?)`,
		meta.Path, string(meta.Kind), string(meta.Action), meta.Fingerprint, meta.MTime,
	)
	if err != nil {
		return fmt.Errorf("write metadata %s: %w", meta.Path, err)
	}
	return nil
}

func (ix *index) ListPaths(ctx context.Context) ([]string, error) {
	var paths []string
	if err := ix.db.SelectContext(ctx, &paths, "SELECT path FROM vault_files"); err != nil {
		return nil, fmt.Errorf("list paths: %w", err)
	}
	return paths, nil
}

func (ix *index) ListVersions(ctx context.Context, path string) ([]Version, error) {
	var versions []Version
	err := ix.db.SelectContext(ctx, &versions,
		"SELECT path, mtime, size FROM vault_versions WHERE path = ? ORDER BY mtime DESC", path)
	if err != nil {
		return nil, fmt.Errorf("list versions %s: %w", path, err)
	}
	return versions, nil
}

func (ix *index) PutVersion(ctx context.Context, v Version) error {
	_, err := ix.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO vault_versions (path, mtime, size) VALUES (?, ?, ?)`,
		v.Path, v.MTime, v.Size,
	)
	if err != nil {
		return fmt.Errorf("write version %s@%d: %w", v.Path, v.MTime, err)
	}
	return nil
}

func (ix *index) RemoveVersion(ctx context.Context, path string, mtime int64) error {
	_, err := ix.db.ExecContext(ctx, "DELETE FROM vault_versions WHERE path = ? AND mtime = ?", path, mtime)
	if err != nil {
		return fmt.Errorf("remove version %s@%d: %w", path, mtime, err)
	}
	return nil
}

// subtreeClause matches a path and everything below it. '0' sorts right
// after '/', so the half-open range covers exactly the "path/" prefix.
const subtreeClause = "(path = ? OR (path >= ? AND path < ?))"

func subtreeArgs(path string) []any {
	return []any{path, path + "/", path + "0"}
}

func (ix *index) SubtreeVersions(ctx context.Context, path string) ([]Version, error) {
	var versions []Version
	err := ix.db.SelectContext(ctx, &versions,
		"SELECT path, mtime, size FROM vault_versions WHERE "+subtreeClause, subtreeArgs(path)...)
	if err != nil {
		return nil, fmt.Errorf("list subtree versions %s: %w", path, err)
	}
	return versions, nil
}

func (ix *index) RemoveSubtree(ctx context.Context, path string) error {
	tx, err := ix.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM vault_versions WHERE "+subtreeClause, subtreeArgs(path)...); err != nil {
		return fmt.Errorf("remove subtree versions %s: %w", path, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM vault_files WHERE "+subtreeClause, subtreeArgs(path)...); err != nil {
		return fmt.Errorf("remove subtree metadata %s: %w", path, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (ix *index) Count(ctx context.Context) (int, error) {
	var count int
	if err := ix.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM vault_files"); err != nil {
		return 0, err
	}
	return count, nil
}
