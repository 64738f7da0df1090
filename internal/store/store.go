// Package store persists the recently opened repositories list in a small
// SQLite database under the user data directory.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS recent_repositories (
	path           TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	is_bare        INTEGER NOT NULL DEFAULT 0,
	last_opened_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recent_last_opened
	ON recent_repositories (last_opened_at DESC);
`

// RecentRepository is one entry of the recently opened list.
type RecentRepository struct {
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	IsBare       bool      `json:"is_bare"`
	LastOpenedAt time.Time `json:"last_opened_at"`
}

// Store wraps the SQLite connection. Safe for concurrent use; database/sql
// serializes access to the single connection we configure.
type Store struct {
	db *sql.DB
}

// DefaultPath places the database next to the config file.
func DefaultPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "recent.db")
}

// Open opens (creating if needed) the store at dbPath.
func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("open store: path required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("open store: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// modernc.org/sqlite is not safe for concurrent writers on separate
	// connections to the same file; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store: journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store: synchronous: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("open store: schema: %w", err)
	}

	slog.Debug("[DEBUG-STORE] recent repository store opened", "path", dbPath)
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Touch records that the repository at path was opened now, inserting it if
// unseen, then trims the list to limit entries (oldest dropped).
func (s *Store) Touch(ctx context.Context, repo RecentRepository, limit int) error {
	path := strings.TrimSpace(repo.Path)
	if path == "" {
		return fmt.Errorf("touch recent: path required")
	}
	name := strings.TrimSpace(repo.Name)
	if name == "" {
		name = filepath.Base(path)
	}
	openedAt := repo.LastOpenedAt
	if openedAt.IsZero() {
		openedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recent_repositories (path, name, is_bare, last_opened_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			is_bare = excluded.is_bare,
			last_opened_at = excluded.last_opened_at
	`, path, name, boolToInt(repo.IsBare), openedAt.Unix())
	if err != nil {
		return fmt.Errorf("touch recent: %w", err)
	}

	if limit > 0 {
		if err := s.trim(ctx, limit); err != nil {
			return err
		}
	}
	return nil
}

// List returns recent repositories ordered most recent first.
func (s *Store) List(ctx context.Context, limit int) ([]RecentRepository, error) {
	query := `
		SELECT path, name, is_bare, last_opened_at
		FROM recent_repositories
		ORDER BY last_opened_at DESC, path ASC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	defer rows.Close()

	repos := []RecentRepository{}
	for rows.Next() {
		var entry RecentRepository
		var bare int
		var openedUnix int64
		if err := rows.Scan(&entry.Path, &entry.Name, &bare, &openedUnix); err != nil {
			return nil, fmt.Errorf("list recent: scan: %w", err)
		}
		entry.IsBare = bare != 0
		entry.LastOpenedAt = time.Unix(openedUnix, 0)
		repos = append(repos, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	return repos, nil
}

// Remove deletes path from the recent list. Removing an absent path is not
// an error.
func (s *Store) Remove(ctx context.Context, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("remove recent: path required")
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM recent_repositories WHERE path = ?", path); err != nil {
		return fmt.Errorf("remove recent: %w", err)
	}
	return nil
}

// trim deletes everything beyond the limit most recently opened entries.
func (s *Store) trim(ctx context.Context, limit int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM recent_repositories
		WHERE path NOT IN (
			SELECT path FROM recent_repositories
			ORDER BY last_opened_at DESC, path ASC
			LIMIT ?
		)
	`, limit)
	if err != nil {
		return fmt.Errorf("trim recent: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
