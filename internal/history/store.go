package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pagepack/pagepack/internal/engine/types"
)

// DefaultLimit is how many galleries the history keeps.
const DefaultLimit = 100

// Store is the download history backed by SQLite.
type Store struct {
	db    *sql.DB
	limit int
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLimit overrides how many records are kept.
func WithLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithClock sets the time source for DownloadedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the history database at dbPath.
func Open(dbPath string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, limit: DefaultLimit, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS history (
			gallery_id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			page_count INTEGER NOT NULL DEFAULT 0,
			file_size INTEGER NOT NULL DEFAULT 0,
			downloaded_at INTEGER NOT NULL,
			download_count INTEGER NOT NULL DEFAULT 1,
			seq INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_recent ON history(downloaded_at DESC, seq DESC)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}
	return nil
}

// RecordCompletion upserts a record. A repeat download bumps DownloadCount
// and moves the record to the front; the oldest records beyond the limit
// are dropped.
func (s *Store) RecordCompletion(ctx context.Context, galleryID string, rec types.HistoryEntry) error {
	downloadedAt := rec.DownloadedAt
	if downloadedAt == 0 {
		downloadedAt = s.now().UnixMilli()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO history (gallery_id, title, page_count, file_size, downloaded_at, download_count, seq)
		VALUES (?, ?, ?, ?, ?, 1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM history))
		ON CONFLICT(gallery_id) DO UPDATE SET
			title = excluded.title,
			page_count = excluded.page_count,
			file_size = excluded.file_size,
			downloaded_at = excluded.downloaded_at,
			download_count = history.download_count + 1,
			seq = excluded.seq
	`, galleryID, rec.Title, rec.PageCount, rec.FileSize, downloadedAt)
	if err != nil {
		return fmt.Errorf("record %s: %w", galleryID, err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM history WHERE gallery_id NOT IN (
			SELECT gallery_id FROM history ORDER BY downloaded_at DESC, seq DESC LIMIT ?
		)
	`, s.limit)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	return tx.Commit()
}

// IsKnown reports whether galleryID is in the history.
func (s *Store) IsKnown(ctx context.Context, galleryID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM history WHERE gallery_id = ?`, galleryID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// KnownIDs returns the subset of ids present in the history.
func (s *Store) KnownIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	known := make(map[string]bool)
	if len(ids) == 0 {
		return known, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `SELECT gallery_id FROM history WHERE gallery_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		known[id] = true
	}
	return known, rows.Err()
}

// List returns records newest first.
func (s *Store) List(ctx context.Context) ([]types.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT gallery_id, title, page_count, file_size, downloaded_at, download_count
		FROM history
		ORDER BY downloaded_at DESC, seq DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.HistoryEntry, 0)
	for rows.Next() {
		var e types.HistoryEntry
		if err := rows.Scan(&e.GalleryID, &e.Title, &e.PageCount, &e.FileSize, &e.DownloadedAt, &e.DownloadCount); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Remove deletes one record. It reports whether the record existed.
func (s *Store) Remove(ctx context.Context, galleryID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE gallery_id = ?`, galleryID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear deletes every record.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM history`)
	return err
}

// Export returns the history as indented JSON, newest first.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(entries, "", "  ")
}
