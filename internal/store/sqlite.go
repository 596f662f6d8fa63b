package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"squonk-radio/internal/queue"
)

// SQLiteStore keeps one row per group in a local SQLite database. Each save
// is a single UPDATE, which SQLite applies atomically.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps the per-connection PRAGMAs in effect for every query.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = FULL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS group_playlists (
			group_key  TEXT PRIMARY KEY,
			tracks     TEXT NOT NULL DEFAULT '[]',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create group_playlists: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Register(ctx context.Context, groupKey string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_playlists (group_key, tracks) VALUES (?, '[]')
		ON CONFLICT (group_key) DO UPDATE SET tracks = '[]', updated_at = CURRENT_TIMESTAMP
	`, groupKey)
	if err != nil {
		return &PersistenceError{Op: "register", GroupKey: groupKey, Err: err}
	}
	return nil
}

func (s *SQLiteStore) IsRegistered(ctx context.Context, groupKey string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM group_playlists WHERE group_key = ?)
	`, groupKey).Scan(&exists)
	if err != nil {
		return false, &PersistenceError{Op: "stat", GroupKey: groupKey, Err: err}
	}
	return exists, nil
}

func (s *SQLiteStore) Load(ctx context.Context, groupKey string) (queue.Playlist, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT tracks FROM group_playlists WHERE group_key = ?
	`, groupKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownGroup
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", GroupKey: groupKey, Err: err}
	}
	p, err := decodeTracks([]byte(raw))
	if err != nil {
		return nil, &PersistenceError{Op: "load", GroupKey: groupKey, Err: err}
	}
	return p, nil
}

func (s *SQLiteStore) Save(ctx context.Context, groupKey string, p queue.Playlist) error {
	data, err := encodeTracks(p)
	if err != nil {
		return &PersistenceError{Op: "save", GroupKey: groupKey, Err: err}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE group_playlists SET tracks = ?, updated_at = CURRENT_TIMESTAMP WHERE group_key = ?
	`, string(data), groupKey)
	if err != nil {
		return &PersistenceError{Op: "save", GroupKey: groupKey, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &PersistenceError{Op: "save", GroupKey: groupKey, Err: err}
	}
	if n == 0 {
		return ErrUnknownGroup
	}
	return nil
}

func (s *SQLiteStore) Groups(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT group_key FROM group_playlists ORDER BY group_key`)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, &PersistenceError{Op: "list", Err: err}
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return keys, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
