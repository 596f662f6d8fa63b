package store

import (
	"context"
	"errors"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"squonk-radio/internal/queue"
)

// DB is the subset of *pgxpool.Pool the Postgres store needs; pgxmock
// implements it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStore keeps one row per group with the tracks in a JSONB column.
// Several service instances may share the database.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func AutoMigrate(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS group_playlists (
          group_key  TEXT PRIMARY KEY,
          tracks     JSONB NOT NULL DEFAULT '[]'::jsonb,
          created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
          updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `)
	if err != nil {
		log.Printf("migrate squonk-radio: %v", err)
		return err
	}
	return nil
}

func (s *PostgresStore) Shared() bool { return true }

func (s *PostgresStore) Register(ctx context.Context, groupKey string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO group_playlists (group_key, tracks)
		VALUES ($1, '[]'::jsonb)
		ON CONFLICT (group_key)
		DO UPDATE SET tracks = '[]'::jsonb, updated_at = now()
	`, groupKey)
	if err != nil {
		return &PersistenceError{Op: "register", GroupKey: groupKey, Err: err}
	}
	return nil
}

func (s *PostgresStore) IsRegistered(ctx context.Context, groupKey string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM group_playlists WHERE group_key = $1)
	`, groupKey).Scan(&exists)
	if err != nil {
		return false, &PersistenceError{Op: "stat", GroupKey: groupKey, Err: err}
	}
	return exists, nil
}

func (s *PostgresStore) Load(ctx context.Context, groupKey string) (queue.Playlist, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `
		SELECT tracks FROM group_playlists WHERE group_key = $1
	`, groupKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownGroup
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", GroupKey: groupKey, Err: err}
	}
	p, err := decodeTracks(raw)
	if err != nil {
		return nil, &PersistenceError{Op: "load", GroupKey: groupKey, Err: err}
	}
	return p, nil
}

func (s *PostgresStore) Save(ctx context.Context, groupKey string, p queue.Playlist) error {
	data, err := encodeTracks(p)
	if err != nil {
		return &PersistenceError{Op: "save", GroupKey: groupKey, Err: err}
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE group_playlists
		SET tracks = $2, updated_at = now()
		WHERE group_key = $1
	`, groupKey, string(data))
	if err != nil {
		return &PersistenceError{Op: "save", GroupKey: groupKey, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownGroup
	}
	return nil
}

// Update locks the group's row for the duration of fn so concurrent writers
// in other processes are serialized as well.
func (s *PostgresStore) Update(ctx context.Context, groupKey string, fn func(queue.Playlist) (queue.Playlist, error)) (queue.Playlist, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, &PersistenceError{Op: "update", GroupKey: groupKey, Err: err}
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx, `
		SELECT tracks
		FROM group_playlists
		WHERE group_key = $1
		FOR UPDATE
	`, groupKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownGroup
	}
	if err != nil {
		return nil, &PersistenceError{Op: "update", GroupKey: groupKey, Err: err}
	}
	cur, err := decodeTracks(raw)
	if err != nil {
		return nil, &PersistenceError{Op: "update", GroupKey: groupKey, Err: err}
	}

	next, err := fn(cur)
	if err != nil {
		return nil, err
	}

	data, err := encodeTracks(next)
	if err != nil {
		return nil, &PersistenceError{Op: "update", GroupKey: groupKey, Err: err}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE group_playlists
		SET tracks = $2, updated_at = now()
		WHERE group_key = $1
	`, groupKey, string(data)); err != nil {
		return nil, &PersistenceError{Op: "update", GroupKey: groupKey, Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, &PersistenceError{Op: "update", GroupKey: groupKey, Err: err}
	}
	return next.Clone(), nil
}

func (s *PostgresStore) Groups(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT group_key FROM group_playlists ORDER BY group_key`)
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

func (s *PostgresStore) Close() error {
	if c, ok := s.db.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}
