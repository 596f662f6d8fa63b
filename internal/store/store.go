// Package store persists one playlist record per group key. Every backend
// replaces a record as a whole, so readers see either the previous or the
// new playlist and never a partial write.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"squonk-radio/internal/queue"
)

var (
	ErrUnknownGroup = errors.New("unknown group")
	ErrPersistence  = errors.New("persistence failure")
)

// PersistenceError reports a failure of the durable medium. It matches
// ErrPersistence with errors.Is.
type PersistenceError struct {
	Op       string
	GroupKey string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s group %q: %v", e.Op, e.GroupKey, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

type Store interface {
	// Register creates an empty playlist for groupKey, or resets an existing one.
	Register(ctx context.Context, groupKey string) error
	IsRegistered(ctx context.Context, groupKey string) (bool, error)
	// Load returns ErrUnknownGroup if groupKey was never registered.
	Load(ctx context.Context, groupKey string) (queue.Playlist, error)
	// Save replaces the whole playlist. It never creates a group.
	Save(ctx context.Context, groupKey string, p queue.Playlist) error
	Groups(ctx context.Context) ([]string, error)
	Close() error
}

// Updater is implemented by stores that can run a read-modify-write of one
// group inside their own transaction. Errors returned by fn are passed
// through unchanged and nothing is written.
type Updater interface {
	Update(ctx context.Context, groupKey string, fn func(queue.Playlist) (queue.Playlist, error)) (queue.Playlist, error)
}

// Shared reports whether other processes may write to the same backend, in
// which case in-process snapshots of its records go stale.
func Shared(s Store) bool {
	sh, ok := s.(interface{ Shared() bool })
	return ok && sh.Shared()
}

// Open picks a backend from the URL scheme:
//
//	file://./data            one JSON file per group (default for bare paths)
//	sqlite://./squonk.db     modernc.org/sqlite
//	postgres://user@host/db  pgx connection pool
//	memory://                non-durable, for tests and demos
func Open(ctx context.Context, rawURL string) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	switch u.Scheme {
	case "", "file":
		return NewFileStore(strings.TrimPrefix(rawURL, "file://"))
	case "sqlite":
		return OpenSQLite(ctx, strings.TrimPrefix(rawURL, "sqlite://"))
	case "postgres", "postgresql":
		pool, err := pgxpool.New(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := AutoMigrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPostgresStore(pool), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}
}

// record is the on-disk shape shared by the file and SQL backends.
type record struct {
	GroupKey  string         `json:"groupKey"`
	Tracks    queue.Playlist `json:"tracks"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func encodeTracks(p queue.Playlist) ([]byte, error) {
	return json.Marshal(p.Clone())
}

func decodeTracks(data []byte) (queue.Playlist, error) {
	var p queue.Playlist
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	for i, t := range p {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
	}
	return p.Clone(), nil
}
