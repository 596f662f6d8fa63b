package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"squonk-radio/internal/queue"
)

const (
	filePrefix  = "group-"
	fileSuffix  = ".json"
	tempPattern = ".group-*.tmp"
)

// FileStore keeps each group in its own JSON file under dir. Writes go to a
// temporary file in the same directory which is fsynced and renamed over the
// live record.
type FileStore struct {
	dir    string
	rename func(oldpath, newpath string) error
	now    func() time.Time
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: create dir: %w", err)
	}
	return &FileStore{
		dir:    dir,
		rename: os.Rename,
		now:    time.Now,
	}, nil
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(groupKey string) string {
	return filepath.Join(s.dir, filePrefix+url.PathEscape(groupKey)+fileSuffix)
}

func (s *FileStore) Register(ctx context.Context, groupKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write("register", groupKey, queue.Playlist{})
}

func (s *FileStore) IsRegistered(ctx context.Context, groupKey string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(groupKey))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &PersistenceError{Op: "stat", GroupKey: groupKey, Err: err}
	}
	return true, nil
}

func (s *FileStore) Load(ctx context.Context, groupKey string) (queue.Playlist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(groupKey))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrUnknownGroup
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", GroupKey: groupKey, Err: err}
	}
	var rec struct {
		Tracks json.RawMessage `json:"tracks"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &PersistenceError{Op: "load", GroupKey: groupKey, Err: err}
	}
	if len(rec.Tracks) == 0 {
		return queue.Playlist{}, nil
	}
	p, err := decodeTracks(rec.Tracks)
	if err != nil {
		return nil, &PersistenceError{Op: "load", GroupKey: groupKey, Err: err}
	}
	return p, nil
}

func (s *FileStore) Save(ctx context.Context, groupKey string, p queue.Playlist) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ok, err := s.IsRegistered(ctx, groupKey)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownGroup
	}
	return s.write("save", groupKey, p)
}

func (s *FileStore) Groups(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) write(op, groupKey string, p queue.Playlist) error {
	data, err := json.MarshalIndent(record{
		GroupKey:  groupKey,
		Tracks:    p.Clone(),
		UpdatedAt: s.now().UTC(),
	}, "", "  ")
	if err != nil {
		return &PersistenceError{Op: op, GroupKey: groupKey, Err: err}
	}

	f, err := os.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return &PersistenceError{Op: op, GroupKey: groupKey, Err: err}
	}
	tmp := f.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return &PersistenceError{Op: op, GroupKey: groupKey, Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return &PersistenceError{Op: op, GroupKey: groupKey, Err: err}
	}
	if err := f.Close(); err != nil {
		return &PersistenceError{Op: op, GroupKey: groupKey, Err: err}
	}
	if err := s.rename(tmp, s.path(groupKey)); err != nil {
		return &PersistenceError{Op: op, GroupKey: groupKey, Err: err}
	}
	committed = true

	// The rename is already visible; a failed directory sync only weakens
	// durability across power loss, so it is not reported.
	if d, err := os.Open(s.dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
