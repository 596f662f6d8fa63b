package store

import (
	"context"
	"sort"
	"sync"

	"squonk-radio/internal/queue"
)

// MemoryStore is a non-durable Store. Values are copied in and out.
type MemoryStore struct {
	mu     sync.RWMutex
	groups map[string]queue.Playlist
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{groups: make(map[string]queue.Playlist)}
}

func (s *MemoryStore) Register(ctx context.Context, groupKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[groupKey] = queue.Playlist{}
	return nil
}

func (s *MemoryStore) IsRegistered(ctx context.Context, groupKey string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.groups[groupKey]
	return ok, nil
}

func (s *MemoryStore) Load(ctx context.Context, groupKey string) (queue.Playlist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.groups[groupKey]
	if !ok {
		return nil, ErrUnknownGroup
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, groupKey string, p queue.Playlist) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupKey]; !ok {
		return ErrUnknownGroup
	}
	s.groups[groupKey] = p.Clone()
	return nil
}

func (s *MemoryStore) Groups(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.groups))
	for k := range s.groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Close() error { return nil }
