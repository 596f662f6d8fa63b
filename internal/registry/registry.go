// Package registry maps external chat ids to group keys and tracks which
// group each user is currently setting up.
package registry

import (
	"context"
	"errors"
	"strings"
	"sync"

	"squonk-radio/internal/coordinator"
)

var ErrNoSession = errors.New("no active setup session")

// Groups is the part of the coordinator the registry needs.
type Groups interface {
	RegisterGroup(ctx context.Context, groupKey string) error
	IsRegistered(ctx context.Context, groupKey string) (bool, error)
}

type Registry struct {
	groups Groups

	mu       sync.Mutex
	sessions map[string]string // user id -> group key
}

func New(groups Groups) *Registry {
	return &Registry{groups: groups, sessions: make(map[string]string)}
}

// Resolve turns a chat id into its group key. The chat id is the key.
func Resolve(chatID string) (string, error) {
	return coordinator.NormalizeKey(chatID)
}

func (r *Registry) Register(ctx context.Context, chatID string) (string, error) {
	key, err := Resolve(chatID)
	if err != nil {
		return "", err
	}
	if err := r.groups.RegisterGroup(ctx, key); err != nil {
		return "", err
	}
	return key, nil
}

func (r *Registry) IsRegistered(ctx context.Context, chatID string) (bool, error) {
	key, err := Resolve(chatID)
	if err != nil {
		return false, nil
	}
	return r.groups.IsRegistered(ctx, key)
}

// BeginSetup registers (and so resets) the chat's group and binds userID's
// setup session to it, replacing any earlier binding of that user.
func (r *Registry) BeginSetup(ctx context.Context, userID, chatID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrNoSession
	}
	key, err := r.Register(ctx, chatID)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.sessions[userID] = key
	r.mu.Unlock()
	return key, nil
}

// SessionGroup returns the group userID is setting up.
func (r *Registry) SessionGroup(userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.sessions[strings.TrimSpace(userID)]
	if !ok {
		return "", ErrNoSession
	}
	return key, nil
}

// EndSetup drops the user's session. It reports whether one existed.
func (r *Registry) EndSetup(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID = strings.TrimSpace(userID)
	_, ok := r.sessions[userID]
	delete(r.sessions, userID)
	return ok
}
