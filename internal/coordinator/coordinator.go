// Package coordinator serializes playlist mutations per group key. Every
// mutation takes the key's lock, reads the current playlist, applies a
// queue function and persists the result before the lock is released.
// Reads take no lock; they see the last committed playlist of a group.
package coordinator

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"squonk-radio/internal/events"
	"squonk-radio/internal/queue"
	"squonk-radio/internal/store"
	"squonk-radio/internal/track"
)

// DefaultCapacity bounds a playlist when no capacity option is given.
const DefaultCapacity = 500

// MaxGroupKeyLen bounds a key in bytes so every store can name it; the file
// store escapes each key into a single file name.
const MaxGroupKeyLen = 64

var ErrInvalidGroupKey = errors.New("invalid group key")

// errUnchanged tells mutate the operation was an identity and needs no write.
var errUnchanged = errors.New("unchanged")

type Coordinator struct {
	store    store.Store
	updater  store.Updater
	pub      events.Publisher
	capacity int
	cache    bool

	locks keyLocks
	loads singleflight.Group

	mu        sync.RWMutex
	snapshots map[string]queue.Playlist
}

type Option func(*Coordinator)

// WithCapacity sets the maximum playlist length. n <= 0 disables the limit.
func WithCapacity(n int) Option {
	return func(c *Coordinator) { c.capacity = n }
}

func WithPublisher(p events.Publisher) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.pub = p
		}
	}
}

// WithSnapshotCache keeps the last persisted playlist of each group in
// memory. It is on by default unless the store is shared between processes.
func WithSnapshotCache(on bool) Option {
	return func(c *Coordinator) { c.cache = on }
}

func New(s store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     s,
		pub:       events.Nop{},
		capacity:  DefaultCapacity,
		cache:     !store.Shared(s),
		snapshots: make(map[string]queue.Playlist),
	}
	if u, ok := s.(store.Updater); ok {
		c.updater = u
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Capacity() int { return c.capacity }

// RegisterGroup creates the group or resets its playlist to empty.
func (c *Coordinator) RegisterGroup(ctx context.Context, groupKey string) error {
	groupKey, err := NormalizeKey(groupKey)
	if err != nil {
		return err
	}
	release, err := c.locks.acquire(ctx, groupKey)
	if err != nil {
		return err
	}
	defer release()
	ctx = context.WithoutCancel(ctx)

	if err := c.store.Register(ctx, groupKey); err != nil {
		log.Printf("squonk-radio: register group %s: %v", groupKey, err)
		return err
	}
	c.remember(groupKey, queue.Playlist{})
	c.publish(ctx, events.New(events.GroupRegistered, groupKey, nil, 0))
	return nil
}

// EnqueueTrack appends t to the group's playlist.
func (c *Coordinator) EnqueueTrack(ctx context.Context, groupKey string, t track.Track) (queue.Playlist, error) {
	p, _, err := c.mutate(ctx, groupKey, func(p queue.Playlist) (queue.Playlist, error) {
		return queue.Enqueue(p, t, c.capacity)
	}, changeOf(events.TrackAdded))
	return p, err
}

// EnqueueTracks appends a batch; either every track is added or none.
func (c *Coordinator) EnqueueTracks(ctx context.Context, groupKey string, ts []track.Track) (queue.Playlist, error) {
	p, _, err := c.mutate(ctx, groupKey, func(p queue.Playlist) (queue.Playlist, error) {
		if len(ts) == 0 {
			return nil, errUnchanged
		}
		return queue.EnqueueAll(p, ts, c.capacity)
	}, changeOf(events.TrackAdded))
	return p, err
}

// Advance rotates the current track to the tail.
func (c *Coordinator) Advance(ctx context.Context, groupKey string) (queue.Playlist, error) {
	p, _, err := c.mutate(ctx, groupKey, func(p queue.Playlist) (queue.Playlist, error) {
		if len(p) < 2 {
			return nil, errUnchanged
		}
		return queue.Advance(p), nil
	}, changeOf(events.PlayerAdvanced))
	return p, err
}

// RemoveTrack drops the first track with the given id. removed is false when
// the id was not in the playlist.
func (c *Coordinator) RemoveTrack(ctx context.Context, groupKey, trackID string) (p queue.Playlist, removed bool, err error) {
	p, removed, err = c.mutate(ctx, groupKey, func(p queue.Playlist) (queue.Playlist, error) {
		out, ok := queue.Remove(p, trackID)
		if !ok {
			return nil, errUnchanged
		}
		return out, nil
	}, func(key string, p queue.Playlist) events.Event {
		ev := changeEvent(events.TrackRemoved, key, p)
		ev.Payload = map[string]any{"trackId": trackID}
		return ev
	})
	if err != nil {
		return nil, false, err
	}
	return p, removed, nil
}

// MoveTrack moves a track to newPos and reports where it came from and
// where it ended up after clamping.
func (c *Coordinator) MoveTrack(ctx context.Context, groupKey, trackID string, newPos int) (p queue.Playlist, from, to int, err error) {
	p, _, err = c.mutate(ctx, groupKey, func(p queue.Playlist) (queue.Playlist, error) {
		out, f, t, err := queue.Move(p, trackID, newPos)
		if err != nil {
			return nil, err
		}
		from, to = f, t
		if f == t {
			return nil, errUnchanged
		}
		return out, nil
	}, func(key string, p queue.Playlist) events.Event {
		ev := changeEvent(events.TrackMoved, key, p)
		ev.Payload = map[string]any{"trackId": trackID, "from": from, "to": to}
		return ev
	})
	if err != nil {
		return nil, 0, 0, err
	}
	return p, from, to, nil
}

// GetCurrent returns the head track, or queue.ErrEmptyQueue.
func (c *Coordinator) GetCurrent(ctx context.Context, groupKey string) (track.Track, error) {
	p, err := c.Playlist(ctx, groupKey)
	if err != nil {
		return track.Track{}, err
	}
	return queue.Current(p)
}

// Playlist returns the last committed playlist of the group.
func (c *Coordinator) Playlist(ctx context.Context, groupKey string) (queue.Playlist, error) {
	groupKey, err := NormalizeKey(groupKey)
	if err != nil {
		return nil, err
	}
	return c.snapshot(ctx, groupKey)
}

func (c *Coordinator) IsRegistered(ctx context.Context, groupKey string) (bool, error) {
	groupKey, err := NormalizeKey(groupKey)
	if err != nil {
		return false, nil
	}
	if c.cache {
		c.mu.RLock()
		_, ok := c.snapshots[groupKey]
		c.mu.RUnlock()
		if ok {
			return true, nil
		}
	}
	return c.store.IsRegistered(ctx, groupKey)
}

func (c *Coordinator) Groups(ctx context.Context) ([]string, error) {
	return c.store.Groups(ctx)
}

// mutate runs fn as one transaction on groupKey. The returned bool is false
// when fn reported an identity change; then nothing is written or published.
// The event for a write goes out before the key is released, so subscribers
// see a group's events in commit order.
func (c *Coordinator) mutate(ctx context.Context, groupKey string, fn func(queue.Playlist) (queue.Playlist, error), ev func(string, queue.Playlist) events.Event) (queue.Playlist, bool, error) {
	groupKey, err := NormalizeKey(groupKey)
	if err != nil {
		return nil, false, err
	}
	release, err := c.locks.acquire(ctx, groupKey)
	if err != nil {
		return nil, false, err
	}
	defer release()
	// Past this point the caller can no longer abort the write.
	ctx = context.WithoutCancel(ctx)

	var before queue.Playlist
	apply := func(cur queue.Playlist) (queue.Playlist, error) {
		before = cur.Clone()
		return fn(cur.Clone())
	}

	var next queue.Playlist
	if c.updater != nil {
		next, err = c.updater.Update(ctx, groupKey, apply)
	} else {
		var cur queue.Playlist
		cur, err = c.snapshot(ctx, groupKey)
		if err == nil {
			next, err = apply(cur)
		}
		if err == nil {
			err = c.store.Save(ctx, groupKey, next)
		}
	}

	switch {
	case errors.Is(err, errUnchanged):
		return before, false, nil
	case errors.Is(err, store.ErrPersistence):
		// The snapshot still holds the last durable playlist, unless the
		// store ran its own transaction whose outcome is now unknown.
		if c.updater != nil {
			c.forget(groupKey)
		}
		log.Printf("squonk-radio: persist group %s: %v", groupKey, err)
		return nil, false, err
	case err != nil:
		return nil, false, err
	}

	c.remember(groupKey, next)
	c.publish(ctx, ev(groupKey, next))
	return next.Clone(), true, nil
}

func (c *Coordinator) snapshot(ctx context.Context, groupKey string) (queue.Playlist, error) {
	if c.cache {
		c.mu.RLock()
		p, ok := c.snapshots[groupKey]
		c.mu.RUnlock()
		if ok {
			return p.Clone(), nil
		}
	}

	v, err, _ := c.loads.Do(groupKey, func() (any, error) {
		return c.store.Load(context.WithoutCancel(ctx), groupKey)
	})
	if err != nil {
		return nil, err
	}
	p := v.(queue.Playlist)

	if c.cache {
		c.mu.Lock()
		// A writer may have committed while we were loading; its value wins.
		if _, ok := c.snapshots[groupKey]; !ok {
			c.snapshots[groupKey] = p.Clone()
		}
		c.mu.Unlock()
	}
	return p.Clone(), nil
}

func (c *Coordinator) remember(groupKey string, p queue.Playlist) {
	if !c.cache {
		return
	}
	c.mu.Lock()
	c.snapshots[groupKey] = p.Clone()
	c.mu.Unlock()
}

func (c *Coordinator) forget(groupKey string) {
	c.mu.Lock()
	delete(c.snapshots, groupKey)
	c.mu.Unlock()
}

func (c *Coordinator) publish(ctx context.Context, ev events.Event) {
	if err := c.pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		log.Printf("squonk-radio: publish %s for group %s: %v", ev.Type, ev.GroupKey, err)
	}
}

func changeOf(eventType string) func(string, queue.Playlist) events.Event {
	return func(groupKey string, p queue.Playlist) events.Event {
		return changeEvent(eventType, groupKey, p)
	}
}

func changeEvent(eventType, groupKey string, p queue.Playlist) events.Event {
	var cur *track.Track
	if t, err := queue.Current(p); err == nil {
		cur = &t
	}
	return events.New(eventType, groupKey, cur, len(p))
}

// NormalizeKey trims surrounding whitespace. Every operation runs its key
// through it, so " G1" and "G1" name the same group.
func NormalizeKey(groupKey string) (string, error) {
	key := strings.TrimSpace(groupKey)
	if key == "" || len(key) > MaxGroupKeyLen {
		return "", ErrInvalidGroupKey
	}
	return key, nil
}
