package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"squonk-radio/internal/track"
)

// Channel is the Redis pub/sub channel every instance publishes to.
const Channel = "broadcast"

const (
	GroupRegistered = "group.registered"
	TrackAdded      = "track.added"
	TrackRemoved    = "track.removed"
	TrackMoved      = "track.moved"
	PlayerAdvanced  = "player.advanced"
)

// Event describes a committed change to one group's playlist.
type Event struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	GroupKey string         `json:"groupKey"`
	Current  *track.Track   `json:"current,omitempty"`
	Length   int            `json:"length"`
	Payload  map[string]any `json:"payload,omitempty"`
	At       time.Time      `json:"at"`
}

func New(eventType, groupKey string, current *track.Track, length int) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		GroupKey: groupKey,
		Current:  current,
		Length:   length,
		At:       time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to each publisher in turn and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: Channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, string(data)).Err()
}
