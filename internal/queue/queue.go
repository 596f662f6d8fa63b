// Package queue holds the pure playlist mutations. Nothing here does I/O and
// no function modifies the slice it is given.
package queue

import (
	"errors"

	"squonk-radio/internal/track"
)

var (
	ErrEmptyQueue    = errors.New("queue is empty")
	ErrQueueFull     = errors.New("queue is full")
	ErrTrackNotFound = errors.New("track not found")
)

// Playlist is the play order of one group. Index 0 is the current track.
type Playlist []track.Track

// Clone returns a copy that shares no backing array with p. A nil or empty
// playlist clones to an empty, non-nil one so it marshals as [].
func (p Playlist) Clone() Playlist {
	out := make(Playlist, len(p))
	copy(out, p)
	return out
}

// Index returns the position of the first track with the given id, or -1.
func (p Playlist) Index(id string) int {
	for i, t := range p {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Enqueue appends t to the tail after normalizing it. capacity <= 0 means
// unbounded.
func Enqueue(p Playlist, t track.Track, capacity int) (Playlist, error) {
	t, err := t.Normalize()
	if err != nil {
		return nil, err
	}
	if capacity > 0 && len(p) >= capacity {
		return nil, ErrQueueFull
	}
	out := make(Playlist, len(p), len(p)+1)
	copy(out, p)
	return append(out, t), nil
}

// EnqueueAll appends a batch in order. Runs of the same id inside the batch
// collapse to a single entry. The batch is applied entirely or not at all.
func EnqueueAll(p Playlist, ts []track.Track, capacity int) (Playlist, error) {
	batch := make([]track.Track, 0, len(ts))
	for _, t := range ts {
		t, err := t.Normalize()
		if err != nil {
			return nil, err
		}
		if n := len(batch); n > 0 && batch[n-1].ID == t.ID {
			continue
		}
		batch = append(batch, t)
	}
	if capacity > 0 && len(p)+len(batch) > capacity {
		return nil, ErrQueueFull
	}
	out := make(Playlist, len(p), len(p)+len(batch))
	copy(out, p)
	return append(out, batch...), nil
}

// Current returns the head of the playlist.
func Current(p Playlist) (track.Track, error) {
	if len(p) == 0 {
		return track.Track{}, ErrEmptyQueue
	}
	return p[0], nil
}

// Advance moves the head to the tail. Tracks are never dropped; playback is
// round-robin. Playlists of length 0 or 1 come back unchanged.
func Advance(p Playlist) Playlist {
	if len(p) < 2 {
		return p.Clone()
	}
	out := make(Playlist, 0, len(p))
	out = append(out, p[1:]...)
	return append(out, p[0])
}

// Remove drops the first track with the given id. The bool is false when no
// track matched, in which case the returned playlist equals p.
func Remove(p Playlist, id string) (Playlist, bool) {
	i := p.Index(id)
	if i < 0 {
		return p.Clone(), false
	}
	out := make(Playlist, 0, len(p)-1)
	out = append(out, p[:i]...)
	return append(out, p[i+1:]...), true
}

// Move relocates the first track with the given id to newPos, shifting the
// tracks in between. newPos past the tail is clamped to the last position.
func Move(p Playlist, id string, newPos int) (Playlist, int, int, error) {
	from := p.Index(id)
	if from < 0 {
		return nil, 0, 0, ErrTrackNotFound
	}
	if newPos < 0 {
		newPos = 0
	}
	if newPos >= len(p) {
		newPos = len(p) - 1
	}
	out := p.Clone()
	if newPos == from {
		return out, from, newPos, nil
	}
	moved := out[from]
	if newPos > from {
		copy(out[from:newPos], out[from+1:newPos+1])
	} else {
		copy(out[newPos+1:from+1], out[newPos:from])
	}
	out[newPos] = moved
	return out, from, newPos, nil
}
