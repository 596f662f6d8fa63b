package playlist

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"squonk-radio/internal/queue"
	"squonk-radio/internal/track"
)

type addTracksBody struct {
	trackBody
	Tracks []trackBody `json:"tracks"`
}

// enqueue decodes a single track or a {"tracks": [...]} batch and appends it.
func (s *Server) enqueue(ctx context.Context, r *http.Request, groupKey string) (queue.Playlist, error) {
	var body addTracksBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, errInvalidBody
	}

	if len(body.Tracks) == 0 {
		t, err := body.toTrack()
		if err != nil {
			return nil, err
		}
		return s.queue.EnqueueTrack(ctx, groupKey, t)
	}

	ts := make([]track.Track, 0, len(body.Tracks))
	for _, b := range body.Tracks {
		t, err := b.toTrack()
		if err != nil {
			return nil, err
		}
		ts = append(ts, t)
	}
	return s.queue.EnqueueTracks(ctx, groupKey, ts)
}

func (s *Server) handleAddTracks(w http.ResponseWriter, r *http.Request) {
	key, ok := groupKey(w, r, "add track")
	if !ok {
		return
	}
	p, err := s.enqueue(r.Context(), r, key)
	if err != nil {
		writeQueueError(w, "add track", err)
		return
	}
	writeJSON(w, http.StatusCreated, newPlaylistResponse(key, p))
}

// handleMoveTrack moves a track to newPosition; positions past the tail
// land on the last slot.
func (s *Server) handleMoveTrack(w http.ResponseWriter, r *http.Request) {
	key, ok := groupKey(w, r, "move track")
	if !ok {
		return
	}
	trackID := chi.URLParam(r, "trackId")

	var body struct {
		NewPosition *int `json:"newPosition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.NewPosition == nil || *body.NewPosition < 0 {
		writeError(w, http.StatusBadRequest, "newPosition must be >= 0")
		return
	}

	p, from, to, err := s.queue.MoveTrack(r.Context(), key, trackID, *body.NewPosition)
	if err != nil {
		writeQueueError(w, "move track", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"groupKey": key,
		"trackId":  trackID,
		"from":     from,
		"to":       to,
		"tracks":   p,
		"length":   len(p),
	})
}

func (s *Server) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	key, ok := groupKey(w, r, "remove track")
	if !ok {
		return
	}
	p, removed, err := s.queue.RemoveTrack(r.Context(), key, chi.URLParam(r, "trackId"))
	if err != nil {
		writeQueueError(w, "remove track", err)
		return
	}
	if !removed {
		writeQueueError(w, "remove track", queue.ErrTrackNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newPlaylistResponse(key, p))
}
