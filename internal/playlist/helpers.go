package playlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"squonk-radio/internal/coordinator"
	"squonk-radio/internal/queue"
	"squonk-radio/internal/registry"
	"squonk-radio/internal/store"
	"squonk-radio/internal/track"
)

var errInvalidBody = errors.New("invalid JSON body")

const (
	maxTitleLen  = 300
	maxArtistLen = 200
)

type trackBody struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

func (b trackBody) toTrack() (track.Track, error) {
	if len(strings.TrimSpace(b.Title)) > maxTitleLen {
		return track.Track{}, fmt.Errorf("%w: title is too long", track.ErrInvalidTrack)
	}
	if len(strings.TrimSpace(b.Artist)) > maxArtistLen {
		return track.Track{}, fmt.Errorf("%w: artist is too long", track.ErrInvalidTrack)
	}
	return track.New(b.ID, b.Title, b.Artist)
}

type playlistResponse struct {
	GroupKey string         `json:"groupKey"`
	Tracks   queue.Playlist `json:"tracks"`
	Length   int            `json:"length"`
}

func newPlaylistResponse(groupKey string, p queue.Playlist) playlistResponse {
	if p == nil {
		p = queue.Playlist{}
	}
	return playlistResponse{GroupKey: groupKey, Tracks: p, Length: len(p)}
}

type currentResponse struct {
	GroupKey string      `json:"groupKey"`
	Track    track.Track `json:"track"`
	Caption  string      `json:"caption"`
}

func newCurrentResponse(groupKey string, t track.Track) currentResponse {
	return currentResponse{GroupKey: groupKey, Track: t, Caption: t.Caption()}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
	})
}

// writeQueueError maps core errors to statuses. Anything unexpected is
// logged with op and reported as 500.
func writeQueueError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, errInvalidBody),
		errors.Is(err, track.ErrInvalidTrack),
		errors.Is(err, coordinator.ErrInvalidGroupKey):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrUnknownGroup):
		writeError(w, http.StatusNotFound, "group not registered")
	case errors.Is(err, queue.ErrEmptyQueue):
		writeError(w, http.StatusNotFound, "queue is empty")
	case errors.Is(err, queue.ErrTrackNotFound):
		writeError(w, http.StatusNotFound, "track not found")
	case errors.Is(err, queue.ErrQueueFull):
		writeError(w, http.StatusConflict, "queue is full")
	case errors.Is(err, registry.ErrNoSession):
		writeError(w, http.StatusConflict, "no active setup session")
	case errors.Is(err, store.ErrPersistence):
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		log.Printf("squonk-radio: %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
