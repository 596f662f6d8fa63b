package playlist

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"squonk-radio/internal/queue"
	"squonk-radio/internal/registry"
)

// groupKey resolves the {groupKey} URL parameter the same way registration
// does. On false the error response is already written.
func groupKey(w http.ResponseWriter, r *http.Request, op string) (string, bool) {
	key, err := registry.Resolve(chi.URLParam(r, "groupKey"))
	if err != nil {
		writeQueueError(w, op, err)
		return "", false
	}
	return key, true
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.queue.Groups(r.Context())
	if err != nil {
		writeQueueError(w, "list groups", err)
		return
	}
	if groups == nil {
		groups = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

// handleRegisterGroup creates the group, or empties it if it already exists.
func (s *Server) handleRegisterGroup(w http.ResponseWriter, r *http.Request) {
	key, err := s.registry.Register(r.Context(), chi.URLParam(r, "groupKey"))
	if err != nil {
		writeQueueError(w, "register group", err)
		return
	}
	writeJSON(w, http.StatusCreated, newPlaylistResponse(key, queue.Playlist{}))
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	key, ok := groupKey(w, r, "get playlist")
	if !ok {
		return
	}
	p, err := s.queue.Playlist(r.Context(), key)
	if err != nil {
		writeQueueError(w, "get playlist", err)
		return
	}
	writeJSON(w, http.StatusOK, newPlaylistResponse(key, p))
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	key, ok := groupKey(w, r, "current track")
	if !ok {
		return
	}
	t, err := s.queue.GetCurrent(r.Context(), key)
	if err != nil {
		writeQueueError(w, "current track", err)
		return
	}
	writeJSON(w, http.StatusOK, newCurrentResponse(key, t))
}

// handleNext rotates the playlist and returns the track that is now playing.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	key, ok := groupKey(w, r, "advance")
	if !ok {
		return
	}
	p, err := s.queue.Advance(r.Context(), key)
	if err != nil {
		writeQueueError(w, "advance", err)
		return
	}
	t, err := queue.Current(p)
	if err != nil {
		writeQueueError(w, "advance", err)
		return
	}
	writeJSON(w, http.StatusOK, newCurrentResponse(key, t))
}
