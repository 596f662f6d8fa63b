package playlist

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"squonk-radio/internal/metadata"
)

// userID prefers verified token claims over the forwarded header.
func userID(r *http.Request) string {
	if c, ok := claimsFrom(r.Context()); ok {
		return c.UserID
	}
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}

// handleBeginSetup resets the given group and points the caller's uploads
// at it until the session ends or another one starts.
func (s *Server) handleBeginSetup(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}

	var body struct {
		GroupKey string `json:"groupKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	key, err := s.registry.BeginSetup(r.Context(), uid, body.GroupKey)
	if err != nil {
		writeQueueError(w, "begin setup", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"groupKey": key,
		"userId":   uid,
	})
}

func (s *Server) handleEndSetup(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	if !s.registry.EndSetup(uid) {
		writeError(w, http.StatusConflict, "no active setup session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetupTracks(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	key, err := s.registry.SessionGroup(uid)
	if err != nil {
		writeQueueError(w, "setup tracks", err)
		return
	}

	p, err := s.enqueue(r.Context(), r, key)
	if err != nil {
		writeQueueError(w, "setup tracks", err)
		return
	}
	writeJSON(w, http.StatusCreated, newPlaylistResponse(key, p))
}

// handleSetupUpload takes a multipart "file" plus the "fileId" the chat
// platform assigned to it, reads its tags and queues it in the caller's
// session group. The audio itself is discarded.
func (s *Server) handleSetupUpload(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, http.StatusUnauthorized, "missing user context")
		return
	}
	key, err := s.registry.SessionGroup(uid)
	if err != nil {
		writeQueueError(w, "setup upload", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	fileID := strings.TrimSpace(r.FormValue("fileId"))
	if fileID == "" {
		writeError(w, http.StatusBadRequest, "fileId is required")
		return
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer f.Close()

	t, err := metadata.Extract(f, fileID)
	if err != nil {
		// Untagged files are still queued as Unknown.
		log.Printf("squonk-radio: read tags of %s: %v", fileID, err)
	}

	p, err := s.queue.EnqueueTrack(r.Context(), key, t)
	if err != nil {
		writeQueueError(w, "setup upload", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"groupKey": key,
		"track":    t,
		"caption":  t.Caption(),
		"length":   len(p),
	})
}
