// Package playlist is the HTTP surface of the service. The chat bot and any
// other front end drive the group playlists through it.
package playlist

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"squonk-radio/internal/queue"
	"squonk-radio/internal/registry"
	"squonk-radio/internal/track"
)

// DefaultMaxUploadBytes caps multipart uploads when no limit is configured.
const DefaultMaxUploadBytes = 20 << 20

// Queue is the set of coordinator operations the handlers call.
type Queue interface {
	EnqueueTrack(ctx context.Context, groupKey string, t track.Track) (queue.Playlist, error)
	EnqueueTracks(ctx context.Context, groupKey string, ts []track.Track) (queue.Playlist, error)
	GetCurrent(ctx context.Context, groupKey string) (track.Track, error)
	Advance(ctx context.Context, groupKey string) (queue.Playlist, error)
	RemoveTrack(ctx context.Context, groupKey, trackID string) (queue.Playlist, bool, error)
	MoveTrack(ctx context.Context, groupKey, trackID string, newPos int) (queue.Playlist, int, int, error)
	Playlist(ctx context.Context, groupKey string) (queue.Playlist, error)
	Groups(ctx context.Context) ([]string, error)
}

type Server struct {
	queue     Queue
	registry  *registry.Registry
	ws        http.HandlerFunc
	jwtSecret []byte
	maxUpload int64
}

type Option func(*Server)

// WithWebsocket mounts h at GET /ws.
func WithWebsocket(h http.HandlerFunc) Option {
	return func(s *Server) { s.ws = h }
}

// WithJWTSecret requires a valid access token on every playlist route.
func WithJWTSecret(secret string) Option {
	return func(s *Server) {
		if secret != "" {
			s.jwtSecret = []byte(secret)
		}
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

func NewServer(q Queue, reg *registry.Registry, opts ...Option) *Server {
	s := &Server{
		queue:     q,
		registry:  reg,
		maxUpload: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	if s.ws != nil {
		r.Get("/ws", s.ws)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		if s.jwtSecret != nil {
			r.Use(jwtAuthMiddleware(s.jwtSecret))
		}

		r.Get("/groups", s.handleListGroups)
		r.Post("/groups/{groupKey}", s.handleRegisterGroup)
		r.Get("/groups/{groupKey}", s.handleGetPlaylist)

		r.Post("/groups/{groupKey}/tracks", s.handleAddTracks)
		r.Patch("/groups/{groupKey}/tracks/{trackId}", s.handleMoveTrack)
		r.Delete("/groups/{groupKey}/tracks/{trackId}", s.handleRemoveTrack)

		// Playback
		r.Get("/groups/{groupKey}/current", s.handleCurrent)
		r.Post("/groups/{groupKey}/next", s.handleNext)

		r.Post("/setup", s.handleBeginSetup)
		r.Delete("/setup", s.handleEndSetup)
		r.Post("/setup/tracks", s.handleSetupTracks)
		r.Post("/setup/uploads", s.handleSetupUpload)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "squonk-radio",
	})
}
