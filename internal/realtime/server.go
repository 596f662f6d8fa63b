// Package realtime streams playlist events to websocket clients. Events
// reach the hub either directly from the coordinator or, when several
// instances share one store, through the Redis broadcast channel.
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"squonk-radio/internal/events"
)

type Server struct {
	hub      *Hub
	rdb      *redis.Client
	upgrader websocket.Upgrader
}

// NewServer builds the websocket endpoint. An empty allowedOrigin accepts
// any origin. rdb may be nil when no Redis is configured.
func NewServer(hub *Hub, rdb *redis.Client, allowedOrigin string) *Server {
	s := &Server{hub: hub, rdb: rdb}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}
	return s
}

// HandleWS serves GET /ws?group=<key>.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	group := strings.TrimSpace(r.URL.Query().Get("group"))
	if group == "" {
		http.Error(w, "group is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("squonk-radio: ws upgrade: %v", err)
		return
	}

	client := &Client{
		hub:   s.hub,
		conn:  conn,
		group: group,
		send:  make(chan []byte, 256),
	}

	welcome := map[string]any{
		"type":     "welcome",
		"groupKey": group,
		"now":      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.Marshal(welcome); err == nil {
		client.send <- b
	}

	if err := s.hub.join(r.Context(), client); err != nil {
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// RunRedisSubscriber forwards events from the broadcast channel into the hub
// until ctx ends.
func (s *Server) RunRedisSubscriber(ctx context.Context) error {
	sub := s.rdb.Subscribe(ctx, events.Channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("squonk-radio: decode broadcast: %v", err)
				continue
			}
			if err := s.hub.deliver(ctx, ev.GroupKey, []byte(msg.Payload)); err != nil {
				return nil
			}
		}
	}
}
