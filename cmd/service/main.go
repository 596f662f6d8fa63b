package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"squonk-radio/internal/coordinator"
	"squonk-radio/internal/events"
	"squonk-radio/internal/playlist"
	"squonk-radio/internal/realtime"
	"squonk-radio/internal/registry"
	"squonk-radio/internal/store"
)

func main() {
	cfg, err := loadConfigFromEnv()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("squonk-radio: %v", err)
	}
}

func run(ctx context.Context, cfg Config) error {
	st, err := store.Open(ctx, cfg.StoreURL)
	if err != nil {
		return err
	}
	defer st.Close()

	hub := realtime.NewHub()
	go hub.Run(ctx)

	// With Redis every instance publishes there and feeds its hub from the
	// subscription; without it the hub gets events directly.
	var rdb *redis.Client
	var pub events.Publisher = hub
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("squonk-radio: redis ping: %v", err)
		}
		pub = events.NewRedisPublisher(rdb)
	}

	opts := []coordinator.Option{
		coordinator.WithCapacity(cfg.QueueCapacity),
		coordinator.WithPublisher(pub),
	}
	if cfg.SnapshotCache != nil {
		opts = append(opts, coordinator.WithSnapshotCache(*cfg.SnapshotCache))
	}
	coord := coordinator.New(st, opts...)
	reg := registry.New(coord)

	ws := realtime.NewServer(hub, rdb, cfg.AllowedOrigin)
	if rdb != nil {
		go func() {
			if err := ws.RunRedisSubscriber(ctx); err != nil {
				log.Printf("squonk-radio: redis subscriber: %v", err)
			}
		}()
	}

	srv := playlist.NewServer(coord, reg,
		playlist.WithWebsocket(ws.HandleWS),
		playlist.WithJWTSecret(cfg.JWTSecret),
		playlist.WithMaxUploadBytes(cfg.MaxUploadBytes),
	)

	// The request timeout lives on the playlist routes so it never cuts /ws.
	r := srv.Router(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("squonk-radio listening on :%s (store %s)", cfg.Port, cfg.StoreURL)
		errc <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("squonk-radio: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
