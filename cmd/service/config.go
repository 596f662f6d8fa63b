package main

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"squonk-radio/internal/coordinator"
	"squonk-radio/internal/playlist"
)

type Config struct {
	Port          string
	StoreURL      string
	RedisURL      string
	AllowedOrigin string

	QueueCapacity  int
	MaxUploadBytes int64
	JWTSecret      string

	// SnapshotCache is nil for "auto": cache unless the store is shared.
	SnapshotCache *bool
}

func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		Port:           getenv("PORT", "3002"),
		StoreURL:       getenv("STORE_URL", "file://./data"),
		RedisURL:       getenv("REDIS_URL", ""),
		AllowedOrigin:  getenv("WS_ALLOWED_ORIGIN", ""),
		QueueCapacity:  getenvInt("QUEUE_CAPACITY", coordinator.DefaultCapacity),
		MaxUploadBytes: int64(getenvInt("MAX_UPLOAD_BYTES", playlist.DefaultMaxUploadBytes)),
		JWTSecret:      getenv("JWT_SECRET", ""),
	}

	switch v := strings.ToLower(getenv("SNAPSHOT_CACHE", "auto")); v {
	case "auto":
	case "on", "true", "1":
		on := true
		cfg.SnapshotCache = &on
	case "off", "false", "0":
		off := false
		cfg.SnapshotCache = &off
	default:
		return Config{}, errors.New("squonk-radio: invalid SNAPSHOT_CACHE: " + v)
	}

	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	raw := getenv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
