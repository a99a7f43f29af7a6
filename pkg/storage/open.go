package storage

import (
	"fmt"

	"bookd/params"
	"bookd/pkg/book"
)

// Open builds the configured backend. "memory" is the default and the only
// one with no external footprint.
func Open(cfg params.Storage) (book.Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return book.NewMemoryBackend(), nil
	case "redis":
		return NewRedisBackend(cfg.RedisAddr), nil
	case "pebble":
		return NewPebbleBackend(cfg.PebblePath)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
