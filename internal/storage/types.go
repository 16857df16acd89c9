package storage

import (
	"context"
	"errors"
	"time"

	"autopost/internal/post"
)

var ErrClosed = errors.New("storage closed")

// Store is the post persistence API used by the scheduler.
type Store interface {
	LoadAll(ctx context.Context) ([]post.Post, error)
	SaveAll(ctx context.Context, posts []post.Post) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "file": JSON array file (default)
//   - "sqlite": SQLite database file
//   - "redis": one JSON value under a single key
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	Redis RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string // default "autopost:posts"
}
