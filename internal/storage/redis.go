package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autopost/internal/post"
	logx "autopost/pkg/logx"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultRedisKey     = "autopost:posts"
	redisConnectTimeout = 5 * time.Second
)

// redisStore keeps the whole collection as one JSON value under a single key,
// mirroring the file layout so the two drivers can be swapped freely.
type redisStore struct {
	rdb goredis.UniversalClient
	key string
	log logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("storage.redis.addr is required for redis driver")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  redisConnectTimeout,
		ReadTimeout:  redisConnectTimeout,
		WriteTimeout: redisConnectTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newRedisStore(rdb, cfg.Redis.Key, log), nil
}

func newRedisStore(rdb goredis.UniversalClient, key string, log logx.Logger) *redisStore {
	key = strings.TrimSpace(key)
	if key == "" {
		key = defaultRedisKey
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &redisStore{rdb: rdb, key: key, log: log}
}

func (s *redisStore) Close() error { return s.rdb.Close() }

func (s *redisStore) LoadAll(ctx context.Context) ([]post.Post, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return []post.Post{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return decodePosts(b, s.log)
}

func (s *redisStore) SaveAll(ctx context.Context, posts []post.Post) error {
	b, err := encodePosts(posts)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	s.log.Debug("posts saved", logx.String("key", s.key), logx.Int("count", len(posts)))
	return nil
}
