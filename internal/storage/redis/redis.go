// Package redis is a storage backend on a Redis server reached over TCP.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/moontv/gateway/internal/storage"
)

const adminConfigKey = "admin:config"

func userPasswordKey(username string) string {
	return "u:" + username + ":pwd"
}

// client is the part of the go-redis API the store uses.
type client interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Store implements storage.Backend on Redis.
type Store struct {
	rdb client
}

var _ storage.Backend = (*Store)(nil)

// New connects to the server at rawURL (redis:// or rediss://).
func New(rawURL string) (*Store, error) {
	if rawURL == "" {
		return nil, errors.New("redis: missing environment variable REDIS_URL")
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse REDIS_URL: %w", err)
	}
	return &Store{rdb: redis.NewClient(opts)}, nil
}

func newWithClient(c client) *Store {
	return &Store{rdb: c}
}

func (s *Store) CheckUserExist(ctx context.Context, username string) (bool, error) {
	n, err := s.rdb.Exists(ctx, userPasswordKey(username)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: check user: %w", err)
	}
	return n > 0, nil
}

// RegisterUser writes with SETNX so a concurrent registration of the same
// name loses with storage.ErrUserExists.
func (s *Store) RegisterUser(ctx context.Context, username, password string) error {
	hash, err := storage.HashPassword(password)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, userPasswordKey(username), hash, 0).Result()
	if err != nil {
		return fmt.Errorf("redis: register user: %w", err)
	}
	if !ok {
		return storage.ErrUserExists
	}
	return nil
}

func (s *Store) GetAdminConfig(ctx context.Context) (*storage.AdminConfig, error) {
	raw, err := s.rdb.Get(ctx, adminConfigKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get admin config: %w", err)
	}

	var cfg storage.AdminConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("redis: decode admin config: %w", err)
	}
	return &cfg, nil
}

func (s *Store) SaveAdminConfig(ctx context.Context, cfg *storage.AdminConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("redis: encode admin config: %w", err)
	}
	if err := s.rdb.Set(ctx, adminConfigKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis: save admin config: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
