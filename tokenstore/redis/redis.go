// Package redis provides a Redis-backed token store so replicas of one
// bot share cached outbound tokens instead of each acquiring their own.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/botfx/botauth/tokenstore"
)

// Config for the Redis token store. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: BOTAUTH_TOKEN_KEY_PREFIX
	KeyPrefix string `env:"BOTAUTH_TOKEN_KEY_PREFIX,default=botauth:tokens:"`
}

// Store implements tokenstore.Store on a Redis client. Entries expire in
// Redis when the token itself expires.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// New builds a Store over an existing client.
func New(client *redis.Client, keyPrefix string) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if keyPrefix == "" {
		keyPrefix = "botauth:tokens:"
	}
	return &Store{client: client, keyPrefix: keyPrefix}, nil
}

// NewFromEnv builds a Store using envdecode to populate Config.
func NewFromEnv() (*Store, error) {
	var cfg Config
	_ = envdecode.Decode(&cfg)
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(client, cfg.KeyPrefix)
}

// Close closes the underlying client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Get(ctx context.Context, key string) (*tokenstore.Entry, error) {
	val, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token entry: %w", err)
	}
	var e tokenstore.Entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return nil, fmt.Errorf("unmarshal token entry: %w", err)
	}
	if !time.Now().Before(e.ExpiresOn) {
		return nil, nil
	}
	return &e, nil
}

func (s *Store) Put(ctx context.Context, key string, entry tokenstore.Entry) error {
	ttl := time.Until(entry.ExpiresOn)
	if ttl <= 0 {
		return nil
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal token entry: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+key, b, ttl).Err(); err != nil {
		return fmt.Errorf("set token entry: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("delete token entry: %w", err)
	}
	return nil
}

var _ tokenstore.Store = (*Store)(nil)
