package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SafeMPC/steamguard/internal/config"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore stores snapshots as JSON values with a TTL.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisClient connects to redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is not configured")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

func NewRedisStore(client *redis.Client, cfg config.Redis) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.SessionTTL,
	}
}

func (s *RedisStore) key(account string) string {
	return s.keyPrefix + account
}

func (s *RedisStore) Load(ctx context.Context, account string) (*SessionSnapshot, error) {
	data, err := s.client.Get(ctx, s.key(account)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "failed to load session snapshot")
	}

	var snapshot SessionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.Wrap(err, "failed to decode session snapshot")
	}

	return &snapshot, nil
}

func (s *RedisStore) Save(ctx context.Context, account string, snapshot *SessionSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "failed to encode session snapshot")
	}

	if err := s.client.Set(ctx, s.key(account), data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "failed to save session snapshot")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, account string) error {
	if err := s.client.Del(ctx, s.key(account)).Err(); err != nil {
		return errors.Wrap(err, "failed to delete session snapshot")
	}
	return nil
}
