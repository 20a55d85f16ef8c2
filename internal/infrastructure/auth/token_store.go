// Package auth caches directory access tokens in Redis so concurrent CLI runs
// and server replicas share one token per application.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Token store errors.
var (
	ErrTokenNotFound = errors.New("token not found")
	ErrKeyRequired   = errors.New("token key is required")
)

// TokenStore manages access tokens in Redis.
type TokenStore struct {
	client    *redis.Client
	keyPrefix string
}

// TokenStoreConfig contains configuration for TokenStore.
type TokenStoreConfig struct {
	Client    *redis.Client
	KeyPrefix string
}

const defaultKeyPrefix = "aduser:access_token:"

// NewTokenStore creates a new Redis-based token store.
func NewTokenStore(cfg TokenStoreConfig) *TokenStore {
	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &TokenStore{
		client:    cfg.Client,
		keyPrefix: keyPrefix,
	}
}

func (s *TokenStore) tokenKey(key string) string {
	return s.keyPrefix + key
}

// StoreAccessToken stores token under key for ttl.
func (s *TokenStore) StoreAccessToken(ctx context.Context, key, token string, ttl time.Duration) error {
	if key == "" {
		return ErrKeyRequired
	}
	if token == "" {
		return errors.New("token is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("invalid token ttl %s", ttl)
	}

	if err := s.client.Set(ctx, s.tokenKey(key), token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}

	return nil
}

// GetAccessToken returns the token stored under key and its remaining lifetime.
func (s *TokenStore) GetAccessToken(ctx context.Context, key string) (string, time.Duration, error) {
	if key == "" {
		return "", 0, ErrKeyRequired
	}

	redisKey := s.tokenKey(key)

	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, redisKey)
	ttlCmd := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return "", 0, fmt.Errorf("failed to get access token: %w", err)
	}

	token, err := getCmd.Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", 0, ErrTokenNotFound
		}
		return "", 0, fmt.Errorf("failed to get access token: %w", err)
	}

	ttl, err := ttlCmd.Result()
	if err != nil {
		return "", 0, fmt.Errorf("failed to get access token ttl: %w", err)
	}
	// keys without expiry are never written by this store
	if ttl <= 0 {
		return "", 0, ErrTokenNotFound
	}

	return token, ttl, nil
}

// DeleteAccessToken removes the token stored under key.
func (s *TokenStore) DeleteAccessToken(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}

	if err := s.client.Del(ctx, s.tokenKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete access token: %w", err)
	}

	return nil
}
