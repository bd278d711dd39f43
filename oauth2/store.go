package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"apibridge/common/errors"
)

// TokenStore persists tokens so that multiple processes sharing a backend
// reuse one credential instead of each requesting their own
type TokenStore interface {
	// Save persists a token under the cache key
	Save(ctx context.Context, key string, token *Token) error
	// Load retrieves a previously saved token, returning nil when absent
	Load(ctx context.Context, key string) (*Token, error)
	// Delete removes a token from the store
	Delete(ctx context.Context, key string) error
}

// MemoryStore is the in-process TokenStore used when no shared backend is
// configured
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*Token
}

// NewMemoryStore creates an empty in-memory token store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]*Token),
	}
}

func (s *MemoryStore) Save(_ context.Context, key string, token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *token
	s.tokens[key] = &copied
	return nil
}

func (s *MemoryStore) Load(_ context.Context, key string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, exists := s.tokens[key]
	if !exists || !token.Usable() {
		return nil, nil
	}
	copied := *token
	return &copied, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, key)
	return nil
}

// RedisStore persists tokens in Redis with a TTL matching the token expiry,
// so replicas of the same service share one token per provider
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore creates a Redis-backed token store
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "oauth2:token"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *RedisStore) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, key)
}

func (s *RedisStore) Save(ctx context.Context, key string, token *Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return errors.InternalError("failed to marshal token", err)
	}

	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.redisKey(key), data, ttl).Err(); err != nil {
		return errors.InternalError("failed to save token to redis", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, key string) (*Token, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.InternalError("failed to load token from redis", err)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, errors.InternalError("failed to unmarshal token", err)
	}
	if !token.Usable() {
		return nil, nil
	}
	return &token, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return errors.InternalError("failed to delete token from redis", err)
	}
	return nil
}
