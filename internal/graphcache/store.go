package graphcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "graph:user:"

// RedisStore keeps entries under graph:user:<id>, shared by every process.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL expires entries after d. Zero keeps them until replaced.
func WithTTL(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = d }
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func redisKey(userID int) string {
	return keyPrefix + strconv.Itoa(userID)
}

func (s *RedisStore) Get(ctx context.Context, userID int) (*Entry, error) {
	raw, err := s.client.Get(ctx, redisKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read graph cache: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode graph cache entry: %w", err)
	}
	return &e, nil
}

func (s *RedisStore) Put(ctx context.Context, userID int, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode graph cache entry: %w", err)
	}
	return s.client.Set(ctx, redisKey(userID), raw, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, userID int) error {
	return s.client.Del(ctx, redisKey(userID)).Err()
}

// MemoryStore keeps entries in process, evicting the least recently used user.
type MemoryStore struct {
	cache *lru.Cache[int, Entry]
}

func NewMemoryStore(size int) (*MemoryStore, error) {
	cache, err := lru.New[int, Entry](size)
	if err != nil {
		return nil, fmt.Errorf("create graph cache: %w", err)
	}
	return &MemoryStore{cache: cache}, nil
}

func (s *MemoryStore) Get(_ context.Context, userID int) (*Entry, error) {
	e, ok := s.cache.Get(userID)
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *MemoryStore) Put(_ context.Context, userID int, e Entry) error {
	s.cache.Add(userID, e)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, userID int) error {
	s.cache.Remove(userID)
	return nil
}
