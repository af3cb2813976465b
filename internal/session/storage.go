package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys persisted in a visitor's storage.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "authUser"
	KeyTheme        = "design-theme"
	KeyLanguage     = "appLanguage"
)

// Storage is a visitor's string key/value area. Get returns "" for a key
// that was never set.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, keys ...string) error
}

// StorageFactory opens the storage of one visitor.
type StorageFactory func(visitor string) Storage

// RedisStorage keeps a visitor's keys in one hash. Every write pushes the
// expiry forward.
type RedisStorage struct {
	rdb redis.Cmdable
	key string
	ttl time.Duration
}

func NewRedisStorage(rdb redis.Cmdable, visitor string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{rdb: rdb, key: StorageKey(visitor), ttl: ttl}
}

// RedisStorageFactory opens RedisStorage for each visitor.
func RedisStorageFactory(rdb redis.Cmdable, ttl time.Duration) StorageFactory {
	return func(visitor string) Storage {
		return NewRedisStorage(rdb, visitor, ttl)
	}
}

func StorageKey(visitor string) string {
	return "storage:" + visitor
}

func (s *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.HGet(ctx, s.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("storage get %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.HSet(ctx, s.key, key, value).Err(); err != nil {
		return fmt.Errorf("storage set %s: %w", key, err)
	}
	if s.ttl > 0 {
		if err := s.rdb.Expire(ctx, s.key, s.ttl).Err(); err != nil {
			return fmt.Errorf("storage expire: %w", err)
		}
	}
	return nil
}

func (s *RedisStorage) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.HDel(ctx, s.key, keys...).Err(); err != nil {
		return fmt.Errorf("storage remove: %w", err)
	}
	return nil
}

// MemoryStorage is an in-process Storage.
type MemoryStorage struct {
	mu   sync.Mutex
	data map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string)}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStorage) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}
