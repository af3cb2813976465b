package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists one Checkout per visitor. Load returns a new Checkout when
// nothing is stored.
type Store interface {
	Load(ctx context.Context, visitor string) (*Checkout, error)
	Save(ctx context.Context, visitor string, c *Checkout) error
}

type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func Key(visitor string) string {
	return "checkout:" + visitor
}

func (s *RedisStore) Load(ctx context.Context, visitor string) (*Checkout, error) {
	data, err := s.rdb.Get(ctx, Key(visitor)).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkout: %w", err)
	}

	c := New()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decode checkout: %w", err)
	}
	if c.Cart.Selected == nil {
		c.Cart.Selected = make(map[string]bool)
	}
	if !c.Step.Valid() {
		c.Step = StepItems
	}
	return c, nil
}

func (s *RedisStore) Save(ctx context.Context, visitor string, c *Checkout) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode checkout: %w", err)
	}
	if err := s.rdb.Set(ctx, Key(visitor), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save checkout: %w", err)
	}
	return nil
}

// MemoryStore keeps checkouts in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Load(_ context.Context, visitor string) (*Checkout, error) {
	m.mu.Lock()
	data, ok := m.data[visitor]
	m.mu.Unlock()

	c := New()
	if !ok {
		return c, nil
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (m *MemoryStore) Save(_ context.Context, visitor string, c *Checkout) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[visitor] = data
	return nil
}
