package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps idempotency records in Redis with a TTL
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a Redis backed store
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl, prefix: "idem:", now: time.Now}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

// Begin claims the key with SETNX or reports what is already stored
func (s *RedisStore) Begin(ctx context.Context, key, fingerprint string) (*Record, error) {
	pending, err := json.Marshal(Record{Status: StatusPending, Fingerprint: fingerprint, CreatedAt: s.now()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, s.key(key), pending, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	raw, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.Begin(ctx, key, fingerprint)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency key: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}

	return checkExisting(&rec, fingerprint)
}

// Complete stores the final response under the key
func (s *RedisStore) Complete(ctx context.Context, key string, record Record) error {
	record.Status = StatusCompleted
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	if err := s.rdb.Set(ctx, s.key(key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store idempotency record: %w", err)
	}
	return nil
}

// Abort releases the key so the request can be retried
func (s *RedisStore) Abort(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}
