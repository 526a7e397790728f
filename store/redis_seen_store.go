package store

import (
	"context"
	"time"
)

// RedisSeenStore caches payment references that already settled, so repeated
// webhook deliveries can be answered without a Postgres round trip. The
// payments table remains the authority; this cache is allowed to miss.
type RedisSeenStore struct {
	client *RedisClient
	ttl    time.Duration
}

func NewRedisSeenStore(client *RedisClient, ttl time.Duration) *RedisSeenStore {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &RedisSeenStore{client: client, ttl: ttl}
}

func (s *RedisSeenStore) Settled(ctx context.Context, reference string) (bool, error) {
	return s.client.Exists(ctx, s.client.key("settled", reference))
}

func (s *RedisSeenStore) MarkSettled(ctx context.Context, reference string) error {
	_, err := s.client.SetNX(ctx, s.client.key("settled", reference), "1", s.ttl)
	return err
}
