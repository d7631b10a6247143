// Package redis provides the fast-path fingerprint guard. The bank_movement
// table's unique constraint remains the source of truth; this store only
// spares the parser and database a round trip for messages fetched again
// within the TTL.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeenStore implements usecase.SeenStore over plain Redis keys with a TTL.
type SeenStore struct {
	client *redis.Client
	prefix string
}

// NewSeenStore creates a new SeenStore.
func NewSeenStore(client *redis.Client) *SeenStore {
	return &SeenStore{
		client: client,
		prefix: "movement:seen:",
	}
}

// Seen reports whether the fingerprint is recorded. It is a plain read;
// nothing gets marked until the block's movement is safely persisted.
func (s *SeenStore) Seen(ctx context.Context, fingerprint string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+fingerprint).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// Mark records the fingerprint for ttl.
func (s *SeenStore) Mark(ctx context.Context, fingerprint string, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+fingerprint, "1", ttl).Err()
}
