package registration

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReferenceCache is a read-through cache for issued references. Only
// immutable data goes through it.
type ReferenceCache interface {
	Get(ctx context.Context, rollNo string) (*Reference, error)
	Set(ctx context.Context, ref Reference) error
}

// RedisReferenceCache stores references as JSON under gradportal:ref:<rollno>.
type RedisReferenceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReferenceCache creates a cache. A zero ttl keeps entries forever.
func NewRedisReferenceCache(client *redis.Client, ttl time.Duration) *RedisReferenceCache {
	return &RedisReferenceCache{client: client, ttl: ttl}
}

func referenceKey(rollNo string) string { return "gradportal:ref:" + rollNo }

// Get returns nil, nil on a miss.
func (c *RedisReferenceCache) Get(ctx context.Context, rollNo string) (*Reference, error) {
	raw, err := c.client.Get(ctx, referenceKey(rollNo)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var ref Reference
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

// Set stores ref.
func (c *RedisReferenceCache) Set(ctx context.Context, ref Reference) error {
	raw, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, referenceKey(ref.RollNo), raw, c.ttl).Err()
}
