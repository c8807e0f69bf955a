// Package cache stores rendered published previews in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const previewKeyPrefix = "kittpages:preview:"

// PreviewCache caches JSON-encodable previews keyed by document id.
type PreviewCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect parses url, connects and pings before returning.
func Connect(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// New wraps client. Entries expire after ttl.
func New(client *redis.Client, ttl time.Duration) *PreviewCache {
	return &PreviewCache{client: client, ttl: ttl}
}

func previewKey(documentID string) string {
	return previewKeyPrefix + documentID
}

// Get decodes the cached preview for documentID into v. It reports false on
// a miss.
func (c *PreviewCache) Get(ctx context.Context, documentID string, v any) (bool, error) {
	data, err := c.client.Get(ctx, previewKey(documentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading preview %s from redis: %w", documentID, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding cached preview %s: %w", documentID, err)
	}
	return true, nil
}

// Set stores v for documentID.
func (c *PreviewCache) Set(ctx context.Context, documentID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding preview %s: %w", documentID, err)
	}
	if err := c.client.Set(ctx, previewKey(documentID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("storing preview %s in redis: %w", documentID, err)
	}
	return nil
}

// Invalidate drops the cached previews of the given documents.
func (c *PreviewCache) Invalidate(ctx context.Context, documentIDs ...string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	keys := make([]string, len(documentIDs))
	for i, id := range documentIDs {
		keys[i] = previewKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidating previews: %w", err)
	}
	return nil
}
