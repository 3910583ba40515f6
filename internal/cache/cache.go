package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const feedPrefix = "holiday:feed:"

// DefaultFeedTTL keeps a cached holiday feed usable across long feed outages.
const DefaultFeedTTL = 30 * 24 * time.Hour

// ErrMiss is returned when a key is not cached.
var ErrMiss = errors.New("cache miss")

type Cache struct {
	Client  *redis.Client
	FeedTTL time.Duration
}

func New(redisURL string) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Cache{Client: client, FeedTTL: DefaultFeedTTL}, nil
}

func (c *Cache) Close() error {
	return c.Client.Close()
}

// SetFeed stores the raw ICS body of a holiday calendar.
func (c *Cache) SetFeed(ctx context.Context, code string, body []byte) error {
	return c.Client.Set(ctx, feedPrefix+code, body, c.FeedTTL).Err()
}

// GetFeed returns the last stored ICS body of a holiday calendar.
func (c *Cache) GetFeed(ctx context.Context, code string) ([]byte, error) {
	body, err := c.Client.Get(ctx, feedPrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return body, err
}
