package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// Prefix is prepended to every key. Defaults to "gaffer:export:".
	Prefix string

	// TTL expires exports. Zero keeps them until overwritten.
	TTL time.Duration

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration
}

// RedisCache keeps exports in Redis so several processes can read them.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to Redis and pings it.
func NewRedisCache(opts RedisOptions) (*RedisCache, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Prefix == "" {
		opts.Prefix = "gaffer:export:"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, prefix: opts.Prefix, ttl: opts.TTL}, nil
}

func (c *RedisCache) key(jobID, key string) string {
	return c.prefix + jobID + ":" + key
}

// Put stores items as a JSON array.
func (c *RedisCache) Put(ctx context.Context, jobID, key string, items []any) error {
	data, err := EncodeItems(items)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(jobID, key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store export %s/%s: %w", jobID, key, err)
	}
	return nil
}

// Get loads and decodes the items stored under (jobID, key).
func (c *RedisCache) Get(ctx context.Context, jobID, key string) ([]any, bool, error) {
	data, err := c.client.Get(ctx, c.key(jobID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load export %s/%s: %w", jobID, key, err)
	}
	items, err := DecodeItems(data)
	if err != nil {
		return nil, false, err
	}
	return items, true, nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ ResultCache = (*RedisCache)(nil)
