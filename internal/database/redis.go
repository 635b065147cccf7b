package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis configures a Redis client using the supplied URL and pings it,
// retrying up to maxRetries additional times.
func ConnectRedis(ctx context.Context, url string, maxRetries int, wait time.Duration) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url must not be empty")
	}

	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if maxRetries > 0 {
		options.MaxRetries = maxRetries
	}

	client := redis.NewClient(options)

	var pingErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if pingErr = client.Ping(ctx).Err(); pingErr == nil {
			return client, nil
		}
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, fmt.Errorf("unable to connect to redis: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	_ = client.Close()
	return nil, fmt.Errorf("unable to connect to redis: %w", pingErr)
}
