package database

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// ConnectNATS dials the server, retrying up to maxRetries additional times.
// Once connected the client reconnects without limit.
func ConnectNATS(ctx context.Context, url string, maxRetries int, wait time.Duration, opts ...nats.Option) (*nats.Conn, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url must not be empty")
	}

	opts = append(opts,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(wait),
	)

	var dialErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		conn, err := nats.Connect(url, opts...)
		if err == nil {
			return conn, nil
		}
		dialErr = err
		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("unable to connect to nats: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	return nil, fmt.Errorf("unable to connect to nats: %w", dialErr)
}
