package elasticsearch

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pinger is satisfied by *Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WaitReady pings until Elasticsearch answers, doubling the delay between
// attempts up to 30s. It gives up after attempts tries or when ctx is done.
func WaitReady(ctx context.Context, log *slog.Logger, es Pinger, attempts int, delay time.Duration) error {
	var err error
	for i := 1; i <= attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = es.Ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if i == attempts {
			break
		}

		log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", i),
			slog.Int("max_retries", attempts),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, 30*time.Second)
	}
	return fmt.Errorf("elasticsearch not ready after %d attempts: %w", attempts, err)
}
