package connection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spacesedan/moodjournal/config"
)

// InitWithRetry calls Init up to attempts times, waiting delay between tries.
// Only retryable sign-in failures are retried.
func InitWithRetry(ctx context.Context, cfg config.Config, attempts int, delay time.Duration, opts ...Option) (*Connection, error) {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		var conn *Connection
		conn, err = Init(ctx, cfg, opts...)
		if err == nil {
			return conn, nil
		}

		var signInErr *SignInError
		if !errors.As(err, &signInErr) || !signInErr.Retryable() || i == attempts-1 {
			break
		}

		slog.Warn("[Connection] Sign-in failed, retrying...",
			slog.Int("attempt", i+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, err
}
