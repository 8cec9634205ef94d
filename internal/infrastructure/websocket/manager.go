// Package websocket holds the shared reconnect policy for streaming feeds.
package websocket

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig shapes the reconnect backoff for one stream.
type RetryConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

var DefaultRetryConfig = RetryConfig{
	InitialDelay: 1 * time.Second,
	MaxDelay:     30 * time.Second,
}

// RunLoop drives consume until ctx ends, reconnecting with exponential
// backoff. The delay resets after a session that survived past MaxDelay.
func RunLoop(ctx context.Context, name string, cfg RetryConfig, consume func(context.Context) error) {
	if cfg.InitialDelay <= 0 {
		cfg = DefaultRetryConfig
	}
	delay := cfg.InitialDelay
	for {
		started := time.Now()
		if err := consume(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("stream", name).Dur("retry_in", delay).Msg("websocket dropped, reconnecting")
		}
		if time.Since(started) > cfg.MaxDelay {
			delay = cfg.InitialDelay
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
