package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ReconnectConfig holds configuration for reconnection logic
type ReconnectConfig struct {
	MaxAttempts int           // Maximum number of reconnection attempts
	Backoff     time.Duration // Backoff duration between attempts
	Multiplier  float64       // Backoff multiplier for exponential backoff
	MaxBackoff  time.Duration // Maximum backoff duration
}

// DefaultReconnectConfig returns a default reconnection configuration
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		MaxAttempts: 5,
		Backoff:     1 * time.Second,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// ReconnectFunc is a function that attempts to reconnect
type ReconnectFunc func() error

// Reconnect attempts to (re)connect a named dependency with exponential backoff
func Reconnect(ctx context.Context, name string, fn ReconnectFunc, config *ReconnectConfig) error {
	if config == nil {
		config = DefaultReconnectConfig()
	}

	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	backoff := config.Backoff
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		// Check if context is cancelled
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Attempt to reconnect
		err := fn()
		if err == nil {
			if attempt > 0 {
				log.Info().Str("dependency", name).Int("attempts", attempt+1).Msg("Connection established after retries")
			}
			return nil
		}
		lastErr = err

		// Don't sleep after the last attempt
		if attempt < maxAttempts-1 {
			log.Warn().
				Err(err).
				Str("dependency", name).
				Int("attempt", attempt+1).
				Int("max_attempts", maxAttempts).
				Dur("backoff", backoff).
				Msg("Connection attempt failed, retrying")

			// Wait before next attempt
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				// Increase backoff for next attempt
				backoff = time.Duration(float64(backoff) * config.Multiplier)
				if backoff > config.MaxBackoff {
					backoff = config.MaxBackoff
				}
			}
		}
	}

	return fmt.Errorf("failed to connect %s after %d attempts: %w", name, maxAttempts, lastErr)
}

