package tiktok

import (
	"context"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// GetProfileWithRetry is GetProfile with bounded retries. Between attempts
// the session is rotated, so every retry presents a new identity. Only
// failures IsRetryable accepts are retried.
func (s *Scraper) GetProfileWithRetry(ctx context.Context, username string) (*Result, error) {
	attempts := max(s.cfg.Retry.Attempts, 1)

	return retry.DoWithData(
		func() (*Result, error) {
			return s.GetProfile(ctx, username)
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(s.cfg.Retry.BaseDelay),
		retry.MaxDelay(s.cfg.Retry.MaxDelay),
		retry.MaxJitter(max(s.cfg.Retry.BaseDelay/2, time.Millisecond)),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn().
				Err(err).
				Str("user", username).
				Uint("attempt", n+1).
				Int("max_attempts", attempts).
				Msg("profile fetch failed, rotating session")
			if rerr := s.engine.Rotate(ctx); rerr != nil {
				s.logger.Debug().Err(rerr).Msg("rotate before retry")
			}
		}),
	)
}
