package tiktok

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// MaxBatchSize bounds one RunBatch call.
const MaxBatchSize = 1000

// BatchItem is the outcome for one requested username.
type BatchItem struct {
	Username string  `json:"username"`
	Result   *Result `json:"result,omitempty"`
	Err      error   `json:"-"`
	Error    string  `json:"error,omitempty"`
}

// BatchSummary counts batch outcomes.
type BatchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Summarize counts successes and failures.
func Summarize(items []BatchItem) BatchSummary {
	s := BatchSummary{Total: len(items)}
	for _, it := range items {
		if it.Err != nil {
			s.Failed++
		} else {
			s.Succeeded++
		}
	}
	return s
}

// RunBatch fetches usernames with cfg.Concurrency workers. Each worker owns
// its own Scraper and so its own fingerprint and session; all workers share
// one rate limiter when cfg.RequestsPerMinute is set. Items come back in
// input order. A failed profile is recorded on its item and the run goes
// on; the returned error is only for setup failures and cancellation.
func RunBatch(ctx context.Context, cfg Config, usernames []string, opts ...EngineOption) ([]BatchItem, error) {
	if len(usernames) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrValidation)
	}
	if len(usernames) > MaxBatchSize {
		return nil, fmt.Errorf("%w: batch of %d exceeds %d", ErrValidation, len(usernames), MaxBatchSize)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	workerOpts := opts
	if l := cfg.Limiter(); l != nil {
		workerOpts = append([]EngineOption{WithLimiter(l)}, opts...)
	}

	items := make([]BatchItem, len(usernames))
	for i, u := range usernames {
		items[i].Username = u
	}

	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for i := range usernames {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	workers := min(cfg.Concurrency, len(usernames))
	for w := range workers {
		g.Go(func() error {
			s, err := New(cfg, workerOpts...)
			if err != nil {
				return fmt.Errorf("worker %d: %w", w, err)
			}
			defer s.Close()

			for i := range jobs {
				res, err := s.GetProfileWithRetry(gctx, usernames[i])
				if err != nil {
					items[i].Err = err
					items[i].Error = err.Error()
					s.logger.Error().Err(err).Int("worker", w).Str("user", usernames[i]).Msg("profile failed")
					continue
				}
				items[i].Result = res
			}
			return nil
		})
	}

	err := g.Wait()
	for i := range items {
		if items[i].Result == nil && items[i].Err == nil {
			items[i].Err = fmt.Errorf("%s: not attempted: %w", items[i].Username, context.Cause(gctx))
			items[i].Error = items[i].Err.Error()
		}
	}
	return items, err
}
