// Package fetch implements the Fetch Coordinator (C6): a bounded-
// concurrency executor that runs adapter calls under a semaphore, with
// per-attempt timeout and exponential backoff retry.
package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/arborcal/calagg/internal/adapter"
	"github.com/arborcal/calagg/internal/model"
)

// Config holds the coordinator's tunables, mirroring internal/config's
// FetchConfig shape.
type Config struct {
	MaxConcurrentFetches int
	FetchTimeout         time.Duration
	RetryAttempts        int
	RetryDelay           time.Duration
}

// Coordinator dispatches adapter.FetchEvents calls under a shared permit
// pool, isolating one source's failure from another's.
type Coordinator struct {
	cfg  Config
	sema *semaphore.Weighted
}

func New(cfg Config) *Coordinator {
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = 1
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	return &Coordinator{
		cfg:  cfg,
		sema: semaphore.NewWeighted(int64(cfg.MaxConcurrentFetches)),
	}
}

// Outcome is a single source's fetch result: either raw events on
// success, or the final error after retries are exhausted.
type Outcome struct {
	SourceID string
	Events   []model.RawEvent
	Result   model.FetchResult
	Err      error
}

// Fetch acquires a permit, then retries adapter.FetchEvents up to
// RetryAttempts times with exponential backoff and jitter before giving
// up. It never returns an error itself — failures are reported through
// Outcome.Err / Outcome.Result so the caller can isolate per-source
// failures without aborting the rest of a fan-out.
func (c *Coordinator) Fetch(ctx context.Context, a adapter.Adapter, source model.CalendarSource, dateRange model.DateRange) Outcome {
	if err := c.sema.Acquire(ctx, 1); err != nil {
		return Outcome{
			SourceID: source.ID,
			Result:   model.FetchResult{SourceID: source.ID, Success: false, Error: err.Error()},
			Err:      err,
		}
	}
	defer c.sema.Release(1)

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if c.cfg.FetchTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.FetchTimeout)
		}
		events, err := a.FetchEvents(attemptCtx, source, dateRange)
		if err != nil && attemptCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("fetch timeout after %s: %w", c.cfg.FetchTimeout, err)
		}
		if cancel != nil {
			cancel()
		}
		if err == nil {
			elapsed := time.Since(start)
			return Outcome{
				SourceID: source.ID,
				Events:   events,
				Result: model.FetchResult{
					SourceID:   source.ID,
					Success:    true,
					FetchTime:  elapsed,
					EventCount: len(events),
				},
			}
		}
		lastErr = err
		if attempt < c.cfg.RetryAttempts {
			sleepWithJitter(c.cfg.RetryDelay, attempt)
		}
	}

	elapsed := time.Since(start)
	return Outcome{
		SourceID: source.ID,
		Result: model.FetchResult{
			SourceID:  source.ID,
			Success:   false,
			FetchTime: elapsed,
			Error:     fmt.Sprintf("%v", lastErr),
		},
		Err: lastErr,
	}
}

// sleepWithJitter sleeps retryDelay * 2^(attempt-1), plus up to 20%
// jitter, so a burst of retrying sources does not resynchronize.
func sleepWithJitter(retryDelay time.Duration, attempt int) {
	backoff := retryDelay << uint(attempt-1)
	jitter := time.Duration(rand.Int63n(int64(backoff)/5 + 1))
	time.Sleep(backoff + jitter)
}

// Run executes fn under the coordinator's shared permit pool, the same
// limit that bounds adapter.FetchEvents calls. Used by the Health
// Monitor so probing every source concurrently cannot exceed
// maxConcurrentFetches any more than a fetch fan-out can.
func (c *Coordinator) Run(ctx context.Context, fn func()) error {
	if err := c.sema.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sema.Release(1)
	fn()
	return nil
}

// FetchAll fans a dateRange out across sources concurrently, one
// Coordinator.Fetch call per source, and collects results as they
// complete. One source's failure never prevents another's outcome from
// being collected.
func (c *Coordinator) FetchAll(ctx context.Context, sources []model.CalendarSource, lookup func(model.SourceType) (adapter.Adapter, error), dateRange model.DateRange) []Outcome {
	outcomes := make([]Outcome, len(sources))
	done := make(chan int, len(sources))

	for i, source := range sources {
		go func(i int, source model.CalendarSource) {
			a, err := lookup(source.Type)
			if err != nil {
				outcomes[i] = Outcome{
					SourceID: source.ID,
					Result:   model.FetchResult{SourceID: source.ID, Success: false, Error: err.Error()},
					Err:      err,
				}
				done <- i
				return
			}
			outcomes[i] = c.Fetch(ctx, a, source, dateRange)
			done <- i
		}(i, source)
	}

	for range sources {
		<-done
	}
	return outcomes
}
