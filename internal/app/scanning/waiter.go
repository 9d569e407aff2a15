package scanning

import (
	"context"
	"time"
)

// Waiter suspends the calling goroutine between two status polls. The
// suspension ends early, with the context's error, if ctx is done.
type Waiter interface {
	Wait(ctx context.Context, d time.Duration) error
}

// timerWaiter waits on a runtime timer. Only the calling goroutine is parked,
// so concurrent runs keep making progress.
type timerWaiter struct{}

// Wait implements Waiter.
func (timerWaiter) Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type timeProvider interface {
	Now() time.Time
}

// realTimeProvider is a real implementation of the timeProvider interface.
type realTimeProvider struct{}

// Now returns the current time.
func (realTimeProvider) Now() time.Time { return time.Now().UTC() }

// PhasePolicy holds the polling and timeout policy applied to each phase.
type PhasePolicy struct {
	// CrawlPollInterval is the delay between crawl status polls. Crawls are
	// awaited without an upper bound.
	CrawlPollInterval time.Duration
	// AjaxPollInterval is the delay between AJAX crawler state polls.
	AjaxPollInterval time.Duration
	// AjaxTimeout bounds how long the AJAX crawl is awaited before the
	// sequencer moves on with partial results.
	AjaxTimeout time.Duration
	// AjaxResultCount is the number of AJAX results fetched after the phase.
	AjaxResultCount int
	// AwaitActiveScan makes the sequencer poll the active scan to completion
	// instead of continuing as soon as it is launched.
	AwaitActiveScan bool
	// ActiveScanPollInterval is used only when AwaitActiveScan is set.
	ActiveScanPollInterval time.Duration
}

// DefaultPhasePolicy returns the default policy: 1s crawl polls, 2s AJAX polls
// bounded at two minutes, and a fire-and-continue active scan.
func DefaultPhasePolicy() PhasePolicy {
	return PhasePolicy{
		CrawlPollInterval:      time.Second,
		AjaxPollInterval:       2 * time.Second,
		AjaxTimeout:            2 * time.Minute,
		AjaxResultCount:        10,
		AwaitActiveScan:        false,
		ActiveScanPollInterval: 5 * time.Second,
	}
}
