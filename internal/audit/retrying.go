package audit

import (
	"context"

	"lerian-mcp-git/internal/retry"
)

// RetryingRecorder retries failed writes to a networked recorder
type RetryingRecorder struct {
	next    Recorder
	retrier *retry.Retrier
}

// WithRetry wraps next so transient Record failures are retried with backoff
func WithRetry(next Recorder, cfg *retry.Config) *RetryingRecorder {
	return &RetryingRecorder{next: next, retrier: retry.New(cfg)}
}

// Record implements Recorder. The event ID is fixed before the first attempt
// so retries do not produce duplicates with different IDs.
func (r *RetryingRecorder) Record(ctx context.Context, event Event) error {
	event = normalize(event)
	return r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.next.Record(ctx, event)
	}).Err
}

// Close implements Recorder
func (r *RetryingRecorder) Close() error {
	return r.next.Close()
}

// Search reads back through the wrapped recorder
func (r *RetryingRecorder) Search(ctx context.Context, criteria SearchCriteria) ([]Event, error) {
	return Search(ctx, r.next, criteria)
}
