package alerts

import (
	"context"
	"time"
)

// SummaryCache shields the alert store from repeated dashboard polls.
// The noop implementation keeps single-node and test setups simple.
type SummaryCache interface {
	Get(ctx context.Context, key string) (*Summary, bool, error)
	Set(ctx context.Context, key string, value *Summary, ttl time.Duration) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string) (*Summary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ string, _ *Summary, _ time.Duration) error {
	return nil
}
