package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"github.com/vnquant/marketlake/pkg/lake"
)

// RetryConfig bounds per-entity retries. Rate-limited fetches back off
// longer than transient connectivity failures; permanent failures are
// never retried.
type RetryConfig struct {
	MaxAttempts         int
	RateLimitBackoff    time.Duration
	ConnectivityBackoff time.Duration
}

// DefaultRetryConfig mirrors the source's published quota behavior: a
// rate-limit window clears in roughly twenty seconds, transient transport
// errors usually clear in two.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         10,
		RateLimitBackoff:    20 * time.Second,
		ConnectivityBackoff: 2 * time.Second,
	}
}

// fetchWithRetry fetches one entity under the retry policy. A nil record
// set with a nil error means the entity was skipped; the reason is
// returned for the run summary. Context cancellation aborts immediately
// and is the only error surfaced to the caller.
func fetchWithRetry(ctx context.Context, s Session, entity string, w Window, cfg RetryConfig, logger *zap.Logger) (*lake.RecordSet, string, error) {
	var lastClass FailureClass
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		rs, err := s.Fetch(ctx, entity, w)
		if err == nil {
			return rs, "", nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}

		lastClass = Classify(err)
		var delay time.Duration
		switch lastClass {
		case FailureRateLimit:
			delay = cfg.RateLimitBackoff
		case FailureConnectivity:
			delay = cfg.ConnectivityBackoff
		default:
			logger.Warn("permanent fetch error, skipping entity",
				zap.String("entity", entity),
				zap.Error(err),
			)
			return nil, fmt.Sprintf("permanent: %v", err), nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}
		logger.Warn("fetch failed, retrying",
			zap.String("entity", entity),
			zap.String("class", lastClass.String()),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Sprintf("%s: exhausted %d attempts", lastClass, cfg.MaxAttempts), nil
}
