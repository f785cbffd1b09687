// Package ingest decides, per asset and run, whether a full historical
// backfill or an incremental top-up is needed, computes the entity
// worklist, and executes it through a retrying fetch worker pool.
package ingest

import "errors"

var (
	// ErrRateLimited marks a fetch refused by the remote source's quota.
	// Retried with the long backoff up to the attempt cap.
	ErrRateLimited = errors.New("rate limited")
	// ErrConnectivity marks a transient transport failure (timeouts,
	// resets, 5xx). Retried with the short backoff up to the attempt cap.
	ErrConnectivity = errors.New("connectivity failure")
)

// FailureClass is the three-way classification every source error falls
// into. The pool dispatches on the class, never on concrete error types of
// the transport underneath.
type FailureClass int

const (
	// FailureRateLimit - quota exhaustion, retry slowly.
	FailureRateLimit FailureClass = iota
	// FailureConnectivity - transient transport failure, retry quickly.
	FailureConnectivity
	// FailurePermanent - anything else, skip the entity immediately.
	FailurePermanent
)

func (c FailureClass) String() string {
	switch c {
	case FailureRateLimit:
		return "rate_limit"
	case FailureConnectivity:
		return "connectivity"
	default:
		return "permanent"
	}
}

// Classify maps a source error onto its failure class.
func Classify(err error) FailureClass {
	switch {
	case errors.Is(err, ErrRateLimited):
		return FailureRateLimit
	case errors.Is(err, ErrConnectivity):
		return FailureConnectivity
	default:
		return FailurePermanent
	}
}
