package bus

import (
	"time"

	"github.com/motioncore/stservoctl/protocol"
)

// retryPolicy names the bounded-attempt/backoff pair for one operation
// family, factored into a single generic retry combinator rather than
// duplicated at each call site.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

var (
	singleReadPolicy    = retryPolicy{attempts: 3, backoff: 50 * time.Millisecond}
	singleWritePolicy   = retryPolicy{attempts: 1, backoff: 0}
	groupSyncPolicy     = retryPolicy{attempts: 2, backoff: 50 * time.Millisecond}
	eepromGuardedPolicy = retryPolicy{attempts: 5, backoff: 50 * time.Millisecond}
)

// withRetry runs op up to policy.attempts times, sleeping policy.backoff
// between attempts, stopping at the first Success. The last non-success
// result/error pair is returned if every attempt is exhausted.
func withRetry(policy retryPolicy, op func() (protocol.TransportResult, error)) (protocol.TransportResult, error) {
	var lastResult protocol.TransportResult
	var lastErr error
	for attempt := 0; attempt < policy.attempts; attempt++ {
		if attempt > 0 && policy.backoff > 0 {
			time.Sleep(policy.backoff)
		}
		lastResult, lastErr = op()
		if lastResult == protocol.Success {
			return lastResult, nil
		}
	}
	return lastResult, lastErr
}
