package kernel

import (
	"context"

	"golang.org/x/time/rate"
)

// defaultAdmissionRate and defaultAdmissionBurst bound how fast inbound shell
// frames are admitted onto the dispatch loop, per SPEC_FULL §5's added
// paragraph: "protecting the single-threaded loop from an unbounded burst of
// shell requests." A request that arrives over the limit is not dropped or
// reordered, just made to wait for its turn at the front of dispatchQueue.
const (
	defaultAdmissionRate  = 200 // requests per second
	defaultAdmissionBurst = 50
)

// AdmissionLimiter wraps a token-bucket limiter around the dispatch loop's
// shell admission path. It never reorders frames: Wait is called at the top
// of dispatchQueue and blocks the dispatch loop goroutine until a token is
// available, so shell frames are still dispatched in arrival order.
type AdmissionLimiter struct {
	limiter *rate.Limiter
}

// NewAdmissionLimiter builds a limiter from a requests-per-second rate and a
// burst size. Kernels built with a nil Config.Admission get
// NewDefaultAdmissionLimiter instead.
func NewAdmissionLimiter(requestsPerSecond float64, burst int) *AdmissionLimiter {
	return &AdmissionLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// NewDefaultAdmissionLimiter builds a limiter using defaultAdmissionRate and
// defaultAdmissionBurst.
func NewDefaultAdmissionLimiter() *AdmissionLimiter {
	return NewAdmissionLimiter(defaultAdmissionRate, defaultAdmissionBurst)
}

// Wait blocks until the next frame may be admitted. Calling Wait on a nil
// *AdmissionLimiter is a no-op.
func (a *AdmissionLimiter) Wait() {
	if a == nil || a.limiter == nil {
		return
	}
	a.limiter.Wait(context.Background())
}
