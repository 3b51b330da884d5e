package kernel

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestAdmissionLimiterThrottlesBeyondBurst(t *testing.T) {
	limiter := NewAdmissionLimiter(10, 1)

	start := time.Now()
	limiter.Wait() // consumes the initial burst token, should not block
	limiter.Wait() // must wait roughly 1/10s for the next token
	elapsed := time.Since(start)

	assert.Assert(t, elapsed >= 50*time.Millisecond)
}

func TestNilAdmissionLimiterIsANoOp(t *testing.T) {
	var limiter *AdmissionLimiter
	done := make(chan struct{})
	go func() {
		limiter.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nil AdmissionLimiter.Wait blocked")
	}
}
