// Package retransmit implements the retry/timeout policy and the
// controller that drives a Transport through repeated attempts,
// generalizing the retry loop shape of the teacher's
// router/radius_router.go RouteRadiusRequest away from its
// server-quarantine bookkeeping and down to the single-endpoint case a
// client core needs.
package retransmit

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Strategy decides how many attempts a request gets and how long each
// attempt waits for a response before the next one fires.
type Strategy interface {
	MaxAttempts() int
	TimeoutForAttempt(attempt int) time.Duration
}

// Constant is the simplest Strategy: every attempt waits the same
// duration, the default the teacher's router falls back to when a
// policy does not specify per-attempt timeouts.
type Constant struct {
	Attempts int
	Timeout  time.Duration
}

func (c Constant) MaxAttempts() int { return c.Attempts }

func (c Constant) TimeoutForAttempt(int) time.Duration { return c.Timeout }

// DefaultStrategy is 3 attempts at 5 seconds each.
var DefaultStrategy = Constant{Attempts: 3, Timeout: 5 * time.Second}

// Exponential grows the per-attempt timeout using
// github.com/cenkalti/backoff/v4's exponential curve, for endpoints
// expected to be transiently slow rather than transiently unreachable.
type Exponential struct {
	Attempts    int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

func (e Exponential) MaxAttempts() int {
	if e.Attempts <= 0 {
		return 3
	}
	return e.Attempts
}

func (e Exponential) TimeoutForAttempt(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.initialWait()
	b.MaxInterval = e.maxWait()
	b.Multiplier = e.multiplier()
	b.RandomizationFactor = 0
	b.Reset()

	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
	}
	if d == backoff.Stop {
		return e.maxWait()
	}
	return d
}

func (e Exponential) initialWait() time.Duration {
	if e.InitialWait <= 0 {
		return 500 * time.Millisecond
	}
	return e.InitialWait
}

func (e Exponential) maxWait() time.Duration {
	if e.MaxWait <= 0 {
		return 8 * time.Second
	}
	return e.MaxWait
}

func (e Exponential) multiplier() float64 {
	if e.Multiplier <= 0 {
		return 2.0
	}
	return e.Multiplier
}

// TotalDeadline returns the wall-clock budget a request driven by s is
// allowed: the sum of every attempt's timeout plus a fixed 5 second
// overhead for encode/decode and identifier allocation, per spec.md
// §4.5's deadline formula.
func TotalDeadline(s Strategy) time.Duration {
	var total time.Duration
	for i := 0; i < s.MaxAttempts(); i++ {
		total += s.TimeoutForAttempt(i)
	}
	return total + 5*time.Second
}
