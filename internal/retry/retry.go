// Package retry computes reconnect and refresh delays from a count of
// consecutive failures.
package retry

import (
	"math/rand/v2"
	"sync"
	"time"
)

const (
	// MaxDelay caps every computed delay.
	MaxDelay = 25 * time.Second

	minDelayFloor = 250 * time.Millisecond
	baseDelay     = 500 * time.Millisecond
	stepDelay     = 2 * time.Second
)

// Strategy tracks consecutive failures and derives the next wait from
// them. Implementations must be safe for concurrent use.
type Strategy interface {
	ConsecutiveFailures() int
	IncrementConsecutiveFailures()
	ResetConsecutiveFailures()
	// NextRetryDelay returns the delay before the next attempt and
	// counts the attempt as a failure.
	NextRetryDelay() time.Duration
}

// Backoff is the default Strategy. The delay window grows by two seconds
// per failure and is capped at MaxDelay; the actual delay is drawn
// uniformly from the window.
type Backoff struct {
	mu       sync.Mutex
	failures int
	max      time.Duration
}

// NewBackoff returns a Backoff capped at MaxDelay.
func NewBackoff() *Backoff {
	return &Backoff{max: MaxDelay}
}

// NewBackoffWithMax returns a Backoff capped at ceiling.
func NewBackoffWithMax(ceiling time.Duration) *Backoff {
	return &Backoff{max: ceiling}
}

func (b *Backoff) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.failures
}

func (b *Backoff) IncrementConsecutiveFailures() {
	b.mu.Lock()
	b.failures++
	b.mu.Unlock()
}

func (b *Backoff) ResetConsecutiveFailures() {
	b.mu.Lock()
	b.failures = 0
	b.mu.Unlock()
}

func (b *Backoff) NextRetryDelay() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	lo, hi := window(b.failures, b.max)
	b.failures++

	if hi <= lo {
		return lo
	}

	return lo + time.Duration(rand.Int64N(int64(hi-lo)))
}

// window returns the [lo, hi) range of delays for the given number of
// prior failures.
func window(failures int, ceiling time.Duration) (time.Duration, time.Duration) {
	hi := min(baseDelay+time.Duration(failures)*stepDelay, ceiling)
	lo := min(max(minDelayFloor, time.Duration(failures-1)*stepDelay), ceiling)

	if lo > hi {
		lo = hi
	}

	return lo, hi
}
