package core

import (
	"context"
	"errors"
	"time"
)

// ErrTooManyRuns is returned when every run slot stays taken for the whole
// wait period.
var ErrTooManyRuns = errors.New("too many concurrent runs, please try again later")

const (
	// DefaultMaxConcurrentRuns is the slot count used when none is configured.
	DefaultMaxConcurrentRuns = 5

	// DefaultMaxWaitTime is how long Acquire queues for a slot by default.
	DefaultMaxWaitTime = 30 * time.Second

	drainPollInterval = 100 * time.Millisecond
)

// RunLimiter caps the number of cleaning runs in flight. A run holds the
// raw upload and its decoded copy in memory until it finishes, so the cap
// bounds peak memory as well as CPU.
//
// The slot channel is the only state: a buffered send takes a slot and a
// receive frees one.
type RunLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
}

// NewRunLimiter creates a limiter with maxConcurrent slots. Acquire gives up
// after maxWait. Non-positive values select the defaults.
func NewRunLimiter(maxConcurrent int, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &RunLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// TryAcquire takes a free slot if there is one and never blocks.
func (l *RunLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire takes a slot, queueing for at most the limiter's wait time.
// It returns ErrTooManyRuns on timeout or ctx's error if ctx ends first.
// Every successful Acquire must be paired with Release.
func (l *RunLimiter) Acquire(ctx context.Context) error {
	if l.TryAcquire() {
		return nil
	}

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyRuns
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *RunLimiter) Release() {
	<-l.slots
}

// ActiveCount returns the number of slots in use.
func (l *RunLimiter) ActiveCount() int { return len(l.slots) }

// MaxConcurrent returns the slot count.
func (l *RunLimiter) MaxConcurrent() int { return cap(l.slots) }

// Available returns the number of free slots.
func (l *RunLimiter) Available() int { return l.MaxConcurrent() - l.ActiveCount() }

// WaitForDrain blocks until no slot is in use or ctx ends.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	if l.ActiveCount() == 0 {
		return nil
	}

	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}

// LimiterStatus is a point-in-time view of a RunLimiter.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status reports slot usage for the status endpoint and shutdown logging.
func (l *RunLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}
