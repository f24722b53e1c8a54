package core

// check_limiter.go bounds how many dataset checks the server runs at once.
//
// A check holds a slot in a buffered channel for its whole run. Requests
// that cannot get a slot within the configured wait fail with
// ErrTooManyChecks. WaitForDrain lets shutdown wait for running checks.

import (
	"context"
	"errors"
	"time"
)

// ErrTooManyChecks is returned when no slot frees up within the wait time.
// Clients should retry after a short delay.
var ErrTooManyChecks = errors.New("too many concurrent checks, please try again later")

const (
	DefaultMaxConcurrentChecks = 4
	DefaultMaxWaitTime         = 30 * time.Second
)

// CheckLimiter is a counting semaphore for dataset checks.
type CheckLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
}

// NewCheckLimiter allows at most maxConcurrent checks, each waiting at most
// maxWait for a slot. Non-positive arguments select the defaults.
func NewCheckLimiter(maxConcurrent int, maxWait time.Duration) *CheckLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentChecks
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &CheckLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot. Every successful Acquire must be paired with Release.
func (l *CheckLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyChecks
	}
}

// Release returns a slot taken by Acquire.
func (l *CheckLimiter) Release() {
	<-l.slots
}

// Do runs fn while holding a slot.
func (l *CheckLimiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn(ctx)
}

// Active returns the number of running checks.
func (l *CheckLimiter) Active() int {
	return len(l.slots)
}

// WaitForDrain blocks until no check is running or ctx is done.
func (l *CheckLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for l.Active() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// LimiterStatus is a snapshot for health reporting.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *CheckLimiter) Status() LimiterStatus {
	active := len(l.slots)
	return LimiterStatus{
		Active:        active,
		Available:     cap(l.slots) - active,
		MaxConcurrent: cap(l.slots),
	}
}
