// Package debounce coalesces bursts of triggers into a single call that runs
// once the triggers have been quiet for a fixed interval.
package debounce

import (
	"sync"
	"time"
)

// DefaultInterval is the quiet period used for expression builds.
const DefaultInterval = 150 * time.Millisecond

// Timer is the part of *time.Timer the debouncer needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d. time.AfterFunc is the default.
type AfterFunc func(d time.Duration, f func()) Timer

// Debouncer owns a single timer handle. Every Trigger cancels the pending
// handle before scheduling a new one.
type Debouncer struct {
	interval  time.Duration
	afterFunc AfterFunc

	mu      sync.Mutex
	timer   Timer
	gen     uint64
	stopped bool
}

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithAfterFunc replaces the timer scheduler, typically with a manual clock in tests.
func WithAfterFunc(fn AfterFunc) Option {
	return func(d *Debouncer) {
		d.afterFunc = fn
	}
}

// New creates a debouncer. A non-positive interval falls back to DefaultInterval.
func New(interval time.Duration, opts ...Option) *Debouncer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	d := &Debouncer{
		interval: interval,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Interval returns the quiet period.
func (d *Debouncer) Interval() time.Duration {
	return d.interval
}

// Trigger (re)schedules fn. Only the fn of the latest Trigger can run; a
// timer that already fired for a superseded trigger becomes a no-op.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.afterFunc(d.interval, func() {
		d.mu.Lock()
		if d.stopped || gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Pending reports whether a call is scheduled but has not fired yet.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Cancel drops the pending call, if any. Later triggers still work.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Stop cancels the pending call and ignores all future triggers.
func (d *Debouncer) Stop() {
	d.Cancel()
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
}
