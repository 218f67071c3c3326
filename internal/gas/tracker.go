// Package gas meters execution against a per-message limit.
package gas

import (
	"errors"
	"fmt"
	"time"
)

// Gas is an amount of execution units.
type Gas int64

// ErrOutOfGas is wrapped by every OutOfGasError.
var ErrOutOfGas = errors.New("out of gas")

// OutOfGasError reports a charge that would exceed the available gas.
type OutOfGasError struct {
	Charge    string
	Requested Gas
	Available Gas
}

func (e *OutOfGasError) Error() string {
	return fmt.Sprintf("out of gas: %s requested %d, %d available", e.Charge, e.Requested, e.Available)
}

func (e *OutOfGasError) Unwrap() error {
	return ErrOutOfGas
}

// Charge is one entry of the gas trace.
type Charge struct {
	Name    string
	Amount  Gas
	Elapsed time.Duration
}

// Tracker accumulates charges for a single message. It is not safe for
// concurrent use; a message executes on one logical thread.
type Tracker struct {
	limit  Gas
	used   Gas
	caps   []Gas
	trace  []Charge
	traced bool
}

// NewTracker creates a tracker with the given limit.
func NewTracker(limit Gas) *Tracker {
	return &Tracker{limit: limit}
}

// EnableTrace records every charge for later inspection.
func (t *Tracker) EnableTrace() { t.traced = true }

// Limit returns the message gas limit.
func (t *Tracker) Limit() Gas { return t.limit }

// Used returns the gas consumed so far.
func (t *Tracker) Used() Gas { return t.used }

// Available returns the gas that can still be charged under the innermost cap.
func (t *Tracker) Available() Gas {
	return t.ceiling() - t.used
}

func (t *Tracker) ceiling() Gas {
	ceiling := t.limit
	if n := len(t.caps); n > 0 && t.caps[n-1] < ceiling {
		ceiling = t.caps[n-1]
	}
	return ceiling
}

// Charge consumes amount. When the charge does not fit, everything under the
// current ceiling is consumed and an *OutOfGasError is returned. The returned
// timer measures the work the charge pays for; callers stop it when done.
func (t *Tracker) Charge(name string, amount Gas) (*Timer, error) {
	if amount < 0 {
		return nil, fmt.Errorf("negative gas charge %d for %s", amount, name)
	}
	available := t.Available()
	if amount > available {
		t.used = t.ceiling()
		return nil, &OutOfGasError{Charge: name, Requested: amount, Available: available}
	}
	t.used += amount

	timer := &Timer{tracker: t, index: -1, start: time.Now()}
	if t.traced {
		t.trace = append(t.trace, Charge{Name: name, Amount: amount})
		timer.index = len(t.trace) - 1
	}
	return timer, nil
}

// PushLimit caps further charges at limit more units until PopLimit.
func (t *Tracker) PushLimit(limit Gas) {
	ceiling := t.used + limit
	if current := t.ceiling(); ceiling > current {
		ceiling = current
	}
	t.caps = append(t.caps, ceiling)
}

// PopLimit removes the innermost cap.
func (t *Tracker) PopLimit() {
	if n := len(t.caps); n > 0 {
		t.caps = t.caps[:n-1]
	}
}

// Exhausted reports whether the message limit, not just a nested cap, is used up.
func (t *Tracker) Exhausted() bool { return t.used >= t.limit }

// Trace returns a copy of the recorded charges.
func (t *Tracker) Trace() []Charge {
	return append([]Charge(nil), t.trace...)
}

// Timer measures the wall time of the operation a charge paid for.
type Timer struct {
	tracker *Tracker
	index   int
	start   time.Time
	elapsed time.Duration
	stopped bool
}

// Stop records the elapsed time. It is idempotent and safe on a nil timer.
func (tm *Timer) Stop() {
	if tm == nil || tm.stopped {
		return
	}
	tm.stopped = true
	tm.elapsed = time.Since(tm.start)
	if tm.index >= 0 {
		tm.tracker.trace[tm.index].Elapsed = tm.elapsed
	}
}

// Stopped reports whether Stop has been called.
func (tm *Timer) Stopped() bool { return tm != nil && tm.stopped }

// Elapsed returns the measured time, zero until stopped.
func (tm *Timer) Elapsed() time.Duration {
	if tm == nil {
		return 0
	}
	return tm.elapsed
}
