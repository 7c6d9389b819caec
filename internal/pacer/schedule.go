// Copyright (C) 2020 The pacer Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package pacer

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"

	cage_time "github.com/codeactual/pacer/internal/cage/time"
)

// ErrInvalidDuration is returned when a timer is built with a negative
// duration. It indicates a programmer error, so no recovery is attempted.
var ErrInvalidDuration = errors.New("timer duration must be non-negative")

// Build constructs a timer in the unattached state from the raw policy pair.
//
//	repeats=false delays=false: callback invoked synchronously once, then the
//	  timer still fires once more after d (both calls are honored)
//	repeats=false delays=true:  fires exactly once, d after scheduling
//	repeats=true  delays=false: callback invoked synchronously once, then
//	  fires every d
//	repeats=true  delays=true:  first fire d after scheduling, then every d
//
// The named operations only ever request the last three combinations. The
// first exists solely through Build and its extra scheduled fire is kept
// intact for callers that depend on it.
//
// The synchronous invocation, when requested, happens in the caller's
// goroutine before any scheduling state is computed, and receives the live
// handle so it can stop the timer on its very first call.
func Build(clock cage_time.Clock, d time.Duration, repeats, delays bool, cb Callback) (*Timer, error) {
	if d < 0 {
		return nil, errors.Wrapf(ErrInvalidDuration, "duration [%s]", d)
	}

	t := &Timer{
		id:       ksuid.New().String(),
		interval: d,
		repeats:  repeats,
		callback: cb,
		valid:    true,
	}

	if !delays {
		cb(t)
	}

	// After the pre-call so the first scheduled fire is a full interval from
	// the immediate one.
	t.nextFire = clock.Now().Add(d)

	return t, nil
}

// DelayTimer schedules cb to fire exactly once, d after now. No synchronous
// call is made; the returned handle is already attached to the loop.
func DelayTimer(clock cage_time.Clock, loop Loop, d time.Duration, cb Callback) (*Timer, error) {
	t, err := Build(clock, d, false, true, cb)
	if err != nil {
		return nil, err
	}
	t.Start(loop)
	return t, nil
}

// Delay is DelayTimer for callbacks that do not need the handle.
func Delay(clock cage_time.Clock, loop Loop, d time.Duration, f func()) (*Timer, error) {
	return DelayTimer(clock, loop, d, func(*Timer) { f() })
}

// IntervalTimer invokes cb synchronously once before this call returns, then
// schedules it to fire every d. The observed cadence is: now, then every d.
func IntervalTimer(clock cage_time.Clock, loop Loop, d time.Duration, cb Callback) (*Timer, error) {
	t, err := Build(clock, d, true, false, cb)
	if err != nil {
		return nil, err
	}
	t.Start(loop)
	return t, nil
}

// Interval is IntervalTimer for callbacks that do not need the handle.
func Interval(clock cage_time.Clock, loop Loop, d time.Duration, f func()) (*Timer, error) {
	return IntervalTimer(clock, loop, d, func(*Timer) { f() })
}

// DelayedIntervalTimer schedules cb to first fire d after now and every d
// thereafter, with no synchronous call.
func DelayedIntervalTimer(clock cage_time.Clock, loop Loop, d time.Duration, cb Callback) (*Timer, error) {
	t, err := Build(clock, d, true, true, cb)
	if err != nil {
		return nil, err
	}
	t.Start(loop)
	return t, nil
}

// DelayedInterval is DelayedIntervalTimer for callbacks that do not need the handle.
func DelayedInterval(clock cage_time.Clock, loop Loop, d time.Duration, f func()) (*Timer, error) {
	return DelayedIntervalTimer(clock, loop, d, func(*Timer) { f() })
}
