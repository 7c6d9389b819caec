// Copyright (C) 2020 The pacer Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package pacer

import (
	"sync"
	"time"
)

// Mode selects which subset of attached timers a loop processes,
// e.g. to park timers while a loop runs a restricted mode.
type Mode string

// DefaultMode is the processing mode Timer.Start attaches under.
const DefaultMode Mode = "default"

// Loop is the single external collaborator the timer core depends on. A Loop
// holds non-owning references to attached timers: it invokes them at or after
// their next fire time but ownership of the handle stays with the caller.
type Loop interface {
	// AddTimer makes the timer eligible to fire on subsequent loop iterations
	// under the given mode.
	AddTimer(t *Timer, mode Mode)

	// RemoveTimer detaches the timer from the given mode.
	//
	// Implementations must not block, so a callback can detach the timer
	// it is firing on.
	RemoveTimer(t *Timer, mode Mode)
}

// Callback receives the live timer handle on every invocation, including the
// synchronous pre-schedule call of no-delay policies, so it can inspect or
// stop the timer from inside its own firing. Callers who do not need the
// handle use the zero-arg operation variants which wrap their function in
// a Callback that ignores it.
type Callback func(*Timer)

// Timer is a handle to one scheduled callback, created by Build or one of the
// named operations (Delay, Interval, DelayedInterval and their *Timer
// variants).
//
// All fields behind the mutex may be touched from both the owning goroutine
// (Start/Stop) and a loop goroutine (fires), so the handle serializes access
// itself rather than assuming single-goroutine affinity.
type Timer struct {
	id       string
	interval time.Duration
	repeats  bool
	callback Callback

	mu       sync.Mutex
	nextFire time.Time
	valid    bool
	attached bool
}

// Id returns the unique handle id assigned at construction.
func (t *Timer) Id() string {
	return t.id
}

// Interval returns the period between fires, or the one-shot delay.
func (t *Timer) Interval() time.Duration {
	return t.interval
}

// Repeats returns true if the timer fires at a fixed period rather than once.
func (t *Timer) Repeats() bool {
	return t.repeats
}

// Valid returns false once Stop has been called or a non-repeating timer has
// delivered its fire. The transition is one-way.
func (t *Timer) Valid() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.valid
}

// NextFire returns the absolute time of the next scheduled fire.
func (t *Timer) NextFire() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextFire
}

// Start attaches the timer to the loop under its default processing mode,
// making it eligible to fire. It is a no-op if the timer is already attached.
//
// A stopped timer may still be passed to Start but stays inert: loops drop
// invalid timers instead of firing them.
func (t *Timer) Start(loop Loop) {
	t.mu.Lock()
	if t.attached {
		t.mu.Unlock()
		return
	}
	t.attached = true
	t.mu.Unlock()

	loop.AddTimer(t, DefaultMode)
}

// Stop permanently invalidates the timer and detaches it from the loop.
// No fire is delivered after Stop returns, even if the timer is re-attached.
//
// It is safe to call from inside the timer's own callback, and calling it
// on an already-stopped timer is a no-op. A nil loop only invalidates,
// for handles that were never started.
func (t *Timer) Stop(loop Loop) {
	t.mu.Lock()
	if !t.valid {
		t.mu.Unlock()
		return
	}
	t.valid = false
	t.mu.Unlock()

	if loop != nil {
		loop.RemoveTimer(t, DefaultMode)
	}
}

// detach clears the attach flag so a later Start may re-attach.
// Loops call it when they drop a timer.
func (t *Timer) detach() {
	t.mu.Lock()
	t.attached = false
	t.mu.Unlock()
}

// fire runs the callback once and reports whether the loop should re-arm the
// timer. Repeating timers advance by whole intervals from the prior scheduled
// time (period pacing); periods missed while the loop was busy are coalesced
// rather than fired back-to-back.
func (t *Timer) fire(now time.Time) (rearm bool) {
	t.mu.Lock()
	if !t.valid {
		t.attached = false
		t.mu.Unlock()
		return false
	}
	cb := t.callback
	t.mu.Unlock()

	// The callback may call Stop on this handle, so no lock is held here.
	cb(t)

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.repeats {
		// Discharge is invalidation: a one-shot handle is permanently dead
		// after its fire, even if passed to Start again.
		t.valid = false
		t.attached = false
		return false
	}
	if !t.valid {
		t.attached = false
		return false
	}

	if t.interval > 0 {
		for !t.nextFire.After(now) {
			t.nextFire = t.nextFire.Add(t.interval)
		}
	} else {
		t.nextFire = now
	}

	return true
}
