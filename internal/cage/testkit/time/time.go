// Copyright (C) 2020 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package time

import (
	"sync"
	std_time "time"

	cage_time "github.com/codeactual/pacer/internal/cage/time"
)

// ArmedFunc receives the wait duration and the timer each time a ManualClock timer
// is armed. Tests use it to learn when a subject under test has begun waiting,
// so they can advance the clock without racing the arm.
type ArmedFunc func(std_time.Duration, cage_time.Timer)

// ManualClock implements cage/time.Clock with a time value that only moves when
// a test calls Set/Add. Timers created from it fire when an advance reaches
// their deadline, never from wall-clock time.
type ManualClock struct {
	mu      sync.Mutex
	now     std_time.Time
	waiters []*manualTimer
	armed   ArmedFunc
}

// NewManualClock returns a clock frozen at the input time.
func NewManualClock(now std_time.Time) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() std_time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Since(t std_time.Time) std_time.Duration {
	return c.Now().Sub(t)
}

func (c *ManualClock) NewTimer(d std_time.Duration) cage_time.Timer {
	t := &manualTimer{
		clock: c,
		ch:    make(chan std_time.Time, 1),
	}
	t.Reset(d)
	return t
}

// OnTimerArmed registers a callback invoked after every NewTimer/Reset arm.
func (c *ManualClock) OnTimerArmed(fn ArmedFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = fn
}

// Set moves the clock to the input time and fires every timer whose deadline
// has been reached.
func (c *ManualClock) Set(now std_time.Time) {
	c.mu.Lock()
	if now.Before(c.now) {
		c.mu.Unlock()
		panic("ManualClock cannot move backward")
	}
	c.now = now

	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.active { // stopped or re-armed to fire immediately, drop it
			continue
		}
		if w.deadline.After(now) {
			remaining = append(remaining, w)
			continue
		}
		w.active = false
		w.ch <- w.deadline
	}
	c.waiters = remaining
	c.mu.Unlock()
}

// Add advances the clock by the input duration.
func (c *ManualClock) Add(d std_time.Duration) {
	c.Set(c.Now().Add(d))
}

var _ cage_time.Clock = (*ManualClock)(nil)

type manualTimer struct {
	clock    *ManualClock
	ch       chan std_time.Time
	deadline std_time.Time
	active   bool
}

func (t *manualTimer) C() <-chan std_time.Time {
	return t.ch
}

func (t *manualTimer) Reset(d std_time.Duration) bool {
	c := t.clock

	c.mu.Lock()
	wasActive := t.active
	t.deadline = c.now.Add(d)

	if d <= 0 { // already due, fire without requiring an advance
		t.active = false
		t.ch <- t.deadline
	} else {
		t.active = true
		if !wasActive {
			c.waiters = append(c.waiters, t)
		}
	}
	armed := c.armed
	c.mu.Unlock()

	// Outside the lock so the callback may use the clock.
	if armed != nil {
		armed(d, t)
	}

	return wasActive
}

func (t *manualTimer) Stop() bool {
	c := t.clock

	c.mu.Lock()
	defer c.mu.Unlock()

	wasActive := t.active
	t.active = false

	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if w != t {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining

	return wasActive
}

var _ cage_time.Timer = (*manualTimer)(nil)
