// Copyright (C) 2020 The pacer Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package pacer

import (
	"container/heap"
	"sync"
	"time"

	"go.uber.org/zap"

	cage_zap "github.com/codeactual/pacer/internal/cage/log/zap"
	cage_time "github.com/codeactual/pacer/internal/cage/time"
)

// loopEntry is a RunLoop's non-owning reference to an attached timer.
// Removal marks the entry and lets the pop path discard it, so RemoveTimer
// never blocks on the loop goroutine.
type loopEntry struct {
	timer   *Timer
	at      time.Time
	mode    Mode
	removed bool
}

type entryHeap []*loopEntry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(*loopEntry)) }

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// RunLoop drives attached timers from a single goroutine: Start blocks in a
// for-select that waits until the earliest deadline, fires due timers one at
// a time, and re-arms the repeating ones. Fires of a single timer are strictly
// ordered and non-overlapping because every callback runs to completion inside
// that goroutine.
//
// Timers attached under a mode other than the loop's current mode are parked
// until SetMode selects their mode.
type RunLoop struct {
	clock cage_time.Clock
	log   *zap.Logger

	mu      sync.Mutex
	mode    Mode
	pending entryHeap
	parked  []*loopEntry

	// wake interrupts the current deadline wait after attach/detach/SetMode.
	wake chan struct{}

	done     chan struct{}
	stopOnce sync.Once
}

// NewRunLoop returns a loop in DefaultMode. A nil logger disables logging and
// a nil clock selects the system clock.
func NewRunLoop(log *zap.Logger, clock cage_time.Clock) *RunLoop {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = cage_time.RealClock{}
	}
	return &RunLoop{
		clock: clock,
		log:   log,
		mode:  DefaultMode,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Clock returns the clock the loop schedules against, so callers can build
// timers measured by the same time source.
func (l *RunLoop) Clock() cage_time.Clock {
	return l.clock
}

// AddTimer implements Loop. Invalid timers are dropped instead of attached.
func (l *RunLoop) AddTimer(t *Timer, mode Mode) {
	if mode == "" {
		mode = DefaultMode
	}
	if t == nil {
		return
	}
	if !t.Valid() {
		l.log.Debug(
			"dropped invalid timer at attach",
			cage_zap.Tag("loop"),
			zap.String("timer", t.Id()),
		)
		return
	}

	e := &loopEntry{timer: t, at: t.NextFire(), mode: mode}

	l.mu.Lock()
	if mode == l.mode {
		heap.Push(&l.pending, e)
	} else {
		l.parked = append(l.parked, e)
	}
	l.mu.Unlock()

	l.log.Debug(
		"timer attached",
		cage_zap.Tag("loop"),
		zap.String("timer", t.Id()),
		zap.String("mode", string(mode)),
		zap.Time("at", e.at),
	)

	l.poke()
}

// RemoveTimer implements Loop. Unknown timers are a no-op.
func (l *RunLoop) RemoveTimer(t *Timer, mode Mode) {
	if mode == "" {
		mode = DefaultMode
	}
	if t == nil {
		return
	}

	l.mu.Lock()
	for _, e := range l.pending {
		if e.timer == t && e.mode == mode {
			e.removed = true
		}
	}
	for _, e := range l.parked {
		if e.timer == t && e.mode == mode {
			e.removed = true
		}
	}
	l.mu.Unlock()

	t.detach()
	l.poke()
}

// SetMode switches which attached timers the loop processes. Entries for
// other modes are parked, not discarded.
func (l *RunLoop) SetMode(mode Mode) {
	if mode == "" {
		mode = DefaultMode
	}

	l.mu.Lock()
	if mode == l.mode {
		l.mu.Unlock()
		return
	}
	l.mode = mode

	all := append([]*loopEntry{}, l.pending...)
	all = append(all, l.parked...)
	l.pending = l.pending[:0]
	l.parked = l.parked[:0]
	for _, e := range all {
		if e.removed {
			continue
		}
		if e.mode == mode {
			l.pending = append(l.pending, e)
		} else {
			l.parked = append(l.parked, e)
		}
	}
	heap.Init(&l.pending)
	l.mu.Unlock()

	l.poke()
}

// Start runs the loop until Stop.
//
// It should run in its own goroutine because its for-select blocks.
func (l *RunLoop) Start() {
	for {
		select {
		case <-l.done:
			return
		default:
		}

		if l.fireDue(l.clock.Now()) {
			// New deadlines may already be due, re-evaluate before waiting.
			continue
		}

		next, ok := l.nextDeadline()
		if !ok {
			select {
			case <-l.wake:
			case <-l.done:
				return
			}
			continue
		}

		wait := next.Sub(l.clock.Now())
		if wait <= 0 {
			continue
		}

		timer := l.clock.NewTimer(wait)
		select {
		case <-timer.C():
		case <-l.wake:
			timer.Stop()
		case <-l.done:
			timer.Stop()
			return
		}
	}
}

// Stop ends the Start goroutine. Attached timers are left as-is; their
// handles remain valid unless their owners stopped them.
func (l *RunLoop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}

// fireDue pops and fires every pending entry whose deadline has been reached,
// re-arming repeating timers. It reports whether any timer fired.
func (l *RunLoop) fireDue(now time.Time) (fired bool) {
	for {
		l.mu.Lock()
		l.discardLocked()
		if len(l.pending) == 0 || l.pending[0].at.After(now) {
			l.mu.Unlock()
			return fired
		}
		e := heap.Pop(&l.pending).(*loopEntry)
		l.mu.Unlock()

		fired = true

		l.log.Debug(
			"fire",
			cage_zap.Tag("loop"),
			zap.String("timer", e.timer.Id()),
			zap.Time("at", e.at),
		)

		// No loop lock is held during the callback, so it may freely call
		// Stop/RemoveTimer on the handle it receives.
		if e.timer.fire(now) {
			at := e.timer.NextFire()
			rearmed := &loopEntry{timer: e.timer, at: at, mode: e.mode}

			// The callback may have called SetMode, so re-check the current
			// mode instead of assuming the popped entry's mode still runs.
			l.mu.Lock()
			parked := e.mode != l.mode
			if parked {
				l.parked = append(l.parked, rearmed)
			} else {
				heap.Push(&l.pending, rearmed)
			}
			l.mu.Unlock()

			if !parked && !at.After(now) {
				// Zero-interval repeaters are due again already. Yield so the
				// outer loop can observe Stop between their fires.
				return true
			}
		}
	}
}

// discardLocked drops removed/stopped entries from the top of the heap so the
// earliest live deadline surfaces.
func (l *RunLoop) discardLocked() {
	for len(l.pending) > 0 {
		e := l.pending[0]
		if !e.removed && e.timer.Valid() {
			return
		}
		heap.Pop(&l.pending)
		e.timer.detach()
	}
}

// nextDeadline returns the earliest live deadline, if any.
func (l *RunLoop) nextDeadline() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.discardLocked()
	if len(l.pending) == 0 {
		return time.Time{}, false
	}
	return l.pending[0].at, true
}

func (l *RunLoop) poke() {
	select { // Only wake if no wake is already queued.
	case l.wake <- struct{}{}:
	default:
	}
}

var _ Loop = (*RunLoop)(nil)
