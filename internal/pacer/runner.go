// Copyright (C) 2020 The pacer Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package pacer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	cage_zap "github.com/codeactual/pacer/internal/cage/log/zap"
	cage_time "github.com/codeactual/pacer/internal/cage/time"
)

// fireMsg crosses from a timer callback, which runs inside the loop goroutine,
// to the Runner goroutine. Command execution happens on the Runner side so a
// slow command never blocks the loop's fire delivery.
type fireMsg struct {
	ScheduleId string
	FireTime   time.Time
	TimerId    string
}

// Runner builds timers for configured schedules and executes their commands
// when the timers fire. It emits Status messages on StatusCh for the UI and
// session layers; sends are dropped when nothing is listening.
type Runner struct {
	// Clock measures command run lengths and fire times.
	Clock cage_time.Clock

	// Executor supports os/exec.Cmd mocking for tests.
	Executor Executor

	// Log receives debug/info-level messages.
	Log *zap.Logger

	// Loop receives the timers built from the schedules.
	Loop Loop

	// StatusCh transports schedule state transitions to the UI and session layers.
	StatusCh chan Status

	mu        sync.Mutex
	schedules map[string]Schedule       // indexed by Schedule.Id
	handles   map[string]*Timer         // indexed by Schedule.Id
	states    map[string]*ScheduleState // indexed by Schedule.Label, survives reloads

	// cancelExec cancels the in-flight command, if any.
	cancelExec context.CancelFunc

	fireCh chan fireMsg

	// done when closed ends the goroutine running Start and prevents new executions.
	done     chan struct{}
	stopOnce sync.Once
}

// NewRunner returns a Runner wired to the input collaborators. A nil logger
// disables logging and a nil clock selects the system clock.
func NewRunner(log *zap.Logger, clock cage_time.Clock, loop Loop, executor Executor) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = cage_time.RealClock{}
	}
	return &Runner{
		Clock:     clock,
		Executor:  executor,
		Log:       log,
		Loop:      loop,
		StatusCh:  make(chan Status, 64),
		schedules: make(map[string]Schedule),
		handles:   make(map[string]*Timer),
		states:    make(map[string]*ScheduleState),
		fireCh:    make(chan fireMsg, 64),
		done:      make(chan struct{}),
	}
}

// Seed restores fire counts from a prior session, e.g. before Apply.
func (r *Runner) Seed(states []ScheduleState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range states {
		copied := s
		r.states[s.ScheduleLabel] = &copied
	}
}

// States returns a snapshot of every schedule's durable history, for session saves.
func (r *Runner) States() []ScheduleState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ScheduleState, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, *s)
	}
	return out
}

// Apply stops all current timers and schedules the input config's set. It is
// used both at startup and on config hot-reload; fire counts are retained
// across calls because states are keyed by label.
func (r *Runner) Apply(cfg Config) error {
	r.mu.Lock()

	for id, h := range r.handles {
		s := r.schedules[id]
		h.Stop(r.Loop)
		delete(r.handles, id)
		delete(r.schedules, id)

		r.Log.Info(
			"schedule stopped",
			cage_zap.Tag("runner"),
			zap.String("schedule", s.Label),
			zap.String("timer", h.Id()),
		)
		r.sendStatus(Status{
			Cause:         ScheduleStopped,
			Cmd:           s.Cmd,
			Every:         s.GetEvery(),
			FireCount:     r.fireCountLocked(s.Label),
			Policy:        s.GetPolicy(),
			ScheduleLabel: s.Label,
			TimerId:       h.Id(),
		})
	}

	schedules := append([]Schedule{}, cfg.Schedule...)
	r.mu.Unlock()

	// Timers are built outside the lock: the "interval" policy invokes its
	// callback synchronously at build time and the callback's enqueue path
	// must stay lock-free either way.
	for _, s := range schedules {
		if err := r.schedule(s); err != nil {
			return err
		}
	}

	return nil
}

// schedule builds and attaches one timer per the schedule's policy.
func (r *Runner) schedule(s Schedule) error {
	sid := s.Id
	cb := func(t *Timer) {
		r.enqueue(fireMsg{
			ScheduleId: sid,
			FireTime:   r.Clock.Now(),
			TimerId:    t.Id(),
		})
	}

	r.mu.Lock()
	r.schedules[s.Id] = s
	if _, found := r.states[s.Label]; !found {
		r.states[s.Label] = &ScheduleState{ScheduleLabel: s.Label}
	}
	r.mu.Unlock()

	var t *Timer
	var err error
	switch s.GetPolicy() {
	case PolicyDelay:
		t, err = DelayTimer(r.Clock, r.Loop, s.GetEvery(), cb)
	case PolicyInterval:
		t, err = IntervalTimer(r.Clock, r.Loop, s.GetEvery(), cb)
	case PolicyDelayedInterval:
		t, err = DelayedIntervalTimer(r.Clock, r.Loop, s.GetEvery(), cb)
	default:
		return errors.Errorf("[schedule: %s]: unknown policy [%s]", s.Label, s.Policy)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.handles[s.Id] = t
	fireCount := r.fireCountLocked(s.Label)
	r.mu.Unlock()

	r.Log.Info(
		"schedule set",
		cage_zap.Tag("runner"),
		zap.String("schedule", s.Label),
		zap.String("policy", string(s.GetPolicy())),
		zap.Duration("every", s.GetEvery()),
		zap.String("timer", t.Id()),
	)
	r.sendStatus(Status{
		Cause:         ScheduleSet,
		Cmd:           s.Cmd,
		Every:         s.GetEvery(),
		FireCount:     fireCount,
		Policy:        s.GetPolicy(),
		ScheduleLabel: s.Label,
		TimerId:       t.Id(),
	})

	return nil
}

// Start executes commands for fired schedules, one at a time in fire order.
//
// It should run in its own goroutine because its for-select blocks.
func (r *Runner) Start() {
	for {
		select {
		case <-r.done:
			return
		case f := <-r.fireCh:
			r.runSchedule(f)
		}
	}
}

// Stop prevents further executions, stops all schedule timers, and cancels
// the in-flight command if present.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})

	r.mu.Lock()
	cancel := r.cancelExec
	for id, h := range r.handles {
		h.Stop(r.Loop)
		delete(r.handles, id)
	}
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// enqueue hands a fire to the Runner goroutine. It must not block because it
// runs inside the loop goroutine (or, for "interval" pre-calls, inside Apply).
func (r *Runner) enqueue(f fireMsg) {
	select {
	case r.fireCh <- f:
	default:
		r.Log.Warn(
			"dropped fire, queue full",
			cage_zap.Tag("runner"),
			zap.String("scheduleId", f.ScheduleId),
			zap.String("timer", f.TimerId),
		)
	}
}

func (r *Runner) runSchedule(f fireMsg) {
	r.mu.Lock()
	s, found := r.schedules[f.ScheduleId]
	if !found { // stopped or replaced between fire and dequeue
		r.mu.Unlock()
		return
	}
	state := r.states[s.Label]
	state.FireCount++
	state.LastFire = f.FireTime
	fireCount := state.FireCount
	r.mu.Unlock()

	logAttrs := []zapcore.Field{
		cage_zap.Tag("runner"),
		zap.String("schedule", s.Label),
		zap.String("timer", f.TimerId),
		zap.Int("fireCount", fireCount),
	}
	r.Log.Info("fire", logAttrs...)

	r.sendStatus(Status{
		Cause:         ScheduleFired,
		Cmd:           s.Cmd,
		Every:         s.GetEvery(),
		FireCount:     fireCount,
		FireTime:      f.FireTime,
		Policy:        s.GetPolicy(),
		ScheduleLabel: s.Label,
		TimerId:       f.TimerId,
	})

	ctx, cancel := context.WithTimeout(context.Background(), s.GetTimeout())
	r.mu.Lock()
	r.cancelExec = cancel
	r.mu.Unlock()
	defer func() {
		cancel()
		r.mu.Lock()
		r.cancelExec = nil
		r.mu.Unlock()
	}()

	startTime := r.Clock.Now()
	res, err := r.Executor.Run(ctx, s.Dir, s.Env, s.GetArgv()...)
	runLen := r.Clock.Since(startTime)

	status := Status{
		Cmd:           s.Cmd,
		EndTime:       r.Clock.Now(),
		Every:         s.GetEvery(),
		FireCount:     fireCount,
		FireTime:      f.FireTime,
		Pid:           res.Pid,
		Policy:        s.GetPolicy(),
		RunLen:        runLen,
		ScheduleLabel: s.Label,
		StartTime:     startTime,
		Stderr:        res.Stderr,
		Stdout:        res.Stdout,
		TimerId:       f.TimerId,
	}

	if err != nil {
		status.Cause = ScheduleFailed
		status.Err = err.Error()
		r.Log.Info("command failed", append(logAttrs, zap.Error(err), zap.Duration("runLen", runLen))...)
	} else {
		status.Cause = SchedulePassed
		r.Log.Info("command passed", append(logAttrs, zap.Duration("runLen", runLen))...)
	}

	r.sendStatus(status)
}

// sendStatus only sends if there's room, so emission never blocks scheduling.
func (r *Runner) sendStatus(s Status) {
	select {
	case r.StatusCh <- s:
	default:
	}
}

func (r *Runner) fireCountLocked(label string) int {
	if state, found := r.states[label]; found {
		return state.FireCount
	}
	return 0
}
