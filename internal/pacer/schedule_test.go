// Copyright (C) 2020 The pacer Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package pacer_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/codeactual/pacer/internal/cage/testkit"
	testkit_time "github.com/codeactual/pacer/internal/cage/testkit/time"
	cage_time "github.com/codeactual/pacer/internal/cage/time"
	"github.com/codeactual/pacer/internal/pacer"
)

const (
	// WaitTimeout bounds every blocking assertion so a scheduling bug fails
	// the test instead of hanging it.
	WaitTimeout = 2 * time.Second

	// UnexpectedEventWait is how long to wait for events which should never arrive.
	UnexpectedEventWait = 50 * time.Millisecond
)

var startTime = time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

type ScheduleSuite struct {
	suite.Suite

	clock    *testkit_time.ManualClock
	loop     *pacer.RunLoop
	armedCh  chan time.Duration
	loopDone chan struct{}
}

func TestScheduleSuite(t *testing.T) {
	suite.Run(t, new(ScheduleSuite))
}

func (suite *ScheduleSuite) SetupTest() {
	suite.clock = testkit_time.NewManualClock(startTime)

	suite.armedCh = make(chan time.Duration, 100)
	suite.clock.OnTimerArmed(func(d time.Duration, _ cage_time.Timer) {
		suite.armedCh <- d
	})

	suite.loop = pacer.NewRunLoop(testkit.NewZapLogger(), suite.clock)
	suite.loopDone = make(chan struct{})
	go func() {
		suite.loop.Start()
		close(suite.loopDone)
	}()
}

func (suite *ScheduleSuite) TearDownTest() {
	suite.loop.Stop()
	select {
	case <-suite.loopDone:
	case <-time.After(WaitTimeout):
		suite.T().Fatal("loop did not stop")
	}
}

// waitArm blocks until the loop begins waiting for its next deadline.
// Advancing the clock before that point would race the arm.
func (suite *ScheduleSuite) waitArm() {
	select {
	case <-suite.armedCh:
	case <-time.After(WaitTimeout):
		suite.T().Fatal("timed out waiting for the loop to arm its deadline timer")
	}
}

func (suite *ScheduleSuite) waitFire(fires chan time.Time) time.Time {
	select {
	case at := <-fires:
		return at
	case <-time.After(WaitTimeout):
		suite.T().Fatal("timed out waiting for a fire")
		return time.Time{}
	}
}

func (suite *ScheduleSuite) requireNoFire(fires chan time.Time) {
	time.Sleep(UnexpectedEventWait)
	require.Len(suite.T(), fires, 0)
}

func (suite *ScheduleSuite) newFireRecorder() (chan time.Time, func()) {
	fires := make(chan time.Time, 100)
	return fires, func() {
		fires <- suite.clock.Now()
	}
}

func (suite *ScheduleSuite) TestDelayFiresOnceAfterDuration() {
	t := suite.T()

	fires, record := suite.newFireRecorder()
	h, err := pacer.Delay(suite.clock, suite.loop, 100*time.Millisecond, record)
	require.NoError(t, err)
	require.True(t, h.Valid())

	// no synchronous call before start returns
	require.Len(t, fires, 0)

	suite.waitArm()
	suite.clock.Add(99 * time.Millisecond)
	suite.requireNoFire(fires)

	suite.clock.Add(1 * time.Millisecond)
	require.Exactly(t, startTime.Add(100*time.Millisecond), suite.waitFire(fires))

	// still exactly once well past the deadline
	suite.clock.Add(1 * time.Second)
	suite.requireNoFire(fires)
}

func (suite *ScheduleSuite) TestIntervalFiresImmediatelyThenEveryPeriod() {
	t := suite.T()

	fires, record := suite.newFireRecorder()
	h, err := pacer.Interval(suite.clock, suite.loop, 200*time.Millisecond, record)
	require.NoError(t, err)

	// synchronous call already happened before Interval returned
	require.Exactly(t, startTime, suite.waitFire(fires))

	suite.waitArm()
	suite.clock.Add(200 * time.Millisecond)
	require.Exactly(t, startTime.Add(200*time.Millisecond), suite.waitFire(fires))

	suite.waitArm()
	suite.clock.Add(200 * time.Millisecond)
	require.Exactly(t, startTime.Add(400*time.Millisecond), suite.waitFire(fires))

	h.Stop(suite.loop)
	suite.clock.Add(1 * time.Second)
	suite.requireNoFire(fires)
	require.False(t, h.Valid())
}

func (suite *ScheduleSuite) TestDelayedIntervalWaitsFullPeriodFirst() {
	t := suite.T()

	fires, record := suite.newFireRecorder()
	h, err := pacer.DelayedInterval(suite.clock, suite.loop, 200*time.Millisecond, record)
	require.NoError(t, err)

	// never fires at t=0
	require.Len(t, fires, 0)

	suite.waitArm()
	suite.clock.Add(200 * time.Millisecond)
	require.Exactly(t, startTime.Add(200*time.Millisecond), suite.waitFire(fires))

	suite.waitArm()
	suite.clock.Add(200 * time.Millisecond)
	require.Exactly(t, startTime.Add(400*time.Millisecond), suite.waitFire(fires))

	h.Stop(suite.loop)
	suite.clock.Add(1 * time.Second)
	suite.requireNoFire(fires)
}

func (suite *ScheduleSuite) TestDischargedDelayCannotRestart() {
	t := suite.T()

	fires, record := suite.newFireRecorder()
	h, err := pacer.Delay(suite.clock, suite.loop, 100*time.Millisecond, record)
	require.NoError(t, err)

	suite.waitArm()
	suite.clock.Add(100 * time.Millisecond)
	suite.waitFire(fires)

	// the single fire permanently invalidates the handle
	require.False(t, h.Valid())

	// re-attachment stays inert despite the stale deadline
	h.Start(suite.loop)
	suite.clock.Add(1 * time.Second)
	suite.requireNoFire(fires)
}

func (suite *ScheduleSuite) TestStopIsIdempotent() {
	t := suite.T()

	fires, record := suite.newFireRecorder()
	h, err := pacer.DelayedInterval(suite.clock, suite.loop, 100*time.Millisecond, record)
	require.NoError(t, err)

	suite.waitArm()
	h.Stop(suite.loop)
	h.Stop(suite.loop)
	require.False(t, h.Valid())

	suite.clock.Add(1 * time.Second)
	suite.requireNoFire(fires)
}

func (suite *ScheduleSuite) TestSelfCancellationFromCallback() {
	t := suite.T()

	fires := make(chan time.Time, 100)
	var count int

	_, err := pacer.IntervalTimer(suite.clock, suite.loop, 100*time.Millisecond, func(timer *pacer.Timer) {
		count++
		if count == 3 {
			timer.Stop(suite.loop)
		}
		fires <- suite.clock.Now()
	})
	require.NoError(t, err)

	suite.waitFire(fires) // immediate
	suite.waitArm()
	suite.clock.Add(100 * time.Millisecond)
	suite.waitFire(fires)

	suite.waitArm()
	suite.clock.Add(100 * time.Millisecond)
	suite.waitFire(fires) // cancels itself here

	suite.clock.Add(1 * time.Second)
	suite.requireNoFire(fires)
	require.Exactly(t, 3, count)
}

func (suite *ScheduleSuite) TestCallbackReceivesOwnHandle() {
	t := suite.T()

	received := make(chan *pacer.Timer, 100)
	h, err := pacer.DelayTimer(suite.clock, suite.loop, 100*time.Millisecond, func(timer *pacer.Timer) {
		received <- timer
	})
	require.NoError(t, err)

	suite.waitArm()
	suite.clock.Add(100 * time.Millisecond)

	select {
	case timer := <-received:
		require.True(t, h == timer, "callback must receive the returned handle")
	case <-time.After(WaitTimeout):
		t.Fatal("timed out waiting for a fire")
	}
}

func (suite *ScheduleSuite) TestImmediateSelfCancellationStaysInert() {
	t := suite.T()

	fires := make(chan time.Time, 100)

	// The synchronous pre-call stops the handle before it was ever attached.
	h, err := pacer.IntervalTimer(suite.clock, suite.loop, 100*time.Millisecond, func(timer *pacer.Timer) {
		timer.Stop(suite.loop)
		fires <- suite.clock.Now()
	})
	require.NoError(t, err)
	require.False(t, h.Valid())

	suite.waitFire(fires)
	suite.clock.Add(1 * time.Second)
	suite.requireNoFire(fires)
}

func (suite *ScheduleSuite) TestBuildWithoutRepeatOrDelayDoubleFires() {
	t := suite.T()

	fires, record := suite.newFireRecorder()

	// The lower-level constructor honors both the immediate call and one
	// scheduled fire for this policy pair.
	h, err := pacer.Build(suite.clock, 100*time.Millisecond, false, false, func(*pacer.Timer) {
		record()
	})
	require.NoError(t, err)
	require.Exactly(t, startTime, suite.waitFire(fires))

	h.Start(suite.loop)
	suite.waitArm()
	suite.clock.Add(100 * time.Millisecond)
	require.Exactly(t, startTime.Add(100*time.Millisecond), suite.waitFire(fires))

	suite.clock.Add(1 * time.Second)
	suite.requireNoFire(fires)
	require.False(t, h.Valid())
}

func (suite *ScheduleSuite) TestStopBeforeStartLeavesTimerInert() {
	t := suite.T()

	fires, record := suite.newFireRecorder()
	h, err := pacer.Build(suite.clock, 100*time.Millisecond, false, true, func(*pacer.Timer) {
		record()
	})
	require.NoError(t, err)

	h.Stop(nil) // never attached, nothing to detach
	h.Start(suite.loop)

	suite.clock.Add(1 * time.Second)
	suite.requireNoFire(fires)
}

func (suite *ScheduleSuite) TestStartIsIdempotent() {
	t := suite.T()

	fires, record := suite.newFireRecorder()
	h, err := pacer.Delay(suite.clock, suite.loop, 100*time.Millisecond, record)
	require.NoError(t, err)

	h.Start(suite.loop) // second attach attempt is a no-op

	suite.waitArm()
	suite.clock.Add(100 * time.Millisecond)
	suite.waitFire(fires)

	suite.clock.Add(1 * time.Second)
	suite.requireNoFire(fires)
}

func (suite *ScheduleSuite) TestMissedPeriodsAreCoalesced() {
	t := suite.T()

	fires, record := suite.newFireRecorder()
	_, err := pacer.DelayedInterval(suite.clock, suite.loop, 100*time.Millisecond, record)
	require.NoError(t, err)

	suite.waitArm()

	// One advance crosses three periods but only one fire is delivered, and
	// pacing stays aligned to the original schedule.
	suite.clock.Add(350 * time.Millisecond)
	require.Exactly(t, startTime.Add(350*time.Millisecond), suite.waitFire(fires))
	suite.requireNoFire(fires)

	suite.waitArm()
	suite.clock.Add(50 * time.Millisecond)
	require.Exactly(t, startTime.Add(400*time.Millisecond), suite.waitFire(fires))
}

func (suite *ScheduleSuite) TestNegativeDurationFailsFast() {
	t := suite.T()

	_, err := pacer.Delay(suite.clock, suite.loop, -1*time.Second, func() {})
	require.Error(t, err)
	require.Exactly(t, pacer.ErrInvalidDuration, errors.Cause(err))

	_, err = pacer.Build(suite.clock, -1, true, false, func(*pacer.Timer) {
		t.Fatal("callback must not run for an invalid duration")
	})
	require.Error(t, err)
	require.Exactly(t, pacer.ErrInvalidDuration, errors.Cause(err))
}

func (suite *ScheduleSuite) TestZeroDurationDelay() {
	t := suite.T()

	fires, record := suite.newFireRecorder()
	_, err := pacer.Delay(suite.clock, suite.loop, 0, record)
	require.NoError(t, err)

	// due immediately, but still via the loop rather than synchronously
	require.Exactly(t, startTime, suite.waitFire(fires))
	suite.requireNoFire(fires)
}
