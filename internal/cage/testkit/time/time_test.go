// Copyright (C) 2020 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package time_test

import (
	"testing"
	std_time "time"

	"github.com/stretchr/testify/require"

	cage_time "github.com/codeactual/pacer/internal/cage/time"
	testkit_time "github.com/codeactual/pacer/internal/cage/testkit/time"
)

var start = std_time.Date(2020, 1, 2, 3, 4, 5, 0, std_time.UTC)

func TestNowOnlyMovesOnAdvance(t *testing.T) {
	c := testkit_time.NewManualClock(start)
	require.Exactly(t, start, c.Now())

	c.Add(ms(90))
	require.Exactly(t, start.Add(ms(90)), c.Now())
	require.Exactly(t, ms(90), c.Since(start))
}

func TestTimerFiresAtDeadline(t *testing.T) {
	c := testkit_time.NewManualClock(start)
	timer := c.NewTimer(ms(100))

	c.Add(ms(99))
	require.Len(t, timer.C(), 0)

	c.Add(ms(1))
	require.Exactly(t, start.Add(ms(100)), <-timer.C())
}

func TestTimerStop(t *testing.T) {
	c := testkit_time.NewManualClock(start)
	timer := c.NewTimer(ms(100))

	require.True(t, timer.Stop())
	c.Add(ms(200))
	require.Len(t, timer.C(), 0)

	require.False(t, timer.Stop())
}

func TestTimerReset(t *testing.T) {
	c := testkit_time.NewManualClock(start)
	timer := c.NewTimer(ms(100))

	require.True(t, timer.Reset(ms(300)))
	c.Add(ms(100))
	require.Len(t, timer.C(), 0)

	c.Add(ms(200))
	require.Exactly(t, start.Add(ms(300)), <-timer.C())
}

func TestNonPositiveDurationFiresImmediately(t *testing.T) {
	c := testkit_time.NewManualClock(start)
	timer := c.NewTimer(0)
	require.Exactly(t, start, <-timer.C())
}

func TestOnTimerArmed(t *testing.T) {
	c := testkit_time.NewManualClock(start)

	var armed []std_time.Duration
	c.OnTimerArmed(func(d std_time.Duration, _ cage_time.Timer) {
		armed = append(armed, d)
	})

	timer := c.NewTimer(ms(100))
	timer.Reset(ms(50))
	require.Exactly(t, []std_time.Duration{ms(100), ms(50)}, armed)
}

// ms shortens millisecond duration construction in cases/assertions.
func ms(n int) std_time.Duration {
	return std_time.Duration(n) * std_time.Millisecond
}
