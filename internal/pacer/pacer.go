// Copyright (C) 2020 The pacer Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package pacer provides mechanisms for timer construction and lifecycle, the run loop
// which delivers fires, schedule configuration, command execution, and UI.
package pacer

import (
	"time"
)

const (
	// SessionVersion is included in the encoded Session file to support potential compatibility work.
	SessionVersion = 1
)

// Policy names the firing behavior of a configured schedule.
type Policy string

const (
	// PolicyDelay fires the command exactly once, Every after scheduling.
	PolicyDelay Policy = "delay"

	// PolicyInterval fires the command immediately at schedule time, then every Every.
	PolicyInterval Policy = "interval"

	// PolicyDelayedInterval first fires the command Every after scheduling, then every Every.
	PolicyDelayedInterval Policy = "delayed-interval"
)

// ScheduleStatus explains why a schedule is listed in the UI.
type ScheduleStatus string

const (
	// ScheduleSet indicates the schedule's timer was built and attached to the loop.
	ScheduleSet ScheduleStatus = "scheduled"

	// ScheduleFired indicates the schedule's timer fired and its command is about to run.
	ScheduleFired ScheduleStatus = "fired"

	// SchedulePassed indicates the schedule's command exited zero.
	SchedulePassed ScheduleStatus = "passed"

	// ScheduleFailed indicates the schedule's command returned a non-zero exit code or
	// failed to start.
	ScheduleFailed ScheduleStatus = "failed"

	// ScheduleStopped indicates the schedule's timer was invalidated, e.g. at shutdown
	// or because a config reload dropped the schedule.
	ScheduleStopped ScheduleStatus = "stopped"
)

// Status describes one schedule's most recent state transition. Runner emits one
// per transition for the UI and session layers.
type Status struct {
	// Cause explains why the status was emitted.
	Cause ScheduleStatus

	// Cmd is the configured command string.
	Cmd string

	// EndTime is when Cmd finished.
	EndTime time.Time

	// Err is non-empty if Cmd failed.
	Err string

	// Every is the parsed schedule interval.
	Every time.Duration

	// FireCount is the total number of fires observed for the schedule,
	// including counts restored from a prior session.
	FireCount int

	// FireTime is when the loop delivered the fire which led to this status.
	FireTime time.Time

	// Pid is the process id of Cmd, if it started.
	Pid int

	// Policy is the schedule's firing policy.
	Policy Policy

	// RunLen is how long Cmd ran.
	RunLen time.Duration

	// ScheduleLabel is a copy of Schedule.Label.
	ScheduleLabel string

	// StartTime is when Cmd started.
	StartTime time.Time

	// Stderr is collected from Cmd execution.
	Stderr string

	// Stdout is collected from Cmd execution.
	Stdout string

	// TimerId identifies the handle driving the schedule, for log correlation.
	TimerId string
}

// ScheduleState is the durable portion of a schedule's history, keyed by label
// so it survives restarts which regenerate timer ids.
type ScheduleState struct {
	// ScheduleLabel is a copy of Schedule.Label.
	ScheduleLabel string

	// FireCount is the total number of fires observed.
	FireCount int

	// LastFire is when the schedule most recently fired.
	LastFire time.Time
}

// Session is written to file at shutdown to support resuming fire counts.
type Session struct {
	// States holds one entry per schedule which fired at least once.
	States []ScheduleState

	// Version is a copy of the SessionVersion constant when the Session value is created.
	Version int
}
