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
	std_viper "github.com/spf13/viper"

	cage_viper "github.com/codeactual/pacer/internal/cage/config/viper"
	cage_shell "github.com/codeactual/pacer/internal/cage/shell"
)

const (
	// DefaultEvery is the default Schedule.Every value.
	DefaultEvery = "1m"

	// DefaultCmdTimeout is the default Schedule.Timeout value.
	DefaultCmdTimeout = "15m"

	// DefaultPolicy is the default Schedule.Policy value.
	DefaultPolicy = PolicyDelayedInterval
)

// Schedule defines one command to run on a timer.
type Schedule struct {
	// Cmd holds the command to execute on each fire.
	//
	// It is a required field.
	Cmd string

	// Dir is the working directory of Cmd.
	Dir string

	// Env holds "KEY=VALUE" pairs to overwrite in the current environment.
	Env []string

	// Every is a time.Duration compatible string from the config file that defines
	// the firing interval (or the one-shot delay for the "delay" policy).
	//
	// It defaults to Global.Every.
	Every string

	// Id uniquely identifies the schedule within one process lifetime.
	//
	// It is generated at startup.
	Id string

	// Label is displayed to users in output for reference/debugging/etc. and also
	// provides documentation in the config file on the intent.
	//
	// It is a required field and must be unique in the config file.
	Label string

	// Policy selects the firing behavior: "delay", "interval", or "delayed-interval".
	//
	// It defaults to "delayed-interval".
	Policy string

	// Timeout is a time.Duration compatible string from the config file that defines
	// how long to wait before cancelling the command.
	Timeout string

	// argv is the parsed version of Cmd.
	argv []string

	// every is the parsed version of Every.
	every time.Duration

	// policy is the validated version of Policy.
	policy Policy

	// timeout is the parsed version of Timeout.
	timeout time.Duration
}

// GetArgv returns the parsed version of Cmd.
func (s Schedule) GetArgv() []string {
	argv := make([]string, len(s.argv))
	copy(argv, s.argv)
	return argv
}

// GetEvery returns the parsed version of Every.
func (s Schedule) GetEvery() time.Duration {
	return s.every
}

// GetPolicy returns the validated version of Policy.
func (s Schedule) GetPolicy() Policy {
	return s.policy
}

// GetTimeout returns the parsed version of Timeout.
func (s Schedule) GetTimeout() time.Duration {
	return s.timeout
}

// GlobalConfig defines properties which should be applied to all schedules, e.g. as default values.
type GlobalConfig struct {
	// Every is a time.Duration compatible string which selects the default interval
	// for schedules that omit their own.
	Every string

	// every is the parsed version of Every.
	every time.Duration
}

// GetEvery returns the parsed version of Every.
func (c GlobalConfig) GetEvery() time.Duration {
	return c.every
}

// SessionConfig defines how to store sessions.
//
// Its config section is Data.Session.
type SessionConfig struct {
	File string
}

// DataConfig defines how to store program state.
//
// Its config section is Data.
type DataConfig struct {
	// Session defines how to store sessions.
	Session SessionConfig
}

// Config defines the structure of a config file.
type Config struct {
	// Data defines how to store program state.
	Data DataConfig

	// Global defines properties which should be applied to all schedules, e.g. as default values.
	Global GlobalConfig

	// Schedule defines the commands to run and the timer policies that fire them.
	Schedule []Schedule
}

// ReadConfigFile converts a file to a Config value.
func ReadConfigFile(name string) (c Config, err error) {
	file := std_viper.New()
	if err = cage_viper.ReadInConfig(file, name); err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config file [%s]", name)
	}

	err = file.Unmarshal(&c)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to unmarshal config from file [%s]", name)
	}

	allSchedules := []*Schedule{}
	for k := range c.Schedule {
		allSchedules = append(allSchedules, &c.Schedule[k])
	}

	err = FinalizeConfig(allSchedules, &c)
	if err != nil {
		return Config{}, errors.WithStack(err)
	}

	return c, err
}

// FinalizeConfig validates and finalizes Config fields.
func FinalizeConfig(all []*Schedule, c *Config) error {
	uniqueLabel := map[string]bool{}

	if c.Global.Every == "" {
		c.Global.Every = DefaultEvery
	}
	var everyErr error
	c.Global.every, everyErr = time.ParseDuration(c.Global.Every)
	if everyErr != nil {
		return errors.Wrapf(everyErr, "failed to parse global Every [%s]", c.Global.Every)
	}
	if c.Global.every < 0 {
		return errors.Errorf("global Every [%s] must be non-negative", c.Global.Every)
	}

	for n := range all {
		s := all[n]

		if s.Label == "" {
			return errors.New("schedule is missing a [Label] field")
		}
		if _, dupe := uniqueLabel[s.Label]; dupe {
			return errors.Errorf("schedule label [%s] was used more than once", s.Label)
		}
		uniqueLabel[s.Label] = true

		if s.Cmd == "" {
			return errors.Errorf("schedule [%s] is missing a [Cmd] field", s.Label)
		}
		var parseErr error
		s.argv, parseErr = cage_shell.Parse(s.Cmd)
		if parseErr != nil {
			return errors.Wrapf(parseErr, "[schedule: %s]: failed to parse Cmd [%s]", s.Label, s.Cmd)
		}

		if s.Policy == "" {
			s.Policy = string(DefaultPolicy)
		}
		switch Policy(s.Policy) {
		case PolicyDelay, PolicyInterval, PolicyDelayedInterval:
			s.policy = Policy(s.Policy)
		default:
			return errors.Errorf("[schedule: %s]: unknown Policy [%s]", s.Label, s.Policy)
		}

		if s.Every == "" {
			s.Every = c.Global.Every
		}
		var dErr error
		s.every, dErr = time.ParseDuration(s.Every)
		if dErr != nil {
			return errors.Wrapf(dErr, "[schedule: %s]: failed to parse Every [%s]", s.Label, s.Every)
		}
		if s.every < 0 {
			return errors.Errorf("[schedule: %s]: Every [%s] must be non-negative", s.Label, s.Every)
		}

		if s.Timeout == "" {
			s.Timeout = DefaultCmdTimeout
		}
		var tErr error
		s.timeout, tErr = time.ParseDuration(s.Timeout)
		if tErr != nil {
			return errors.Wrapf(tErr, "[schedule: %s]: failed to parse Timeout [%s]", s.Label, s.Timeout)
		}

		if s.Id == "" {
			s.Id = ksuid.New().String()
		}
	}

	return nil
}
