// Copyright (C) 2020 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package time

import (
	"fmt"
	std_time "time"

	"github.com/hako/durafmt"
)

// DurationShort returns a human-readable form of the duration's most significant unit.
func DurationShort(d std_time.Duration) string {
	// Workaround for durafmt panic caused by lack of support for microseconds, e.g. if an error
	// causes a timed operation to exit early.
	if d < std_time.Millisecond {
		d = 0
	}
	return durafmt.ParseShort(d).String()
}

// Datetime returns the UTC date+time in format YYYYMMDD-HHMM.
func Datetime(c Clock) string {
	t := c.Now()
	return fmt.Sprintf("%d%02d%02d-%02d%02d", t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute())
}
