// Copyright (C) 2020 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package shell

import (
	shellwords "github.com/mattn/go-shellwords"
	"github.com/pkg/errors"
)

// Parse splits a command string into an argument slice, expanding environment
// variables via os.Getenv.
func Parse(s string) ([]string, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true

	args, err := parser.Parse(s)
	if err != nil {
		return []string{}, errors.Wrapf(err, "failed to parse [%s]", s)
	}
	if len(args) == 0 {
		return []string{}, errors.Errorf("command [%s] is empty after parsing", s)
	}

	return args, nil
}
