// Copyright (C) 2020 The pacer Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package pacer contains sub-packages which provide the CLI commands, the internal API (internal/pacer)
// which supports the CLI, and the internal "standard library" (all other internal/*) of utilities
// shared by both.
package pacer

// expand godoc content for the base import path
import (
	_ "github.com/codeactual/pacer/cmd/pacer/eval"
	_ "github.com/codeactual/pacer/cmd/pacer/root"
	_ "github.com/codeactual/pacer/internal/pacer"
)
