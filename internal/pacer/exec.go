// Copyright (C) 2020 The pacer Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package pacer

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

// ExecResult describes one command execution.
type ExecResult struct {
	// Pid is the process id, if the process started.
	Pid int

	// Stderr is the collected standard error.
	Stderr string

	// Stdout is the collected standard output.
	Stdout string
}

// Executor supports os/exec mocking for tests.
type Executor interface {
	// Run executes the command and blocks until it exits or the context ends.
	Run(ctx context.Context, dir string, env []string, args ...string) (ExecResult, error)
}

// OsExecutor runs commands with os/exec.
type OsExecutor struct{}

func (OsExecutor) Run(ctx context.Context, dir string, env []string, args ...string) (ExecResult, error) {
	if len(args) == 0 {
		return ExecResult{}, errors.New("cannot run an empty command")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return ExecResult{}, errors.Wrapf(err, "failed to start command [%s]", args[0])
	}

	res := ExecResult{Pid: cmd.Process.Pid}
	err := cmd.Wait()
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	if err != nil {
		return res, errors.Wrapf(err, "command [%s] failed", args[0])
	}

	return res, nil
}

var _ Executor = (*OsExecutor)(nil)
