// Copyright (C) 2020 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/codeactual/pacer/internal/cage/testkit"
	"github.com/pkg/errors"
)

const (
	dirPerm  = 0700
	filePerm = 0600
)

// DynamicDataDir returns the path, relative to the test package, where tests
// may create files which are recreated by ResetTestdata on every run.
func DynamicDataDir() string {
	return filepath.Join("testdata", "dynamic")
}

// ResetTestdata removes the dynamic testdata directory and recreates it empty.
func ResetTestdata(t *testing.T) {
	name := DynamicDataDir()
	testkit.FatalErrf(t, os.RemoveAll(name), "failed to remove [%s]", name)
	testkit.FatalErrf(t, os.MkdirAll(name, dirPerm), "failed to recreate [%s]", name)
}

// CreatePath returns the relative and absolute forms of the joined path under
// the dynamic testdata directory, creating parent directories but not the
// final element.
func CreatePath(t *testing.T, parts ...string) (rel, abs string) {
	rel = filepath.Join(append([]string{DynamicDataDir()}, parts...)...)

	var err error
	abs, err = filepath.Abs(rel)
	testkit.FatalErrf(t, err, "failed to get absolute path of [%s]", rel)

	testkit.FatalErrf(t, os.MkdirAll(filepath.Dir(abs), dirPerm), "failed to create parents of [%s]", abs)

	return rel, abs
}

// CreateFile creates an empty file under the dynamic testdata directory.
func CreateFile(t *testing.T, parts ...string) (rel, abs string) {
	rel, abs = CreatePath(t, parts...)

	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE, filePerm)
	testkit.FatalErrf(t, err, "failed to create file [%s]", abs)
	testkit.FatalErrf(t, errors.WithStack(f.Close()), "failed to close file [%s]", abs)

	return rel, abs
}

// CreateDir creates a directory under the dynamic testdata directory.
func CreateDir(t *testing.T, parts ...string) (rel, abs string) {
	rel, abs = CreatePath(t, parts...)
	testkit.FatalErrf(t, os.MkdirAll(abs, dirPerm), "failed to create dir [%s]", abs)
	return rel, abs
}
