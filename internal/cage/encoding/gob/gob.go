// Copyright (C) 2020 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gob

import (
	std_gob "encoding/gob"
	"os"

	"github.com/pkg/errors"
)

const filePerm = 0600

// EncodeToFile gob-encodes the value to the named file, truncating any prior contents.
func EncodeToFile(name string, value interface{}) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return errors.Wrapf(err, "failed to open file [%s] for encoding", name)
	}

	if err = std_gob.NewEncoder(f).Encode(value); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to encode to file [%s]", name)
	}

	return errors.Wrapf(f.Close(), "failed to close file [%s] after encoding", name)
}

// DecodeFromFile gob-decodes the named file into the output value.
func DecodeFromFile(name string, out interface{}) error {
	f, err := os.Open(name)
	if err != nil {
		return errors.Wrapf(err, "failed to open file [%s] for decoding", name)
	}
	defer f.Close()

	if err = std_gob.NewDecoder(f).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode from file [%s]", name)
	}

	return nil
}
