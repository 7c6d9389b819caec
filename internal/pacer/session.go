// Copyright (C) 2020 The pacer Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package pacer

import (
	"os"
	"sort"

	"github.com/pkg/errors"

	cage_gob "github.com/codeactual/pacer/internal/cage/encoding/gob"
)

// SaveSession writes the schedule states to the named file so a later process
// can resume fire counts. States are sorted by label for stable output.
func SaveSession(name string, states []ScheduleState) error {
	sorted := append([]ScheduleState{}, states...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ScheduleLabel < sorted[j].ScheduleLabel
	})

	s := Session{States: sorted, Version: SessionVersion}
	if err := cage_gob.EncodeToFile(name, s); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// LoadSession reads a prior session from the named file. A missing file is not
// an error and yields an empty session, so first runs need no special casing.
func LoadSession(name string) (Session, error) {
	if _, err := os.Stat(name); os.IsNotExist(err) {
		return Session{Version: SessionVersion}, nil
	}

	var s Session
	if err := cage_gob.DecodeFromFile(name, &s); err != nil {
		return Session{}, errors.WithStack(err)
	}
	return s, nil
}
