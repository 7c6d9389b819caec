// Copyright (C) 2020 The CodeActual Go Environment Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package viper

import (
	"github.com/pkg/errors"
	std_viper "github.com/spf13/viper"
)

// ReadInConfig loads the named file into the viper instance, letting viper
// detect the format from the file extension.
func ReadInConfig(v *std_viper.Viper, name string) error {
	v.SetConfigFile(name)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config [%s]", name)
	}
	return nil
}
