// Copyright (C) 2020 The pacer Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Sub-command eval prints the resolved schedules from the configuration without
// running anything. It provides a way to test a configuration file, e.g. to see
// which defaults and policies each schedule ends up with.
//
// Usage:
//
//	pacer eval --config /path/to/config
package eval

import (
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	cage_time "github.com/codeactual/pacer/internal/cage/time"
	"github.com/codeactual/pacer/internal/pacer"
)

// Handler defines the sub-command flags and logic.
type Handler struct {
	ConfigPath string

	// Dump prints the full parsed config value after the schedule summary.
	Dump bool
}

// BindFlags binds the flags to Handler fields.
func (h *Handler) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&h.ConfigPath, "config", "c", "", "viper-readable config file")
	fs.BoolVar(&h.Dump, "dump", false, "also dump the full parsed config")
}

// NewCommand returns a cobra command instance based on Handler.
func NewCommand() *cobra.Command {
	h := &Handler{}
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Print the resolved schedules from the configuration",
		Example: strings.Join([]string{
			"pacer eval --config /path/to/config",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return h.run()
		},
	}
	h.BindFlags(cmd.Flags())
	return cmd
}

func (h *Handler) run() error {
	cfg, err := pacer.ReadConfigFile(h.ConfigPath)
	if err != nil {
		return errors.WithStack(err)
	}

	if len(cfg.Schedule) == 0 {
		fmt.Println("No schedules found")
		return nil
	}

	for _, s := range cfg.Schedule {
		fmt.Printf(
			"[%s] policy [%s] every [%s] cmd [%s]\n",
			s.Label,
			s.GetPolicy(),
			cage_time.DurationShort(s.GetEvery()),
			s.Cmd,
		)
	}

	if h.Dump {
		fmt.Println(spew.Sdump(cfg))
	}

	return nil
}
