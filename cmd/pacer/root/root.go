// Copyright (C) 2020 The pacer Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Root command pacer schedules the configured commands and starts the status UI.
//
// Usage:
//
//	pacer --config /path/to/config
package root

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	cage_zap "github.com/codeactual/pacer/internal/cage/log/zap"
	cage_time "github.com/codeactual/pacer/internal/cage/time"
	"github.com/codeactual/pacer/internal/pacer"
)

// Handler defines the sub-command flags and logic.
type Handler struct {
	ConfigPath string

	// NoUI logs schedule statuses instead of rendering the terminal UI.
	NoUI bool

	// Verbose enables debug logging. It is most useful with NoUI since the
	// UI owns the terminal.
	Verbose bool

	// Watch reschedules whenever the config file changes.
	Watch bool
}

// BindFlags binds the flags to Handler fields.
func (h *Handler) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&h.ConfigPath, "config", "c", "", "viper-readable config file")
	fs.BoolVar(&h.NoUI, "no-ui", false, "log statuses instead of rendering the terminal UI")
	fs.BoolVarP(&h.Verbose, "verbose", "v", false, "debug logging")
	fs.BoolVarP(&h.Watch, "watch", "w", false, "reschedule when the config file changes")
}

// NewCommand returns a cobra command instance based on Handler.
func NewCommand() *cobra.Command {
	h := &Handler{}
	cmd := &cobra.Command{
		Use:   "pacer",
		Short: "Run commands on configured timer schedules",
		Example: strings.Join([]string{
			"pacer --config /path/to/config",
			"pacer --config /path/to/config --watch --no-ui",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return h.run()
		},
	}
	h.BindFlags(cmd.Flags())
	return cmd
}

func (h *Handler) run() error {
	log, err := h.newLogger()
	if err != nil {
		return errors.Wrap(err, "failed to create logger")
	}

	cfg, err := pacer.ReadConfigFile(h.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read config file [%s]: %s\n", h.ConfigPath, err)
		os.Exit(1)
	}

	clock := cage_time.RealClock{}
	loop := pacer.NewRunLoop(log, clock)
	runner := pacer.NewRunner(log, clock, loop, pacer.OsExecutor{})

	// Seed fire counts from the prior session if one was saved.
	if cfg.Data.Session.File != "" {
		session, loadErr := pacer.LoadSession(cfg.Data.Session.File)
		if loadErr != nil {
			log.Error("failed to load session", cage_zap.Tag("root"), zap.Error(loadErr))
		} else if len(session.States) > 0 {
			var labels []string
			for _, s := range session.States {
				labels = append(labels, s.ScheduleLabel)
			}
			log.Info(
				"resuming session",
				cage_zap.Tag("root"),
				zap.Int("version", session.Version),
				zap.Strings("schedules", labels),
			)
			runner.Seed(session.States)
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		loop.Start()
		return nil
	})
	g.Go(func() error {
		runner.Start()
		return nil
	})

	var watcher *pacer.ConfigWatcher
	if h.Watch {
		watcher = &pacer.ConfigWatcher{Log: log}
		err = watcher.Watch(h.ConfigPath, func(name string) {
			newCfg, readErr := pacer.ReadConfigFile(name)
			if readErr != nil { // keep the current schedules on a bad edit
				log.Error("failed to re-read config", cage_zap.Tag("root"), zap.Error(readErr))
				return
			}
			if applyErr := runner.Apply(newCfg); applyErr != nil {
				log.Error("failed to reschedule", cage_zap.Tag("root"), zap.Error(applyErr))
			}
		})
		if err != nil {
			return errors.WithStack(err)
		}
	}

	var shutdownOnce sync.Once
	shutdown := func() {
		shutdownOnce.Do(func() {
			if watcher != nil {
				if closeErr := watcher.Close(); closeErr != nil {
					log.Error("failed to close watcher", cage_zap.Tag("root"), zap.Error(closeErr))
				}
			}
			if cfg.Data.Session.File != "" {
				if saveErr := pacer.SaveSession(cfg.Data.Session.File, runner.States()); saveErr != nil {
					log.Error("failed to save session", cage_zap.Tag("root"), zap.Error(saveErr))
				} else {
					log.Info(
						"saved session",
						cage_zap.Tag("root"),
						zap.String("file", cfg.Data.Session.File),
						zap.String("at", cage_time.Datetime(clock)),
					)
				}
			}
			runner.Stop()
			loop.Stop()
		})
	}

	if err = runner.Apply(cfg); err != nil {
		shutdown()
		return errors.WithStack(err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if h.NoUI {
		s := <-sigCh
		shutdown()
		fmt.Printf("Received signal (%v).\n", s)
		return g.Wait()
	}

	ui := pacer.NewUI(log, clock, runner.StatusCh)
	ui.Init()

	go func() {
		select {
		case <-ui.ExitCh():
			shutdown()
			ui.Stop()
		case s := <-sigCh:
			shutdown()
			ui.Stop()
			fmt.Printf("Received signal (%v).\n", s) // after Stop to allow tview to clean up the term
		}
	}()

	if err = ui.Start(); err != nil { // blocks on success due to tview's internal event loop
		log.Error("failed to start UI", cage_zap.Tag("root"), zap.Error(err))
		os.Exit(1)
	}

	return g.Wait()
}

func (h *Handler) newLogger() (*zap.Logger, error) {
	if h.Verbose {
		return zap.NewDevelopment()
	}
	if h.NoUI {
		return zap.NewProduction()
	}
	return zap.NewNop(), nil // protect the UI's terminal
}
