// Copyright (C) 2020 The pacer Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package pacer

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	cage_zap "github.com/codeactual/pacer/internal/cage/log/zap"
	cage_time "github.com/codeactual/pacer/internal/cage/time"
)

// DefaultWatchDebounce is how long ConfigWatcher waits for write activity to
// settle before announcing a change, e.g. to collapse editor save bursts.
const DefaultWatchDebounce = 500 * time.Millisecond

// ConfigWatcher announces changes to a single config file so the CLI can
// reschedule on edits. The parent directory is watched, not the file itself,
// because editors often replace files via rename and drop per-file watches.
type ConfigWatcher struct {
	// Clock supports timer mocking for debounce-sensitive tests.
	Clock cage_time.Clock

	// Debounce is how long to wait for file activity to stop before announcing.
	Debounce time.Duration

	// Log receives debug/info-level messages.
	Log *zap.Logger

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// Watch begins monitoring in a new goroutine and invokes onChange with the
// watched path after each settled burst of activity.
func (w *ConfigWatcher) Watch(name string, onChange func(string)) (err error) {
	if w.Clock == nil {
		w.Clock = cage_time.RealClock{}
	}
	if w.Debounce == 0 {
		w.Debounce = DefaultWatchDebounce
	}
	if w.Log == nil {
		w.Log = zap.NewNop()
	}

	name, err = filepath.Abs(name)
	if err != nil {
		return errors.Wrapf(err, "failed to get absolute path of [%s]", name)
	}

	w.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create new watcher")
	}

	if err = w.watcher.Add(filepath.Dir(name)); err != nil {
		return errors.Wrapf(err, "failed to watch parent of [%s]", name)
	}

	w.done = make(chan struct{})
	go w.monitor(name, onChange)

	return nil
}

// Close ends the monitoring goroutine.
func (w *ConfigWatcher) Close() (err error) {
	w.closeOnce.Do(func() {
		close(w.done)
		err = errors.Wrap(w.watcher.Close(), "failed to close fsnotify watcher")
	})
	return err
}

// monitor defines the goroutine that debounces and announces file activity.
func (w *ConfigWatcher) monitor(name string, onChange func(string)) {
	settle := w.Clock.NewTimer(w.Debounce)
	settle.Stop() // leave it disarmed until the first matching event

	var pending bool

	for {
		select {
		case <-w.done:
			settle.Stop()
			return

		case event := <-w.watcher.Events:
			if event.Name == "" { // spammed after Close in some fsnotify versions
				continue
			}
			if event.Name != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.Log.Debug(
				"config activity",
				cage_zap.Tag("watch"),
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()),
			)

			pending = true
			settle.Reset(w.Debounce)

		case err := <-w.watcher.Errors:
			if err == nil { // spammed after Close in some fsnotify versions
				continue
			}
			w.Log.Error("watcher error", cage_zap.Tag("watch"), zap.Error(err))

		case <-settle.C():
			if pending {
				pending = false
				w.Log.Info("config changed", cage_zap.Tag("watch"), zap.String("path", name))
				onChange(name)
			}
		}
	}
}
