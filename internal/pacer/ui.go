// Copyright (C) 2020 The pacer Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package pacer

import (
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell"
	"github.com/pkg/errors"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	cage_zap "github.com/codeactual/pacer/internal/cage/log/zap"
	cage_time "github.com/codeactual/pacer/internal/cage/time"
)

// uiRefresh is how often relative times in the table are re-rendered.
const uiRefresh = time.Second

// UI displays one row per configured schedule with its policy, interval, fire
// count, and latest command result. It maintains the row data based on Status
// channel messages from Runner and responds to keyboard events to exit.
type UI struct {
	// log receives debug/info-level messages.
	log *zap.Logger

	// clock supports display of relative times.
	clock cage_time.Clock

	// app is the top-level node which contains all widgets displayed in the UI.
	app *tview.Application

	// table renders one header row plus one row per schedule.
	table *tview.Table

	// statusCh receives schedule state transitions from Runner.
	statusCh <-chan Status

	// exitCh lets UI communicate if Ctrl-C/q was captured.
	exitCh chan struct{}

	mu sync.Mutex

	// rows holds the latest Status per schedule label, in first-seen order.
	rows []Status

	// done when closed ends the maintain/refresh goroutines.
	done chan struct{}
}

// NewUI returns a UI instance configured to listen for status updates from the input channel.
func NewUI(log *zap.Logger, clock cage_time.Clock, statusCh <-chan Status) *UI {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = cage_time.RealClock{}
	}
	return &UI{
		log:      log,
		clock:    clock,
		statusCh: statusCh,
		exitCh:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// ExitCh provides external listeners to know when the UI is shutting down based on a keyboard event.
func (u *UI) ExitCh() <-chan struct{} {
	return u.exitCh
}

// Init creates all the UI widgets and displays the empty table.
func (u *UI) Init() {
	u.table = tview.NewTable()
	u.table.SetBorders(false)
	u.table.SetFixed(1, 0)

	u.app = tview.NewApplication().SetInputCapture(u.InputCapture)
	u.app.SetRoot(u.table, true)
}

// Start begins the goroutines which update the table based on new Runner data and
// periodically refresh the displayed relative times.
//
// It blocks until the UI is exited via keyboard shortcut or Stop.
func (u *UI) Start() error {
	go u.maintainRows()

	defer u.app.Stop() // ensure the terminal is cleaned up during panics (otherwise `reset` is needed)

	// support display of relative times
	go func() {
		ticker := time.NewTicker(uiRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-u.done:
				return
			case <-ticker.C:
				u.render()
			}
		}
	}()

	if err := u.app.Run(); err != nil { // blocks on success due to tview's internal event loop
		return errors.Wrapf(err, "failed to init UI")
	}

	return nil
}

// Stop ends UI rendering and keyboard event capturing.
//
// It unblocks the goroutine which executes Start.
func (u *UI) Stop() {
	select {
	case <-u.done:
	default:
		close(u.done)
	}
	u.app.Stop()
}

// InputCapture allows exit from anywhere via Ctrl-C or q.
func (u *UI) InputCapture(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyCtrlC || event.Rune() == 'q' {
		select { // Only send if there's a receiver.
		case u.exitCh <- struct{}{}:
		default:
		}
		return &tcell.EventKey{} // prevent tview from internally calling Stop on the app
	}
	return event
}

// maintainRows upserts table row data from Status messages.
//
// It should run in its own goroutine because its for-select blocks.
func (u *UI) maintainRows() {
	for {
		select {
		case <-u.done:
			return
		case status := <-u.statusCh:
			u.mu.Lock()
			pos := -1
			for n, row := range u.rows {
				if row.ScheduleLabel == status.ScheduleLabel {
					pos = n
					break
				}
			}

			if pos == -1 {
				u.rows = append(u.rows, status)
				u.log.Debug(
					"add schedule row",
					cage_zap.Tag("ui"),
					zap.String("schedule", status.ScheduleLabel),
					zap.String("cause", string(status.Cause)),
				)
			} else {
				u.rows[pos] = status
			}
			u.mu.Unlock()

			u.render()
		}
	}
}

// render complements maintainRows by drawing a snapshot of the current row data.
func (u *UI) render() {
	u.mu.Lock()
	rows := append([]Status{}, u.rows...)
	u.mu.Unlock()

	u.app.QueueUpdateDraw(func() {
		header := []string{"SCHEDULE", "POLICY", "EVERY", "FIRES", "LAST FIRE", "STATUS", "DETAIL"}
		for col, title := range header {
			u.table.SetCell(0, col, tview.NewTableCell(title).
				SetTextColor(tcell.ColorYellow).
				SetSelectable(false))
		}

		for n, row := range rows {
			lastFire := "never"
			if !row.FireTime.IsZero() {
				lastFire = cage_time.DurationShort(u.clock.Since(row.FireTime)) + " ago"
			}

			detail := row.Err
			if detail == "" && row.Cause == SchedulePassed {
				detail = "ran for " + cage_time.DurationShort(row.RunLen)
			}

			cells := []string{
				row.ScheduleLabel,
				string(row.Policy),
				cage_time.DurationShort(row.Every),
				fmt.Sprintf("%d", row.FireCount),
				lastFire,
				string(row.Cause),
				detail,
			}
			for col, text := range cells {
				u.table.SetCell(n+1, col, tview.NewTableCell(text))
			}
		}
	})
}
