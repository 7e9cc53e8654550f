package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/radioops/transmitd/internal/history"
	"github.com/radioops/transmitd/internal/logfields"
	"github.com/radioops/transmitd/internal/monitor"
	"github.com/radioops/transmitd/internal/schedule"
)

// errWindowAbandoned marks a window given up for a schedule reload
// rather than a hardware fault.
var errWindowAbandoned = errors.New("window abandoned for schedule reload")

// loop is the daemon state machine. It is the only goroutine that
// mutates daemon phase and rig state.
func (d *Daemon) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		if d.schedule() == nil || d.takeReloadPending() || d.drainReloadSignal() {
			if err := d.reload(); err != nil {
				d.transition(PhaseError, nil, err.Error())
				d.logger.Error("schedule load failed", logfields.Error(err))
				if !d.sleep(ctx, d.cfg.CheckInterval.Std()) {
					return nil
				}
				continue
			}
		}

		d.transition(PhaseWaitingForWindow, nil, "")

		occ, ok := d.waitForWindow(ctx)
		if !ok {
			// Cancelled, or a reload arrived while waiting; the loop
			// top handles both.
			continue
		}

		d.runWindow(ctx, occ)
	}
}

// drainReloadSignal consumes a queued reload signal without blocking.
func (d *Daemon) drainReloadSignal() bool {
	select {
	case <-d.watcher.Reloads():
		return true
	default:
		return false
	}
}

// sleep waits for the duration or cancellation; false means cancelled.
func (d *Daemon) sleep(ctx context.Context, dur time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-d.clock.After(dur):
		return true
	}
}

// waitForWindow polls the matcher at the configured interval until a
// window is due. It returns false on cancellation or when a reload
// signal arrives, in which case the loop restarts from its safe point.
func (d *Daemon) waitForWindow(ctx context.Context) (schedule.Occurrence, bool) {
	for {
		now := d.clock.Now()
		occ, conflicts, ok := d.matcher.Active(d.schedule(), now)
		if ok {
			for _, c := range conflicts {
				d.logger.Warn("overlapping window skipped",
					logfields.Set(c.Set), logfields.Window(c.Key()),
					slog.String("winner", occ.Set))
				d.metrics.IncWindowSkipped("overlap")
				d.recordOutcome(ctx, uuid.NewString(), c, now, history.OutcomeSkippedOverlap,
					fmt.Sprintf("lost overlap to %s", occ.Key()))
			}
			return occ, true
		}

		if next, ok := d.matcher.Next(d.schedule(), now); ok {
			d.logger.Debug("no window due", logfields.Start(next))
		}

		select {
		case <-ctx.Done():
			return schedule.Occurrence{}, false
		case <-d.watcher.Reloads():
			d.setReloadPending()
			return schedule.Occurrence{}, false
		case <-d.clock.After(d.cfg.CheckInterval.Std()):
		}
	}
}

// runWindow executes one transmission cycle: acquire the rig, wait for
// a clear channel, transmit, pause. Every exit path leaves PTT off.
func (d *Daemon) runWindow(ctx context.Context, occ schedule.Occurrence) {
	cycleID := uuid.NewString()
	startedAt := d.clock.Now()

	d.logger.Info("window due",
		logfields.CycleID(cycleID),
		logfields.Set(occ.Set),
		logfields.Window(occ.Key()),
		logfields.FrequencyHz(occ.Window.FrequencyHz),
		logfields.Mode(string(occ.Window.Mode)),
		logfields.PowerW(occ.Window.PowerW))

	// All pre-transmission work is bounded by the window's end: a
	// window whose time has fully elapsed is skipped, never queued.
	windowCtx, cancel := context.WithDeadline(ctx, occ.End)
	defer cancel()

	// A reload arriving before transmission abandons the window; a
	// reload arriving during transmission stays queued until the cycle
	// completes.
	watchStop := make(chan struct{})
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case <-d.watcher.Reloads():
			d.setReloadPending()
			cancel()
		case <-watchStop:
		case <-windowCtx.Done():
		}
	}()
	stopReloadWatch := func() {
		close(watchStop)
		<-watchDone
	}

	d.transition(PhaseAcquiringRig, &occ, "")
	if err := d.acquireRig(windowCtx, occ); err != nil {
		stopReloadWatch()
		d.skipWindow(ctx, cycleID, occ, startedAt, err)
		return
	}

	d.transition(PhaseCheckingChannel, &occ, "")
	if err := d.monitor.WaitForClear(windowCtx); err != nil {
		stopReloadWatch()
		d.skipWindow(ctx, cycleID, occ, startedAt, err)
		return
	}

	// From here the reload watch must not cancel: an active
	// transmission is never interrupted by a schedule edit.
	stopReloadWatch()
	if d.reloadAbandoned(windowCtx) {
		d.skipWindow(ctx, cycleID, occ, startedAt, errWindowAbandoned)
		return
	}

	d.transition(PhaseTransmitting, &occ, "")
	txStart := d.clock.Now()
	txErr := d.player.Transmit(windowCtx, occ)

	// PTT is off here unconditionally; the player releases it on every
	// exit path.
	if txErr != nil {
		d.logger.Error("transmission failed",
			logfields.CycleID(cycleID), logfields.Set(occ.Set), logfields.Error(txErr))
		d.metrics.IncTransmission("failed")
		d.recordOutcome(ctx, cycleID, occ, startedAt, history.OutcomeFailed, txErr.Error())
	} else {
		elapsed := d.clock.Now().Sub(txStart)
		d.logger.Info("transmission complete",
			logfields.CycleID(cycleID), logfields.Set(occ.Set),
			logfields.DurationMS(float64(elapsed.Milliseconds())))
		d.metrics.IncTransmission("completed")
		d.metrics.ObserveTransmission(elapsed)
		d.recordOutcome(ctx, cycleID, occ, startedAt, history.OutcomeCompleted, "")
	}

	d.transition(PhasePostTxPause, &occ, "")
	if occ.Window.Pause > 0 {
		d.sleep(ctx, occ.Window.Pause)
	}
	// A reload deferred during the transmission applies now, at the
	// loop's safe point.
}

// reloadAbandoned reports whether the window context died to a reload
// cancellation rather than the window deadline.
func (d *Daemon) reloadAbandoned(windowCtx context.Context) bool {
	if windowCtx.Err() == nil {
		return false
	}
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()
	return d.reloadPending
}

// acquireRig connects and tunes the rig for the window. Hardware
// faults are retried in place with backoff; only the window deadline
// or a cancellation ends the attempt.
func (d *Daemon) acquireRig(ctx context.Context, occ schedule.Occurrence) error {
	return d.supervisor.Run(ctx, "rig_acquire", func(ctx context.Context) error {
		if !d.isConnected() {
			if err := d.rig.Connect(ctx); err != nil {
				return err
			}
			d.setConnected(true)
		}
		if err := d.rig.SetFrequency(ctx, occ.Window.FrequencyHz); err != nil {
			return err
		}
		if err := d.rig.SetMode(ctx, occ.Window.Mode); err != nil {
			return err
		}
		return d.rig.SetPower(ctx, occ.Window.PowerW)
	})
}

// skipWindow classifies a pre-transmission failure, records it, and
// returns the loop to WaitingForWindow without a post-transmission
// pause.
func (d *Daemon) skipWindow(ctx context.Context, cycleID string, occ schedule.Occurrence, startedAt time.Time, cause error) {
	if ctx.Err() != nil && !errors.Is(cause, monitor.ErrBusyTimeout) {
		// Shutting down; the unwind in Run handles the rest.
		return
	}

	var (
		outcome history.Outcome
		reason  string
	)
	switch {
	case errors.Is(cause, monitor.ErrBusyTimeout):
		outcome, reason = history.OutcomeSkippedBusy, "busy"
	case errors.Is(cause, errWindowAbandoned):
		outcome, reason = history.OutcomeSkippedMissed, "reload"
	case errors.Is(cause, context.DeadlineExceeded):
		outcome, reason = history.OutcomeSkippedMissed, "window_elapsed"
	case errors.Is(cause, context.Canceled) && d.reloadAbandonedPending():
		outcome, reason = history.OutcomeSkippedMissed, "reload"
	default:
		d.transition(PhaseError, &occ, cause.Error())
		outcome, reason = history.OutcomeFailed, "error"
	}

	d.logger.Warn("window skipped",
		logfields.CycleID(cycleID),
		logfields.Set(occ.Set),
		logfields.Window(occ.Key()),
		logfields.Operation(reason),
		logfields.Error(cause))
	d.metrics.IncWindowSkipped(reason)
	d.recordOutcome(ctx, cycleID, occ, startedAt, outcome, cause.Error())
}

// reloadAbandonedPending checks the pending flag without consuming it.
func (d *Daemon) reloadAbandonedPending() bool {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()
	return d.reloadPending
}
