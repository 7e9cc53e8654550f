package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/radioops/transmitd/internal/logfields"
	"github.com/radioops/transmitd/internal/retry"
	"github.com/radioops/transmitd/internal/rig"
	"github.com/radioops/transmitd/internal/schedule"
)

// pttReleaseTimeout bounds the PTT release on unwind. The release uses
// a fresh context because the transmit context may already be
// cancelled.
const pttReleaseTimeout = 5 * time.Second

// ErrNoContent indicates a window whose transmission set has no audio
// files to play.
var ErrNoContent = errors.New("transmission set has no audio content")

// Player drives one transmission: it keys PTT, plays the calibration
// tone and the set's content files, and guarantees PTT release on
// every exit path.
type Player struct {
	rig        rig.Controller
	device     Device
	supervisor *retry.Supervisor
	tonePath   string
	logger     *slog.Logger
	clock      clockwork.Clock

	// durationOf is injectable for tests; defaults to FileDuration.
	durationOf func(path string) (time.Duration, error)
}

// NewPlayer constructs a Player. tonePath may be empty to skip the
// calibration tone.
func NewPlayer(ctrl rig.Controller, device Device, supervisor *retry.Supervisor, tonePath string, logger *slog.Logger, clock clockwork.Clock) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Player{
		rig:        ctrl,
		device:     device,
		supervisor: supervisor,
		tonePath:   tonePath,
		logger:     logger,
		clock:      clock,
		durationOf: FileDuration,
	}
}

// PlanDuration computes the expected play time of an occurrence: tone
// plus content files plus the inter-file pauses. Unreadable files
// contribute zero and are reported when actually played.
func (p *Player) PlanDuration(occ schedule.Occurrence) time.Duration {
	var total time.Duration
	if p.tonePath != "" {
		if d, err := p.durationOf(p.tonePath); err == nil {
			total += d
		}
	}
	for i, file := range occ.Files {
		if d, err := p.durationOf(file); err == nil {
			total += d
		}
		if i < len(occ.Files)-1 {
			total += occ.Window.Pause
		}
	}
	return total
}

// Transmit plays the occurrence's audio with PTT keyed. PTT release is
// a scoped unwind: it happens on success, on playback failure, and on
// cancellation alike. Device failures are retried through the
// supervisor until ctx (bounded by the window's end) gives up.
func (p *Player) Transmit(ctx context.Context, occ schedule.Occurrence) (err error) {
	if len(occ.Files) == 0 {
		return ErrNoContent
	}

	expected := p.PlanDuration(occ)
	p.logger.Info("starting transmission",
		logfields.Set(occ.Set),
		logfields.FrequencyHz(occ.Window.FrequencyHz),
		logfields.Mode(string(occ.Window.Mode)),
		logfields.PowerW(occ.Window.PowerW),
		logfields.DurationMS(float64(expected.Milliseconds())))

	if err := p.rig.SetPTT(ctx, true); err != nil {
		return fmt.Errorf("assert ptt: %w", err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), pttReleaseTimeout)
		defer cancel()
		if relErr := p.rig.SetPTT(releaseCtx, false); relErr != nil {
			p.logger.Error("ptt release failed; transmitter may still be keyed",
				logfields.Error(relErr))
			if err == nil {
				err = fmt.Errorf("release ptt: %w", relErr)
			}
		}
	}()

	if p.tonePath != "" {
		if err := p.play(ctx, p.tonePath); err != nil {
			return fmt.Errorf("calibration tone: %w", err)
		}
	}

	for i, file := range occ.Files {
		if err := p.play(ctx, file); err != nil {
			return fmt.Errorf("play %s: %w", file, err)
		}
		p.logger.Debug("finished content file", logfields.File(file))

		if i < len(occ.Files)-1 && occ.Window.Pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.clock.After(occ.Window.Pause):
			}
		}
	}
	return nil
}

// play runs one file through the device, retrying device failures with
// backoff until ctx expires.
func (p *Player) play(ctx context.Context, path string) error {
	return p.supervisor.Run(ctx, "audio_play", func(ctx context.Context) error {
		return p.device.Play(ctx, path)
	})
}
