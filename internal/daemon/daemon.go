// Package daemon runs the autonomous transmission control loop: it
// owns the rig, decides when a window is due, verifies the channel is
// clear, and drives timed audio playback with PTT bracketing.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"

	"github.com/radioops/transmitd/internal/audio"
	"github.com/radioops/transmitd/internal/config"
	"github.com/radioops/transmitd/internal/events"
	"github.com/radioops/transmitd/internal/history"
	"github.com/radioops/transmitd/internal/logfields"
	"github.com/radioops/transmitd/internal/monitor"
	"github.com/radioops/transmitd/internal/retry"
	"github.com/radioops/transmitd/internal/rig"
	"github.com/radioops/transmitd/internal/schedule"
)

// Daemon is the single owner of daemon and rig state. No other
// component mutates either; everything it coordinates is driven from
// its control loop.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	clock  clockwork.Clock

	rig         rig.Controller
	caps        rig.Capabilities
	supervisor  *retry.Supervisor
	monitor     *monitor.Monitor
	player      *audio.Player
	matcher     *schedule.Matcher
	store       *history.Store
	publisher   events.Publisher
	metrics     *Metrics
	watcher     *ScheduleWatcher
	maintenance *Maintenance
	lock        *flock.Flock

	mu        sync.RWMutex
	phase     Phase
	sched     *schedule.Schedule
	connected bool

	reloadMu      sync.Mutex
	reloadPending bool
}

// Option overrides a default dependency, mainly for tests.
type Option func(*options)

type options struct {
	clock     clockwork.Clock
	rig       rig.Controller
	device    audio.Device
	publisher events.Publisher
	store     *history.Store
}

func WithClock(c clockwork.Clock) Option        { return func(o *options) { o.clock = c } }
func WithController(ctrl rig.Controller) Option { return func(o *options) { o.rig = ctrl } }
func WithDevice(dev audio.Device) Option        { return func(o *options) { o.device = dev } }
func WithPublisher(p events.Publisher) Option   { return func(o *options) { o.publisher = p } }
func WithHistoryStore(s *history.Store) Option  { return func(o *options) { o.store = s } }

// New wires the daemon from configuration. The returned daemon is not
// running; call Run.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}

	caps, err := cfg.RigCapabilities()
	if err != nil {
		return nil, err
	}

	ctrl := o.rig
	if ctrl == nil {
		settings, err := cfg.RigSettings()
		if err != nil {
			return nil, err
		}
		ctrl, err = rig.New(settings)
		if err != nil {
			return nil, fmt.Errorf("create rig controller: %w", err)
		}
	}

	store := o.store
	if store == nil {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			return nil, err
		}
	}

	publisher := o.publisher
	if publisher == nil {
		if cfg.Events.Enabled {
			publisher, err = events.NewNATSPublisher(cfg.Events.URL, cfg.Events.Subject, logger)
			if err != nil {
				return nil, err
			}
		} else {
			publisher = events.Nop{}
		}
	}

	device := o.device
	if device == nil {
		device = audio.NewExecDevice(cfg.Audio.PlayerCommand, cfg.Audio.PlayerArgs, cfg.Audio.Device)
	}

	metrics := NewMetrics()

	policy := retry.NewPolicy(cfg.Retry.InitialDelay.Std(), cfg.Retry.MaxDelay.Std())
	supervisor := retry.NewSupervisor(policy, logger, o.clock)
	supervisor.OnAttempt(func(string) { metrics.IncRetryAttempt() })

	mon := monitor.New(ctrl, cfg.SignalPowerThreshold,
		cfg.CheckInterval.Std(), cfg.MaxWaitingTime.Std(), logger, o.clock)

	player := audio.NewPlayer(ctrl, device, supervisor, cfg.Audio.CalibrationTone, logger, o.clock)

	maintenance, err := NewMaintenance(store, cfg.History.Retention.Std(), logger)
	if err != nil {
		return nil, err
	}

	watcher, err := NewScheduleWatcher(cfg.TransmissionSetsPath, logger)
	if err != nil {
		return nil, err
	}

	return &Daemon{
		cfg:         cfg,
		logger:      logger,
		clock:       o.clock,
		rig:         ctrl,
		caps:        caps,
		supervisor:  supervisor,
		monitor:     mon,
		player:      player,
		matcher:     schedule.NewMatcher(),
		store:       store,
		publisher:   publisher,
		metrics:     metrics,
		watcher:     watcher,
		maintenance: maintenance,
		lock:        flock.New(cfg.LockFile),
		phase:       PhaseIdle,
	}, nil
}

// Phase returns the loop's current phase.
func (d *Daemon) Phase() Phase {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.phase
}

// Metrics exposes the daemon's metric set for the CLI to serve.
func (d *Daemon) Metrics() *Metrics { return d.metrics }

// Run executes the control loop until ctx is cancelled, then unwinds:
// PTT is released by the player on every exit path, and the rig
// connection, history store, publisher and instance lock are torn down
// here.
func (d *Daemon) Run(ctx context.Context) error {
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("instance lock %s: %w", d.cfg.LockFile, err)
	}
	if !locked {
		return fmt.Errorf("another instance holds %s", d.cfg.LockFile)
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("releasing instance lock", logfields.Error(err))
		}
	}()

	if err := d.watcher.Start(ctx); err != nil {
		return err
	}
	defer d.watcher.Stop()

	if err := d.maintenance.Start(); err != nil {
		return err
	}
	defer func() {
		if err := d.maintenance.Stop(); err != nil {
			d.logger.Warn("stopping maintenance scheduler", logfields.Error(err))
		}
	}()

	if d.cfg.Metrics.Enabled {
		go func() {
			if err := d.metrics.Serve(ctx, d.cfg.Metrics.Listen, d.logger); err != nil {
				d.logger.Error("metrics listener failed", logfields.Error(err))
			}
		}()
	}

	defer func() {
		if d.isConnected() {
			if err := d.rig.Close(); err != nil {
				d.logger.Warn("closing rig connection", logfields.Error(err))
			}
		}
		if err := d.publisher.Close(); err != nil {
			d.logger.Warn("closing event publisher", logfields.Error(err))
		}
		if err := d.store.Close(); err != nil {
			d.logger.Warn("closing history store", logfields.Error(err))
		}
		d.transition(PhaseStopped, nil, "")
	}()

	d.metrics.SetPhase(PhaseIdle)
	d.logger.Info("daemon started",
		logfields.Path(d.cfg.TransmissionSetsPath),
		slog.String("rig", d.cfg.Rig.Type))

	return d.loop(ctx)
}

func (d *Daemon) isConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

func (d *Daemon) setConnected(v bool) {
	d.mu.Lock()
	d.connected = v
	d.mu.Unlock()
}

// transition moves the loop to a new phase, updating metrics and
// notifying external observers.
func (d *Daemon) transition(to Phase, occ *schedule.Occurrence, detail string) {
	d.mu.Lock()
	from := d.phase
	d.phase = to
	d.mu.Unlock()

	if from == to {
		return
	}

	d.metrics.SetPhase(to)

	attrs := []any{logfields.FromPhase(string(from)), logfields.Phase(string(to))}
	tr := events.Transition{From: string(from), To: string(to), Detail: detail}
	if occ != nil {
		tr.Set = occ.Set
		tr.Window = occ.Key()
		attrs = append(attrs, logfields.Set(occ.Set), logfields.Window(occ.Key()))
	}
	if detail != "" {
		attrs = append(attrs, slog.String("detail", detail))
	}

	d.logger.Info("phase transition", attrs...)
	d.publisher.PublishTransition(tr)
}

func (d *Daemon) schedule() *schedule.Schedule {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sched
}

func (d *Daemon) setSchedule(s *schedule.Schedule) {
	d.mu.Lock()
	d.sched = s
	d.mu.Unlock()
}

func (d *Daemon) setReloadPending() {
	d.reloadMu.Lock()
	d.reloadPending = true
	d.reloadMu.Unlock()
}

func (d *Daemon) takeReloadPending() bool {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()
	p := d.reloadPending
	d.reloadPending = false
	return p
}

// reload loads the schedule from disk. A load failure keeps the
// previous schedule; malformed rows and skipped sets are logged but do
// not fail the reload.
func (d *Daemon) reload() error {
	sched, result, err := schedule.Load(d.cfg.TransmissionSetsPath, d.caps)
	if err != nil {
		return err
	}

	for _, rowErr := range result.RowErrors {
		d.logger.Warn("schedule row rejected",
			slog.Int("line", rowErr.Line), logfields.Error(rowErr.Err))
	}
	for _, skipped := range result.SkippedSets {
		d.logger.Warn("transmission set skipped",
			logfields.Set(skipped.Set), logfields.Error(skipped.Err))
	}

	d.setSchedule(sched)
	d.metrics.IncScheduleReload()
	d.logger.Info("schedule loaded",
		slog.Int("sets", len(sched.Sets)),
		slog.Int("windows", sched.WindowCount()))
	return nil
}

// recordOutcome appends one history record for a finished or skipped
// window. History failures are logged, never propagated: bookkeeping
// must not take down the loop.
func (d *Daemon) recordOutcome(ctx context.Context, cycleID string, occ schedule.Occurrence, startedAt time.Time, outcome history.Outcome, detail string) {
	rec := history.Record{
		ID:          cycleID,
		Set:         occ.Set,
		WindowKey:   occ.Key(),
		FrequencyHz: occ.Window.FrequencyHz,
		Mode:        string(occ.Window.Mode),
		PowerW:      occ.Window.PowerW,
		StartedAt:   startedAt,
		EndedAt:     d.clock.Now(),
		Outcome:     outcome,
		Detail:      detail,
	}
	if err := d.store.Append(ctx, rec); err != nil {
		d.logger.Error("recording transmission outcome",
			logfields.CycleID(cycleID), logfields.Error(err))
	}
}
