package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radioops/transmitd/internal/audio"
	"github.com/radioops/transmitd/internal/config"
	"github.com/radioops/transmitd/internal/events"
	"github.com/radioops/transmitd/internal/history"
	"github.com/radioops/transmitd/internal/rig"
)

// fakeDevice records played paths; Play can be gated for tests that
// need to hold the daemon in the transmitting phase.
type fakeDevice struct {
	mu     sync.Mutex
	played []string
	gate   chan struct{}
}

func (d *fakeDevice) Play(ctx context.Context, path string) error {
	if d.gate != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.gate:
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.played = append(d.played, path)
	return nil
}

func (d *fakeDevice) playedFiles() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.played))
	copy(out, d.played)
	return out
}

func testConfig(t *testing.T, setsDir string) *config.Config {
	t.Helper()
	return &config.Config{
		Rig: config.RigConfig{
			Type:           "simulated",
			MaxPowerW:      100,
			MinFrequencyHz: 1_000_000,
			MaxFrequencyHz: 450_000_000,
			Modes:          []string{"usb", "lsb", "fm"},
		},
		Audio: config.AudioConfig{
			Device:        "default",
			PlayerCommand: "aplay",
		},
		TransmissionSetsPath: setsDir,
		CheckInterval:        config.Duration(5 * time.Millisecond),
		SignalPowerThreshold: -80,
		MaxWaitingTime:       config.Duration(40 * time.Millisecond),
		Retry: config.RetryConfig{
			InitialDelay: config.Duration(time.Millisecond),
			MaxDelay:     config.Duration(5 * time.Millisecond),
		},
		History:  config.HistoryConfig{Retention: config.Duration(24 * time.Hour)},
		LockFile: filepath.Join(t.TempDir(), "transmitd.lock"),
	}
}

// writeSet lays out one transmission set with an all-day window so the
// matcher always finds it due.
func writeSet(t *testing.T, setsDir, name string, pauseSec int, extraRows ...string) {
	t.Helper()
	dir := filepath.Join(setsDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	today := time.Now().Format("02.01.2006")
	tomorrow := time.Now().AddDate(0, 0, 1).Format("02.01.2006")
	csv := "Start Date,End Date,Start Time,Duration (minutes),Frequency (MHz),Mode,Power (W),Pause (sec)\n"
	csv += fmt.Sprintf("%s,%s,00:00,1440,14.23,USB,50,%d\n", today, tomorrow, pauseSec)
	for _, row := range extraRows {
		csv += row + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schedule.csv"), []byte(csv), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "message.wav"), []byte("RIFF"), 0o644))
}

func newTestDaemon(t *testing.T, cfg *config.Config, sim *rig.Simulated, dev audio.Device) (*Daemon, *history.Store) {
	t.Helper()
	store, err := history.Open(":memory:")
	require.NoError(t, err)

	d, err := New(cfg, testLogger(t),
		WithController(sim),
		WithDevice(dev),
		WithPublisher(events.Nop{}),
		WithHistoryStore(store),
	)
	require.NoError(t, err)
	d.watcher.debounceTime = 10 * time.Millisecond
	return d, store
}

func runDaemon(t *testing.T, d *Daemon) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			stop()
			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("daemon did not stop")
			}
		})
	}
	t.Cleanup(cancel)
	return cancel
}

func outcomes(t *testing.T, store *history.Store) []history.Record {
	t.Helper()
	records, err := store.ListRecent(context.Background(), 50)
	require.NoError(t, err)
	return records
}

func TestDaemonTransmitsDueWindow(t *testing.T) {
	setsDir := t.TempDir()
	writeSet(t, setsDir, "beacon", 1)

	sim := rig.NewSimulated() // clear channel by default
	dev := &fakeDevice{}
	d, store := newTestDaemon(t, testConfig(t, setsDir), sim, dev)
	cancel := runDaemon(t, d)

	require.Eventually(t, func() bool {
		for _, rec := range outcomes(t, store) {
			if rec.Outcome == history.OutcomeCompleted {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	records := outcomes(t, store)
	require.NotEmpty(t, records)
	completed := records[len(records)-1]
	require.Equal(t, "beacon", completed.Set)
	require.EqualValues(t, 14_230_000, completed.FrequencyHz)
	require.Equal(t, "USB", completed.Mode)
	require.Equal(t, 50, completed.PowerW)

	require.Contains(t, dev.playedFiles(), filepath.Join(setsDir, "beacon", "message.wav"))

	ptt := sim.PTTHistory()
	require.NotEmpty(t, ptt)
	require.True(t, ptt[0], "transmission must key PTT")
	require.False(t, ptt[len(ptt)-1], "PTT must be released by shutdown")

	require.Contains(t, sim.Ops(), "set_frequency")
	require.Contains(t, sim.Ops(), "set_mode")
	require.Contains(t, sim.Ops(), "set_power")
}

func TestDaemonSkipsBusyWindow(t *testing.T) {
	setsDir := t.TempDir()
	writeSet(t, setsDir, "beacon", 1)

	sim := rig.NewSimulated()
	sim.SetSignalLevel(func() float64 { return -50 }) // above -80 dBm threshold
	dev := &fakeDevice{}
	d, store := newTestDaemon(t, testConfig(t, setsDir), sim, dev)
	cancel := runDaemon(t, d)

	require.Eventually(t, func() bool {
		for _, rec := range outcomes(t, store) {
			if rec.Outcome == history.OutcomeSkippedBusy {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	require.Empty(t, dev.playedFiles(), "busy channel must not be transmitted on")
	require.Empty(t, sim.PTTHistory(), "busy channel must never key PTT")
}

func TestDaemonDefersReloadDuringTransmission(t *testing.T) {
	setsDir := t.TempDir()
	writeSet(t, setsDir, "beacon", 1)

	sim := rig.NewSimulated()
	gate := make(chan struct{})
	dev := &fakeDevice{gate: gate}
	d, store := newTestDaemon(t, testConfig(t, setsDir), sim, dev)
	runDaemon(t, d)

	// Wait until the loop is held inside the transmission.
	require.Eventually(t, func() bool {
		return d.Phase() == PhaseTransmitting
	}, 5*time.Second, 5*time.Millisecond)

	before := d.schedule().LoadedAt

	// Edit the schedule mid-transmission: adds a second window.
	today := time.Now().Format("02.01.2006")
	writeSet(t, setsDir, "beacon", 1,
		fmt.Sprintf("%s,%s,00:00,1440,7.1,LSB,25,1", today, today))

	// The reload signal must queue, not apply, while transmitting.
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, PhaseTransmitting, d.Phase())
	require.True(t, d.schedule().LoadedAt.Equal(before), "reload applied mid-transmission")

	// Let the transmission finish; the queued reload applies at the
	// next safe point.
	close(gate)
	require.Eventually(t, func() bool {
		s := d.schedule()
		return s.LoadedAt.After(before) && s.WindowCount() == 2
	}, 10*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		for _, rec := range outcomes(t, store) {
			if rec.Outcome == history.OutcomeCompleted {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	setsDir := t.TempDir()
	writeSet(t, setsDir, "beacon", 1)
	cfg := testConfig(t, setsDir)
	// Channel busy keeps the first daemon idle but running.
	sim := rig.NewSimulated()
	sim.SetSignalLevel(func() float64 { return -50 })

	d1, _ := newTestDaemon(t, cfg, sim, &fakeDevice{})
	runDaemon(t, d1)

	require.Eventually(t, func() bool {
		return d1.Phase() != PhaseIdle
	}, 5*time.Second, 5*time.Millisecond)

	d2, _ := newTestDaemon(t, cfg, rig.NewSimulated(), &fakeDevice{})
	err := d2.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "another instance")
}
