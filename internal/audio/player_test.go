package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/radioops/transmitd/internal/retry"
	"github.com/radioops/transmitd/internal/rig"
	"github.com/radioops/transmitd/internal/schedule"
)

// fakeDevice records played paths and can fail on demand.
type fakeDevice struct {
	mu     sync.Mutex
	played []string
	fail   error
}

func (d *fakeDevice) Play(ctx context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
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

func fastSupervisor() *retry.Supervisor {
	return retry.NewSupervisor(retry.Policy{Initial: time.Millisecond, Max: 5 * time.Millisecond}, nil, clockwork.NewRealClock())
}

func testOccurrence(files []string, pause time.Duration) schedule.Occurrence {
	now := time.Now()
	return schedule.Occurrence{
		Set:   "beacon",
		Files: files,
		Window: schedule.Window{
			FrequencyHz: 14_230_000,
			Mode:        rig.ModeUSB,
			PowerW:      50,
			Duration:    5 * time.Minute,
			Pause:       pause,
		},
		Start: now,
		End:   now.Add(5 * time.Minute),
	}
}

func newTestPlayer(sim *rig.Simulated, dev Device, tone string) *Player {
	p := NewPlayer(sim, dev, fastSupervisor(), tone, nil, clockwork.NewRealClock())
	p.durationOf = func(path string) (time.Duration, error) { return 3 * time.Second, nil }
	return p
}

func TestTransmitPlaysToneThenContent(t *testing.T) {
	sim := rig.NewSimulated()
	dev := &fakeDevice{}
	p := newTestPlayer(sim, dev, "/tones/cal.wav")

	occ := testOccurrence([]string{"a.wav", "b.wav"}, time.Millisecond)
	require.NoError(t, p.Transmit(context.Background(), occ))

	require.Equal(t, []string{"/tones/cal.wav", "a.wav", "b.wav"}, dev.playedFiles())
	// PTT keyed exactly once, released exactly once, in that order.
	require.Equal(t, []bool{true, false}, sim.PTTHistory())
}

func TestTransmitWithoutCalibrationTone(t *testing.T) {
	sim := rig.NewSimulated()
	dev := &fakeDevice{}
	p := newTestPlayer(sim, dev, "")

	require.NoError(t, p.Transmit(context.Background(), testOccurrence([]string{"a.wav"}, 0)))
	require.Equal(t, []string{"a.wav"}, dev.playedFiles())
}

func TestTransmitReleasesPTTOnDeviceFailure(t *testing.T) {
	sim := rig.NewSimulated()
	dev := &fakeDevice{fail: errors.New("device unavailable")}
	p := newTestPlayer(sim, dev, "")

	// Bound the retry loop the way the daemon does: by the window end.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := p.Transmit(ctx, testOccurrence([]string{"a.wav"}, 0))
	require.Error(t, err)

	history := sim.PTTHistory()
	require.NotEmpty(t, history)
	require.False(t, history[len(history)-1], "PTT must be off after any exit from transmit")
}

func TestTransmitReleasesPTTOnCancellation(t *testing.T) {
	sim := rig.NewSimulated()
	dev := &fakeDevice{}
	p := newTestPlayer(sim, dev, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Pause between two files hits the cancelled context.
	err := p.Transmit(ctx, testOccurrence([]string{"a.wav", "b.wav"}, time.Hour))
	require.ErrorIs(t, err, context.Canceled)

	history := sim.PTTHistory()
	require.False(t, history[len(history)-1])
}

func TestTransmitFailedPTTAssertPlaysNothing(t *testing.T) {
	sim := rig.NewSimulated()
	sim.FailOp("set_ptt", errors.New("io"))
	dev := &fakeDevice{}
	p := newTestPlayer(sim, dev, "")

	err := p.Transmit(context.Background(), testOccurrence([]string{"a.wav"}, 0))
	require.Error(t, err)
	require.Empty(t, dev.playedFiles())
}

func TestTransmitNoContent(t *testing.T) {
	p := newTestPlayer(rig.NewSimulated(), &fakeDevice{}, "")
	err := p.Transmit(context.Background(), testOccurrence(nil, 0))
	require.ErrorIs(t, err, ErrNoContent)
}

func TestPlanDuration(t *testing.T) {
	p := newTestPlayer(rig.NewSimulated(), &fakeDevice{}, "/tones/cal.wav")

	occ := testOccurrence([]string{"a.wav", "b.wav", "c.wav"}, 2*time.Second)
	// tone 3s + 3 files * 3s + 2 pauses * 2s
	require.Equal(t, 16*time.Second, p.PlanDuration(occ))
}
