package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, dir string) *ScheduleWatcher {
	t.Helper()
	sw, err := NewScheduleWatcher(dir, testLogger(t))
	require.NoError(t, err)
	sw.debounceTime = 10 * time.Millisecond
	t.Cleanup(sw.Stop)
	return sw
}

func expectReload(t *testing.T, sw *ScheduleWatcher) {
	t.Helper()
	select {
	case <-sw.Reloads():
	case <-time.After(5 * time.Second):
		t.Fatal("expected a reload signal")
	}
}

func TestWatcherSignalsOnScheduleEdit(t *testing.T) {
	dir := t.TempDir()
	setDir := filepath.Join(dir, "beacon")
	require.NoError(t, os.MkdirAll(setDir, 0o755))

	sw := newTestWatcher(t, dir)
	require.NoError(t, sw.Start(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(setDir, "schedule.csv"), []byte("x"), 0o644))
	expectReload(t, sw)
}

func TestWatcherCoversNewSetDirectories(t *testing.T) {
	dir := t.TempDir()
	sw := newTestWatcher(t, dir)
	require.NoError(t, sw.Start(context.Background()))

	// Creating the set directory itself queues a reload.
	setDir := filepath.Join(dir, "newset")
	require.NoError(t, os.MkdirAll(setDir, 0o755))
	expectReload(t, sw)

	// And files inside the new directory are watched from then on.
	require.NoError(t, os.WriteFile(filepath.Join(setDir, "schedule.csv"), []byte("x"), 0o644))
	expectReload(t, sw)
}

func TestWatcherCoalescesBursts(t *testing.T) {
	sw := newTestWatcher(t, t.TempDir())

	// Signals collapse into a single queued reload.
	sw.signal()
	sw.signal()
	sw.signal()

	select {
	case <-sw.Reloads():
	default:
		t.Fatal("expected one queued reload")
	}
	select {
	case <-sw.Reloads():
		t.Fatal("reload signals must coalesce")
	default:
	}
}

func TestWatcherIgnoresHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	sw := newTestWatcher(t, dir)
	require.NoError(t, sw.Start(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".swapfile"), []byte("x"), 0o644))

	select {
	case <-sw.Reloads():
		t.Fatal("hidden files must not trigger reloads")
	case <-time.After(100 * time.Millisecond):
	}
}
