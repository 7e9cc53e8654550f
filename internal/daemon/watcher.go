package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/radioops/transmitd/internal/logfields"
)

// ScheduleWatcher monitors the transmission sets directory and raises a
// reload signal on change. It never applies reloads itself: the loop
// consumes the signal at safe points only, so a schedule edit during an
// active transmission takes effect after the cycle completes.
type ScheduleWatcher struct {
	setsPath     string
	watcher      *fsnotify.Watcher
	logger       *slog.Logger
	mu           sync.Mutex
	stopChan     chan struct{}
	stopOnce     sync.Once
	pending      chan struct{}
	reloads      chan struct{}
	debounceTime time.Duration
}

// NewScheduleWatcher creates a watcher rooted at the sets directory.
func NewScheduleWatcher(setsPath string, logger *slog.Logger) (*ScheduleWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(setsPath)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("resolve sets path: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &ScheduleWatcher{
		setsPath:     absPath,
		watcher:      watcher,
		logger:       logger,
		stopChan:     make(chan struct{}),
		pending:      make(chan struct{}, 1),
		// Capacity one: multiple rapid edits collapse into a single
		// queued reload.
		reloads:      make(chan struct{}, 1),
		debounceTime: 2 * time.Second,
	}, nil
}

// Reloads delivers at most one queued reload signal. The channel is
// never closed while the watcher runs.
func (sw *ScheduleWatcher) Reloads() <-chan struct{} { return sw.reloads }

// Start begins monitoring the sets directory and its set subdirectories.
func (sw *ScheduleWatcher) Start(ctx context.Context) error {
	if err := sw.addTree(); err != nil {
		return err
	}

	sw.logger.Info("schedule watcher started", logfields.Path(sw.setsPath))

	go sw.watchLoop(ctx)
	go sw.debounceLoop(ctx)
	return nil
}

// Stop stops the watcher and closes the underlying fsnotify handle.
func (sw *ScheduleWatcher) Stop() {
	sw.stopOnce.Do(func() {
		close(sw.stopChan)
		if err := sw.watcher.Close(); err != nil {
			sw.logger.Error("closing file watcher", logfields.Error(err))
		}
	})
}

// addTree watches the sets root plus each set directory. fsnotify is
// not recursive, so new set directories are added as they appear.
func (sw *ScheduleWatcher) addTree() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if err := sw.watcher.Add(sw.setsPath); err != nil {
		return fmt.Errorf("watch sets directory %s: %w", sw.setsPath, err)
	}

	entries, err := os.ReadDir(sw.setsPath)
	if err != nil {
		return fmt.Errorf("read sets directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(sw.setsPath, entry.Name())
		if err := sw.watcher.Add(dir); err != nil {
			sw.logger.Warn("cannot watch set directory", logfields.Path(dir), logfields.Error(err))
		}
	}
	return nil
}

func (sw *ScheduleWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sw.stopChan:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			sw.handleEvent(event)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Error("schedule watcher error", logfields.Error(err))
		}
	}
}

func (sw *ScheduleWatcher) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return
	}

	// A created set directory must be added to the watch set before its
	// schedule.csv shows up.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			sw.mu.Lock()
			if err := sw.watcher.Add(event.Name); err != nil {
				sw.logger.Warn("cannot watch new set directory",
					logfields.Path(event.Name), logfields.Error(err))
			}
			sw.mu.Unlock()
		}
	}

	if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) ||
		event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		sw.logger.Debug("schedule change detected",
			logfields.Path(event.Name), slog.String("op", event.Op.String()))
		select {
		case sw.pending <- struct{}{}:
		default:
		}
	}
}

// debounceLoop collapses bursts of file events into one reload signal.
func (sw *ScheduleWatcher) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-sw.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-sw.pending:
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(sw.debounceTime, sw.signal)
		}
	}
}

func (sw *ScheduleWatcher) signal() {
	select {
	case sw.reloads <- struct{}{}:
		sw.logger.Info("schedule reload queued")
	default:
		// A reload is already queued; coalesce.
	}
}
