package fleetconfig

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce is the hot-reload debounce window: rapid successive
// writes to config.json or servers/*.json collapse into one reload.
const reloadDebounce = 5 * time.Second

// ReloadCallback is invoked with the freshly loaded Config and Sessions
// after a debounced filesystem change settles.
type ReloadCallback func(Config, []Session)

// Watcher watches the fleet's config.json and servers/ directory and
// debounces bursts of filesystem events into a single reload (adapted
// from teranos-QNTX's am.ConfigWatcher; generalized into a reload-epoch
// counter since this daemon watches a directory of files rather than
// one, with no single "own write" path to suppress).
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	timer    *time.Timer
	epoch    atomic.Uint64
	onReload ReloadCallback

	done chan struct{}
}

// NewWatcher creates a Watcher on <dir>/config.json and <dir>/servers/.
func NewWatcher(dir string, onReload ReloadCallback) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fleetconfig: new fsnotify watcher: %w", err)
	}
	if err := fw.Add(ConfigPath(dir)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("fleetconfig: watch config.json: %w", err)
	}
	if err := fw.Add(SessionsDir(dir)); err != nil {
		// The servers/ dir may not exist yet on first boot; that's not
		// fatal to starting the watcher, just means no session hot-reload
		// until it's created and the process restarts.
		slog.Warn("[WARN-CONFIG] servers directory not watchable", "dir", SessionsDir(dir), "err", err)
	}

	w := &Watcher{
		dir:      dir,
		watcher:  fw,
		onReload: onReload,
		done:     make(chan struct{}),
	}
	return w, nil
}

// Start runs the watch loop in a new goroutine. The loop is not wrapped
// in panic recovery.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop closes the underlying fsnotify watcher and ends the watch loop.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}

// Epoch returns the number of reloads applied so far, for tests and
// diagnostics.
func (w *Watcher) Epoch() uint64 {
	return w.epoch.Load()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("[WARN-CONFIG] watcher error", "err", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.dir)
	if err != nil {
		slog.Error("[ERROR-CONFIG] hot-reload config load failed, keeping previous state", "err", err)
		return
	}
	sessions, err := LoadSessions(w.dir)
	if err != nil {
		slog.Error("[ERROR-CONFIG] hot-reload sessions load failed, keeping previous state", "err", err)
		return
	}

	w.epoch.Add(1)
	slog.Info("[INFO-CONFIG] hot-reload applied", "epoch", w.epoch.Load(), "sessions", len(sessions))
	if w.onReload != nil {
		w.onReload(cfg, sessions)
	}
}
