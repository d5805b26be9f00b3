package ingestion

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

	"github.com/54b3r/docchat-go/internal/extract"
	"github.com/54b3r/docchat-go/internal/logging"
)

// DefaultSettle is how long a file must stay unchanged before it is handled.
const DefaultSettle = 2 * time.Second

// FileHandler processes one settled file from a watched directory.
type FileHandler func(ctx context.Context, path string) error

// Watcher feeds new or rewritten .pdf/.docx files in a directory to a
// FileHandler. Bursts of write events for the same file are coalesced: the
// handler runs once the file has been quiet for the settle period.
type Watcher struct {
	dir     string
	handle  FileHandler
	settle  time.Duration
	initial bool

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Settle is the quiet period before a file is handled (default: 2s).
	Settle time.Duration
	// Initial handles files already present when Run starts.
	Initial bool
}

// NewWatcher returns a Watcher for dir.
func NewWatcher(dir string, handle FileHandler, cfg WatcherConfig) *Watcher {
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	return &Watcher{
		dir:     dir,
		handle:  handle,
		settle:  cfg.Settle,
		initial: cfg.Initial,
		timers:  make(map[string]*time.Timer),
	}
}

// Run watches until ctx is cancelled. Handler errors are logged and do not
// stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ingestion: create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("ingestion: watch %s: %w", w.dir, err)
	}
	log.Info("ingestion: watching directory", slog.String("dir", w.dir))

	if w.initial {
		entries, err := os.ReadDir(w.dir)
		if err != nil {
			return fmt.Errorf("ingestion: read %s: %w", w.dir, err)
		}
		for _, e := range entries {
			path := filepath.Join(w.dir, e.Name())
			if !e.IsDir() && wanted(path) {
				w.schedule(ctx, path)
			}
		}
	}

	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if accept(ev) {
				w.schedule(ctx, ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("ingestion: watcher error", slog.Any("error", err))
		}
	}
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok && t.Stop() {
		t.Reset(w.settle)
		return
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.timers[path] == t {
			delete(w.timers, path)
		}
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if err := w.handle(ctx, path); err != nil {
			logging.FromContext(ctx).Error("ingestion: handle file failed",
				slog.String("path", path),
				slog.Any("error", err),
			)
		}
	})
	w.timers[path] = t
}

// stop cancels pending timers and waits for running handlers.
func (w *Watcher) stop() {
	w.mu.Lock()
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// accept reports whether an fsnotify event should trigger ingestion.
func accept(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	if !wanted(ev.Name) {
		return false
	}
	info, err := os.Stat(ev.Name)
	return err == nil && !info.IsDir()
}

// wanted filters out hidden, temporary and unsupported files.
func wanted(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	return extract.Supported(base)
}
