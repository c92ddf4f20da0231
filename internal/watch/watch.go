// Package watch feeds files dropped into a directory to the ingestion queue.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/dgnsrekt/speechify/internal/document"
	"github.com/dgnsrekt/speechify/internal/source"
)

// DefaultDebounce is how long a file must stay quiet before it is read.
const DefaultDebounce = 250 * time.Millisecond

// Submitter accepts documents; both the remote client and the playback
// controller satisfy it.
type Submitter interface {
	AddToQueue(ctx context.Context, doc document.Document) (bool, error)
}

// Watcher submits every file created or written in a directory.
type Watcher struct {
	dir      string
	submit   Submitter
	debounce time.Duration
	logger   *log.Logger
	opts     source.Options

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a changed file is read.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// WithSourceOptions overrides the inferred type or source of every file.
func WithSourceOptions(opts source.Options) Option {
	return func(w *Watcher) {
		w.opts = opts
	}
}

// New creates a watcher for dir.
func New(dir string, submit Submitter, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		submit:   submit,
		debounce: DefaultDebounce,
		logger:   log.Default(),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("unable to watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", w.dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating fsnotify watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("error adding dir to fsnotify watcher: %w", err)
	}
	w.logger.Info("Watching directory", "dir", w.dir)

	ready := make(chan string)
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if ignored(event.Name) {
				continue
			}
			w.logger.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			w.schedule(ctx, event.Name, ready)

		case name := <-ready:
			w.ingest(ctx, name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", "dir", w.dir, "error", err)
		}
	}
}

// schedule (re)starts the debounce timer for name.
func (w *Watcher) schedule(ctx context.Context, name string, ready chan<- string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[name]; ok {
		t.Stop()
	}
	w.pending[name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, name)
		w.mu.Unlock()

		select {
		case ready <- name:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for name, t := range w.pending {
		t.Stop()
		delete(w.pending, name)
	}
}

func (w *Watcher) ingest(ctx context.Context, name string) {
	info, err := os.Stat(name)
	if err != nil || info.IsDir() {
		return
	}

	doc, err := source.File(name, w.opts)
	if errors.Is(err, source.ErrEmpty) {
		w.logger.Debug("Skipping empty file", "file", name)
		return
	}
	if err != nil {
		w.logger.Warn("Could not read file", "file", name, "error", err)
		return
	}

	ok, err := w.submit.AddToQueue(ctx, doc)
	switch {
	case err != nil:
		w.logger.Error("Could not submit file", "file", name, "error", err)
	case !ok:
		w.logger.Warn("File was rejected", "file", name, "type", doc.Type)
	default:
		w.logger.Info("Submitted file", "file", filepath.Base(name), "type", doc.Type)
	}
}

// ignored skips hidden files and editor droppings.
func ignored(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".") ||
		strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".tmp")
}
