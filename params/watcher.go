package params

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/impedance/logging"
)

// DefaultDebounce is how long the file must be quiet before it is reloaded. Editors usually
// write a file in several steps.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a parameter file whenever it changes and applies what changed to the gains.
// Files that fail to parse are logged and leave the gains alone.
type Watcher struct {
	logger logging.Logger
	path   string
	n      int
	gains  GainSetter

	fsw      *fsnotify.Watcher
	debounce func(func())
	workers  *utils.StoppableWorkers
	closed   atomic.Bool
	reloads  atomic.Uint64

	mu   sync.Mutex
	last Values
}

// NewWatcher applies the file at path, if it exists, and starts watching it. The file's
// directory must exist.
func NewWatcher(logger logging.Logger, path string, n int, gains GainSetter, delay time.Duration) (*Watcher, error) {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// watch the directory so that editors that replace the file are still seen
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "watching parameter directory"), fsw.Close())
	}

	w := &Watcher{
		logger:   logger,
		path:     abs,
		n:        n,
		gains:    gains,
		fsw:      fsw,
		debounce: debounce.New(delay),
		last:     Values{},
	}
	if _, err := os.Stat(abs); err == nil {
		if err := w.Reload(); err != nil {
			logger.Warnw("initial parameter file not applied", "path", abs, "error", err)
		}
	}
	w.workers = utils.NewBackgroundStoppableWorkers(w.watch)
	return w, nil
}

func (w *Watcher) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			w.logger.Debugw("parameter file changed", "op", ev.Op.String())
			w.debounce(func() {
				if w.closed.Load() {
					return
				}
				if err := w.Reload(); err != nil {
					w.logger.Warnw("parameter file not applied", "path", w.path, "error", err)
				}
			})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("parameter file watch error", "error", err)
		}
	}
}

// Reload reads the file and applies every value that changed since the last reload. Values
// the gain store rejects are not remembered, so they are retried by the next reload.
func (w *Watcher) Reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return errors.Wrap(err, "reading parameter file")
	}
	values, err := Parse(data, w.n)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	changes := values.Diff(w.last)
	for _, c := range changes {
		if err := Apply(w.gains, []Change{c}); err != nil {
			w.logger.Warnw("parameter rejected", "parameter", c.Key.String(), "value", c.Value, "error", err)
			continue
		}
		w.logger.Infow("parameter applied", "parameter", c.Key.String(), "value", c.Value)
		w.last[c.Key] = c.Value
	}
	w.reloads.Inc()
	return nil
}

// Reloads returns how many times the file was read and parsed successfully.
func (w *Watcher) Reloads() uint64 {
	return w.reloads.Load()
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Close stops watching.
func (w *Watcher) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	err := w.fsw.Close()
	w.workers.Stop()
	return err
}
