package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/catalogtools/apt/pkg/telemetry"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 250 * time.Millisecond

// ChangeFunc receives the reloaded settings, or the error that prevented
// loading or validating them.
type ChangeFunc func(s *Settings, err error)

// Watcher reloads the settings file whenever it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange ChangeFunc
	logger   *telemetry.Logger

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger used for watch errors.
func WithLogger(l *telemetry.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// Watch starts watching path. The parent directory is watched so that
// editors which replace the file by renaming are noticed too. The watcher
// stops when ctx is cancelled or Close is called.
func Watch(ctx context.Context, path string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		onChange: onChange,
		logger:   telemetry.NopLogger(),
		watcher:  fw,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	go w.run(ctx)

	w.logger.WithField("path", w.path).Debug("Watching settings file")
	return w, nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		w.cancel()
		<-w.done
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.logger.WithFields(map[string]interface{}{
				"file": event.Name,
				"op":   event.Op.String(),
			}).Debug("Settings file changed")
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("Settings watcher error")
		}
	}
}

func (w *Watcher) reload() {
	s, err := Load(w.path)
	if err == nil {
		err = s.Validate()
	}
	if err != nil {
		w.logger.WithError(err).WithField("path", w.path).Warn("Reloaded settings are not usable")
		w.onChange(nil, err)
		return
	}
	w.logger.WithField("path", w.path).Info("Settings reloaded")
	w.onChange(s, nil)
}
