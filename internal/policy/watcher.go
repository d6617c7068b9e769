package policy

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a policy file when it changes on disk. Editors often
// replace files with rename+create, so the parent directory is watched and
// events are filtered to the target file. Reloads are debounced to absorb
// write bursts.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *zap.Logger
	fsw      *fsnotify.Watcher
}

// NewWatcher creates a watcher for one policy file.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	return &Watcher{
		path:     path,
		debounce: 200 * time.Millisecond,
		logger:   logger,
		fsw:      fsw,
	}, nil
}

// Watch blocks until the context is cancelled, invoking onChange with each
// successfully reloaded document. A document that fails to parse is logged
// and skipped; the previously loaded policy stays in effect.
func (w *Watcher) Watch(ctx context.Context, onChange func(*Document)) error {
	defer w.fsw.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			doc, err := Load(w.path)
			if err != nil {
				w.logger.Error("policy reload failed, keeping previous policy",
					zap.String("path", w.path),
					zap.Error(err),
				)
				continue
			}
			w.logger.Info("policy reloaded", zap.String("path", w.path))
			onChange(doc)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Warn("policy watcher error", zap.Error(err))
		}
	}
}
