package runguard

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"dayrun/internal/logging"
	"dayrun/internal/services"
)

// WatchStop watches the stop marker's directory and logs when a halt is
// requested while a day is running. The returned channel receives a value
// (non-blocking) each time the marker appears. The watcher never interrupts
// the current day; it stops when ctx is done.
func (g *Guard) WatchStop(ctx context.Context, logger *slog.Logger) (<-chan struct{}, error) {
	if g.opts.StopPath == "" {
		return nil, services.ErrHaltUnsupported
	}
	if logger == nil {
		logger = g.logger
	}
	target := filepath.Clean(g.opts.StopPath)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure stop marker directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	notify := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
					continue
				}
				logging.WithContext(ctx, logger).Info("halt requested; the run stops after the current day",
					logging.String("stop_file", target))
				select {
				case notify <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("stop marker watcher error", logging.Error(err))
			}
		}
	}()
	return notify, nil
}
