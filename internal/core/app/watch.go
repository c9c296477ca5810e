package app

import (
	"context"

	"pyrename/internal/core/watcher"
	"pyrename/internal/shared/util"
)

// Watch re-runs Analyze for req each time Python files in the project change,
// until ctx is done. The first analysis runs immediately. Re-analysis is
// paced by watch.max_rate.
func (e *Engine) Watch(ctx context.Context, req Request, onResult func(*Outcome, error)) error {
	changes := make(chan []string, 1)
	w, err := watcher.NewWatcher(e.cfg.Watch.Debounce, e.cfg.Exclude.Dirs, e.cfg.Exclude.Files, func(paths []string) {
		select {
		case changes <- paths:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Watch([]string{e.root}); err != nil {
		return err
	}

	limiter := util.NewLimiter(e.cfg.Watch.MaxRate, 1)
	onResult(e.Analyze(ctx, req))
	for {
		select {
		case <-ctx.Done():
			return nil
		case paths := <-changes:
			e.index.Invalidate(paths...)
			if err := limiter.Wait(ctx, 1); err != nil {
				return nil
			}
			// Fold batches that arrived while waiting into this run.
			for drained := false; !drained; {
				select {
				case more := <-changes:
					e.index.Invalidate(more...)
				default:
					drained = true
				}
			}
			e.logger.Debug("re-analysing after change", "files", len(paths))
			onResult(e.Analyze(ctx, req))
		}
	}
}
