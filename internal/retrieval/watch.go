package retrieval

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher rebuilds the index when the manual file changes on disk.
type Watcher struct {
	Path     string
	Holder   *Holder
	Rebuild  func(ctx context.Context) (*Index, error)
	Debounce time.Duration
	Logger   zerolog.Logger
}

// Run watches until ctx is done. The manual's directory is watched so
// that editors replacing the file atomically are noticed. A failed rebuild
// keeps the current index in service.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	target, err := filepath.Abs(w.Path)
	if err != nil {
		return fmt.Errorf("failed to resolve manual path: %w", err)
	}
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = time.Second
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if name, _ := filepath.Abs(event.Name); name != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			pending = time.After(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn().Err(err).Msg("manual watcher error")
		case <-pending:
			pending = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	start := time.Now()
	ix, err := w.Rebuild(ctx)
	if err != nil {
		w.Logger.Error().Err(err).Str("path", w.Path).Msg("manual rebuild failed, keeping current index")
		return
	}
	w.Holder.Swap(ix)
	w.Logger.Info().
		Str("path", w.Path).
		Int("chunks", ix.Len()).
		Dur("duration", time.Since(start)).
		Msg("manual index reloaded")
}
