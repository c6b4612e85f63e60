// Package ingest notices records arriving in (or leaving) the fails directory so a
// running review session can refresh its queue without a manual reload.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/claims-review/constants"
	"github.com/joseph-ayodele/claims-review/internal/records"
)

type WatchConfig struct {
	Dir      string        // directory to watch (not recursive)
	Ext      string        // extension without '.', defaults to json
	Debounce time.Duration // coalesce rapid create/write/remove bursts
}

// StartWatcher emits the sorted ids of records that changed under cfg.Dir, one batch
// per debounce window. Both channels close when ctx is done.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan []string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" {
		return nil, nil, errors.New("no directory provided")
	}
	if cfg.Ext == "" {
		cfg.Ext = constants.RecordExt
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", cfg.Dir, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("watch.start.failed", "error", err)
		return nil, nil, err
	}
	if err := w.Add(cfg.Dir); err != nil {
		_ = w.Close()
		logger.Error("watch.start.failed", "dir", cfg.Dir, "error", err)
		return nil, nil, err
	}

	evCh := make(chan []string, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("watch.close.failed", "error", err)
			}
		}()

		pending := map[string]struct{}{}
		timer := time.NewTimer(time.Hour)
		timer.Stop()
		var fire <-chan time.Time

		flush := func() {
			if len(pending) == 0 {
				return
			}
			ids := make([]string, 0, len(pending))
			for id := range pending {
				ids = append(ids, id)
			}
			clear(pending)
			slices.Sort(ids)
			select {
			case evCh <- ids:
			default:
				logger.Warn("watch.batch.dropped", "ids", len(ids))
			}
		}

		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				id, relevant := recordID(e, cfg.Ext)
				if !relevant {
					continue
				}
				logger.Debug("watch.event", "record_id", id, "op", e.Op.String())
				pending[id] = struct{}{}
				if cfg.Debounce <= 0 {
					flush()
					continue
				}
				timer.Reset(cfg.Debounce)
				fire = timer.C
			case <-fire:
				fire = nil
				flush()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watch.error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	logger.Info("watch.started", "dir", cfg.Dir, "debounce", cfg.Debounce.String())
	return evCh, errCh, nil
}

func recordID(e fsnotify.Event, ext string) (string, bool) {
	if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return "", false
	}
	base := filepath.Base(e.Name)
	if records.IsHidden(base) {
		return "", false
	}
	stem, found := strings.CutSuffix(base, "."+ext)
	if !found || stem == "" {
		return "", false
	}
	return stem, true
}
