package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/notefile"
	"github.com/starford/ansuz/internal/storage"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, id string)

// Watch runs an fsnotify watcher over the repository directory until ctx is
// cancelled, folding externally hand-edited note files back into the index.
// This complements the full rebuild: single-file edits reconcile in place,
// and rename/remove bursts trigger a debounced reconciliation pass.
func Watch(ctx context.Context, db *DB, repo *storage.Dir, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(repo.Root()); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", repo.Root()))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(db, repo, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, ".md") || strings.HasPrefix(name, ".") {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if id := indexPath(db, ev.Name, logger); id != "" {
					kind := "updated"
					if ev.Op&fsnotify.Create != 0 {
						kind = "created"
					}
					if cb != nil {
						cb(kind, id)
					}
				}

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Remove and rename only carry the old path. The id is the
				// filename prefix; drop the entry now and schedule a pass
				// to catch the rename's landing spot.
				if id := idFromFilename(name); id != "" {
					if err := db.RemoveNote(id); err != nil {
						logger.Warn("watcher: remove failed",
							slog.String("id", id), slog.String("error", err.Error()))
					} else if cb != nil {
						cb("deleted", id)
					}
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// indexPath parses the file at path and upserts it, returning the note id
// or "" on failure.
func indexPath(db *DB, path string, logger *slog.Logger) string {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("watcher: read failed", slog.String("path", path), slog.String("error", err.Error()))
		return ""
	}
	n, err := notefile.Parse(data)
	if err != nil {
		logger.Warn("watcher: parse failed", slog.String("path", path), slog.String("error", err.Error()))
		return ""
	}
	if err := db.UpsertNote(n, checksum.Sum(data)); err != nil {
		logger.Warn("watcher: index failed", slog.String("id", n.ID), slog.String("error", err.Error()))
		return ""
	}
	logger.Debug("watcher: indexed", slog.String("id", n.ID))
	return n.ID
}

// reconcile compares repository and index checksums, removing stale entries
// and indexing anything new or changed.
func reconcile(db *DB, repo *storage.Dir, logger *slog.Logger, cb EventCallback) {
	indexed, err := db.Checksums()
	if err != nil {
		logger.Warn("reconcile: index checksums failed", slog.String("error", err.Error()))
		return
	}
	disk, err := repo.Checksums()
	if err != nil {
		logger.Warn("reconcile: repo checksums failed", slog.String("error", err.Error()))
		return
	}

	for id := range indexed {
		if _, ok := disk[id]; !ok {
			if err := db.RemoveNote(id); err == nil {
				logger.Debug("reconcile: removed stale", slog.String("id", id))
				if cb != nil {
					cb("deleted", id)
				}
			}
		}
	}

	for id, cs := range disk {
		if indexed[id] == cs {
			continue
		}
		n, err := repo.Get(id)
		if err != nil {
			continue
		}
		if err := db.UpsertNote(n, cs); err == nil {
			logger.Debug("reconcile: indexed", slog.String("id", id))
			if cb != nil {
				cb("updated", id)
			}
		}
	}
}

// idFromFilename extracts the id prefix from "<id>-<slug>.md".
func idFromFilename(name string) string {
	if i := strings.Index(name, "-"); i > 0 {
		return name[:i]
	}
	return ""
}
