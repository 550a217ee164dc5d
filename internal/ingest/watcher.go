package ingest

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/kiln/internal/storage"
)

// reconcileDelay debounces the reconciliation pass that follows renames.
const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the vault root and ingests file changes
// until ctx is cancelled. Mutations are reported through the Ingestor's
// EventFunc.
//
// New directories created at runtime are added to the watch list. Rename
// events trigger a debounced reconciliation pass that removes entities whose
// files no longer exist and ingests files the store has not seen.
func Watch(ctx context.Context, ing *Ingestor, vault storage.Provider, vaultRoot string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, vault, vaultRoot, vaultRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", vaultRoot))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
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
			reconcile(ctx, ing, vault, logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name
			rel, relErr := filepath.Rel(vaultRoot, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if vault.Ignored(rel) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, vault, vaultRoot, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					ingestNewDir(ctx, ing, vault, vaultRoot, absPath, logger)
					continue
				}
			}

			if !strings.HasSuffix(absPath, ".md") {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := vault.Read(rel)
				if readErr != nil {
					logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
					continue
				}
				if _, idxErr := ing.Ingest(ctx, rel, data); idxErr != nil {
					logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
				}

			case ev.Op&fsnotify.Remove != 0:
				if delErr := ing.Delete(ctx, rel); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
				}

			case ev.Op&fsnotify.Rename != 0:
				// Rename fires on the old path only; the new path arrives as
				// a Create if it stays inside a watched directory.
				if delErr := ing.Delete(ctx, rel); delErr != nil {
					logger.Warn("watcher: rename delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
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

// reconcile removes entities without a file on disk and ingests files whose
// hash the store does not have.
func reconcile(ctx context.Context, ing *Ingestor, vault storage.Provider, logger *slog.Logger) {
	hashes, err := ing.Hashes(ctx)
	if err != nil {
		logger.Warn("reconcile: list hashes failed", slog.String("error", err.Error()))
		return
	}
	metas, err := vault.List("")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
	}
	for p := range hashes {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := ing.Delete(ctx, p); err == nil {
			logger.Debug("reconcile: removed stale", slog.String("path", p))
		}
	}

	for _, m := range metas {
		if h, ok := hashes[m.Path]; ok && h == m.ContentHash {
			continue
		}
		data, err := vault.Read(m.Path)
		if err != nil {
			continue
		}
		if _, err := ing.Ingest(ctx, m.Path, data); err == nil {
			logger.Debug("reconcile: indexed", slog.String("path", m.Path))
		}
	}
}

// ingestNewDir ingests the .md files already present in a new directory.
func ingestNewDir(ctx context.Context, ing *Ingestor, vault storage.Provider, vaultRoot, dirPath string, logger *slog.Logger) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(vaultRoot, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if vault.Ignored(rel) {
			return nil
		}
		data, readErr := vault.Read(rel)
		if readErr != nil {
			return nil
		}
		if _, idxErr := ing.Ingest(ctx, rel, data); idxErr == nil {
			logger.Debug("watcher: indexed from new dir", slog.String("path", rel))
		}
		return nil
	})
}

// addDirsRecursive adds root and its non-ignored subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, vault storage.Provider, vaultRoot, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(vaultRoot, path); relErr == nil && rel != "." && vault.Ignored(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
