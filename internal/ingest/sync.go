package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/starford/kiln/internal/storage"
)

// DefaultWorkers bounds concurrent document ingestion during Sync.
const DefaultWorkers = 4

// SyncStats summarises one Sync pass.
type SyncStats struct {
	Indexed   int
	Unchanged int
	Removed   int
	Failed    int
}

// Sync walks the vault and brings the store up to date:
//   - new/changed files are parsed and ingested
//   - files removed from disk are deleted from the store
//
// Per-file failures are logged and counted; Sync fails only when the vault
// or the store cannot be listed, or ctx is cancelled.
func Sync(ctx context.Context, ing *Ingestor, vault storage.Provider, workers int, logger *slog.Logger) (SyncStats, error) {
	var stats SyncStats
	metas, err := vault.List("")
	if err != nil {
		return stats, err
	}

	hashes, err := ing.Hashes(ctx)
	if err != nil {
		return stats, err
	}

	if workers <= 0 {
		workers = DefaultWorkers
	}
	var indexed, unchanged, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		if h, ok := hashes[m.Path]; ok && h == m.ContentHash {
			unchanged.Add(1)
			continue
		}

		path := m.Path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := vault.Read(path)
			if err != nil {
				logger.Warn("sync: read failed", slog.String("path", path), slog.String("error", err.Error()))
				failed.Add(1)
				return nil
			}
			if _, err := ing.Ingest(gctx, path, data); err != nil {
				logger.Warn("sync: index failed", slog.String("path", path), slog.String("error", err.Error()))
				failed.Add(1)
				return nil
			}
			logger.Debug("sync: indexed", slog.String("path", path))
			indexed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	// Remove stale entries.
	for p := range hashes {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := ing.Delete(ctx, p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			failed.Add(1)
			continue
		}
		logger.Debug("sync: removed stale", slog.String("path", p))
		stats.Removed++
	}

	stats.Indexed = int(indexed.Load())
	stats.Unchanged = int(unchanged.Load())
	stats.Failed = int(failed.Load())
	return stats, nil
}
