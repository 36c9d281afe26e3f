package syncengine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/drivesync/internal/remote"
)

// ApplyRemoteChange applies one change record from the incremental
// change feed, per spec.md §4.6.1. It returns changed=true iff at least
// one local file was actually added, removed, or rewritten.
func (r *Reconciler) ApplyRemoteChange(ctx context.Context, change *remote.Change) (bool, error) {
	if change.Removed || (change.Record != nil && change.Record.Trashed) {
		return r.removeLocally(ctx, change.FileID)
	}

	old := r.state.CacheGet(change.Record.ID)
	if old == nil {
		return r.addLocally(ctx, change.Record)
	}

	return r.applyKnown(ctx, old, change.Record)
}

// removeLocally implements spec.md §4.6.1 step 1: look up the cached
// record, compute its paths, delete those files (each preceded by an
// ignore), remove from Path Index, Metadata Cache, and Materialized Set.
func (r *Reconciler) removeLocally(ctx context.Context, id string) (bool, error) {
	old := r.state.CacheGet(id)
	if old == nil {
		return false, nil
	}

	paths, err := r.paths.PathsOf(ctx, old)
	if err != nil {
		return false, err
	}

	changed := false

	for _, p := range paths {
		if _, err := os.Lstat(p); err == nil {
			if err := r.ignoredRemove(p); err != nil {
				return changed, err
			}

			changed = true
		}

		r.removeFromIndex(p)
	}

	r.state.CacheDelete(id)

	return changed, nil
}

// addLocally implements spec.md §4.6.1 step 2: store the record,
// materialize paths, download content to each path.
func (r *Reconciler) addLocally(ctx context.Context, record *remote.FileRecord) (bool, error) {
	r.metadata.Store(record)

	paths, err := r.paths.UpdateIndex(ctx, record)
	if err != nil {
		return false, err
	}

	if len(paths) == 0 {
		return false, nil
	}

	if record.IsFolder() {
		for _, p := range paths {
			if err := os.MkdirAll(p, 0o755); err != nil {
				return false, fmt.Errorf("syncengine: creating directory %s: %w", p, err)
			}

			r.state.MaterializedAdd(p)
		}

		return true, nil
	}

	if err := r.downloadContent(ctx, record, paths); err != nil {
		return false, err
	}

	for _, p := range paths {
		r.state.MaterializedAdd(p)
	}

	return true, nil
}

// pathSetEqual reports whether a and b contain the same paths,
// irrespective of order.
func pathSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	set := make(map[string]int, len(a))
	for _, p := range a {
		set[p]++
	}

	for _, p := range b {
		set[p]--
		if set[p] < 0 {
			return false
		}
	}

	return true
}

func parentsEqual(a, b []string) bool {
	return pathSetEqual(a, b)
}

// applyKnown implements spec.md §4.6.1 step 3.
func (r *Reconciler) applyKnown(ctx context.Context, old, newRecord *remote.FileRecord) (bool, error) {
	if old.Name == newRecord.Name && parentsEqual(old.Parents, newRecord.Parents) && newRecord.ModifiedTime <= old.ModifiedTime {
		return false, nil
	}

	oldPaths := r.state.pathsForID(old.ID)

	r.metadata.Store(newRecord)

	newPaths, err := r.paths.UpdateIndex(ctx, newRecord)
	if err != nil {
		return false, err
	}

	if len(oldPaths) == 0 && len(newPaths) == 0 {
		return false, nil
	}

	if old.MD5Checksum != newRecord.MD5Checksum {
		return r.redownload(ctx, oldPaths, newRecord, newPaths)
	}

	if len(oldPaths) == 0 && len(newPaths) > 0 {
		if err := r.downloadContent(ctx, newRecord, newPaths); err != nil {
			return false, err
		}

		for _, p := range newPaths {
			r.state.MaterializedAdd(p)
		}

		return true, nil
	}

	if pathSetEqual(oldPaths, newPaths) {
		return false, nil
	}

	delta := computePathDelta(oldPaths, newPaths)
	if err := r.applyPathDelta(delta); err != nil {
		return false, err
	}

	for _, p := range newPaths {
		r.state.MaterializedAdd(p)
	}

	return len(delta.removed) > 0 || len(delta.added) > 0, nil
}

// redownload treats a checksum change as remove-then-add, per spec.md
// §4.6.1: old materializations are deleted, and content is re-downloaded
// fresh to every new path.
func (r *Reconciler) redownload(ctx context.Context, oldPaths []string, newRecord *remote.FileRecord, newPaths []string) (bool, error) {
	for _, p := range oldPaths {
		if err := r.ignoredRemove(p); err != nil {
			return false, err
		}

		r.removeFromIndex(p)
	}

	if len(newPaths) == 0 {
		return len(oldPaths) > 0, nil
	}

	if newRecord.IsFolder() {
		for _, p := range newPaths {
			if err := os.MkdirAll(p, 0o755); err != nil {
				return false, fmt.Errorf("syncengine: creating directory %s: %w", p, err)
			}

			r.state.MaterializedAdd(p)
		}

		return true, nil
	}

	if err := r.downloadContent(ctx, newRecord, newPaths); err != nil {
		return false, err
	}

	for _, p := range newPaths {
		r.state.MaterializedAdd(p)
	}

	return true, nil
}

// downloadContent implements spec.md §4.6.3: pick the first materialized
// path as canonical, download to a temp sibling, atomic-rename onto the
// canonical path, then copy to every remaining materialized path. Skips
// the download if the canonical path already exists with a matching md5.
func (r *Reconciler) downloadContent(ctx context.Context, record *remote.FileRecord, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	canonical := paths[0]

	needDownload := true

	if record.MD5Checksum != "" {
		if sum, err := fileMD5(canonical); err == nil && sum == record.MD5Checksum {
			needDownload = false
		}
	}

	if needDownload {
		if err := r.downloadToCanonical(ctx, record, canonical); err != nil {
			return err
		}
	}

	for _, p := range paths[1:] {
		if err := r.ignoredCopy(canonical, p); err != nil {
			return err
		}
	}

	return nil
}

// downloadToCanonical implements the temp-file-then-atomic-rename
// convention from spec.md §6: "." + name + ".tmp" in the root folder.
func (r *Reconciler) downloadToCanonical(ctx context.Context, record *remote.FileRecord, canonical string) error {
	tmpPath := filepath.Join(r.state.RootPath(), "."+record.Name+".tmp")

	if err := os.MkdirAll(filepath.Dir(canonical), 0o755); err != nil {
		return fmt.Errorf("syncengine: preparing directory for %s: %w", canonical, err)
	}

	body, err := r.client.DownloadContent(ctx, record.ID)
	if err != nil {
		return fmt.Errorf("syncengine: downloading %s: %w", record.ID, err)
	}
	defer body.Close()

	tmp, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("syncengine: creating temp file %s: %w", tmpPath, err)
	}

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("syncengine: writing temp file %s: %w", tmpPath, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("syncengine: closing temp file %s: %w", tmpPath, err)
	}

	r.ignore.Ignore(canonical)

	if err := os.Rename(tmpPath, canonical); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("syncengine: renaming %s to %s: %w", tmpPath, canonical, err)
	}

	r.logger.Debug("downloaded content", slog.String("id", record.ID), slog.String("path", canonical))

	return nil
}
