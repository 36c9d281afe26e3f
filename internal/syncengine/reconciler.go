package syncengine

import (
	"context"
	"crypto/md5" //nolint:gosec // content-identity checksum, not a security boundary
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/drivesync/internal/remote"
)

// Reconciler applies a single remote change or local event to both sides
// of the sync, deciding add/remove/update/move (spec.md §4.6). It is the
// only component, besides the Controller, permitted to mutate the shared
// State (spec.md §5).
type Reconciler struct {
	state             *State
	client            remote.Client
	metadata          *MetadataCache
	paths             *PathMaterializer
	ignore            *IgnoreRegistry
	logger            *slog.Logger
	permanentlyDelete bool
}

// NewReconciler constructs a Reconciler. permanentlyDelete selects
// between hard deletion and trashing for local file removal (spec.md
// §4.6.4).
func NewReconciler(
	state *State,
	client remote.Client,
	metadata *MetadataCache,
	paths *PathMaterializer,
	ignore *IgnoreRegistry,
	logger *slog.Logger,
	permanentlyDelete bool,
) *Reconciler {
	return &Reconciler{
		state:             state,
		client:            client,
		metadata:          metadata,
		paths:             paths,
		ignore:            ignore,
		logger:            logger,
		permanentlyDelete: permanentlyDelete,
	}
}

// pathDelta is the result of comparing an old and new path set (spec.md
// §4.6.2).
type pathDelta struct {
	removed []string
	added   []string
}

// computePathDelta computes removed = old \ new and added = new \ old,
// preserving the order of each input slice.
func computePathDelta(oldPaths, newPaths []string) pathDelta {
	oldSet := make(map[string]bool, len(oldPaths))
	for _, p := range oldPaths {
		oldSet[p] = true
	}

	newSet := make(map[string]bool, len(newPaths))
	for _, p := range newPaths {
		newSet[p] = true
	}

	var d pathDelta

	for _, p := range oldPaths {
		if !newSet[p] {
			d.removed = append(d.removed, p)
		}
	}

	for _, p := range newPaths {
		if !oldSet[p] {
			d.added = append(d.added, p)
		}
	}

	return d
}

// removeFromIndex drops path from both the Path Index and the
// Materialized Set.
func (r *Reconciler) removeFromIndex(path string) {
	r.state.PathIndexDelete(path)
	r.state.MaterializedRemove(path)
}

// ignoredRemove deletes path from disk, preceded by an Ignore Registry
// declaration (echo suppression, spec.md §4.2/§9).
func (r *Reconciler) ignoredRemove(path string) error {
	r.ignore.Ignore(path)

	if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("syncengine: removing %s: %w", path, err)
	}

	return nil
}

// ignoredRename renames oldPath to newPath, preceded by two Ignore
// Registry declarations — one for the removal half, one for the
// creation half of the rename — per spec.md §4.6.2.
func (r *Reconciler) ignoredRename(oldPath, newPath string) error {
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return fmt.Errorf("syncengine: preparing directory for %s: %w", newPath, err)
	}

	r.ignore.Ignore(oldPath)
	r.ignore.Ignore(newPath)

	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("syncengine: renaming %s to %s: %w", oldPath, newPath, err)
	}

	return nil
}

// ignoredCopy copies srcPath to dstPath, preceded by an Ignore Registry
// declaration.
func (r *Reconciler) ignoredCopy(srcPath, dstPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("syncengine: preparing directory for %s: %w", dstPath, err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("syncengine: opening %s: %w", srcPath, err)
	}
	defer src.Close()

	r.ignore.Ignore(dstPath)

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("syncengine: creating %s: %w", dstPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("syncengine: copying %s to %s: %w", srcPath, dstPath, err)
	}

	return nil
}

// fileMD5 returns the hex-encoded md5 of the file at path.
func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New() //nolint:gosec // content-identity checksum, not a security boundary

	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// applyPathDelta applies the move/copy/remove strategy from spec.md
// §4.6.2 given the already-computed delta: pair removed[i] with
// added[i] as renames; surplus removed paths are deleted; surplus added
// paths are filled by copying from the first surviving new path.
func (r *Reconciler) applyPathDelta(d pathDelta) error {
	paired := len(d.removed)
	if len(d.added) < paired {
		paired = len(d.added)
	}

	for i := 0; i < paired; i++ {
		if err := r.ignoredRename(d.removed[i], d.added[i]); err != nil {
			return err
		}

		r.removeFromIndex(d.removed[i])
	}

	for i := paired; i < len(d.removed); i++ {
		if err := r.ignoredRemove(d.removed[i]); err != nil {
			return err
		}

		r.removeFromIndex(d.removed[i])
	}

	if paired < len(d.added) {
		canonical := ""
		if paired > 0 {
			canonical = d.added[0]
		}

		for i := paired; i < len(d.added); i++ {
			if canonical == "" {
				canonical = d.added[i]
				continue
			}

			if err := r.ignoredCopy(canonical, d.added[i]); err != nil {
				return err
			}
		}
	}

	return nil
}
