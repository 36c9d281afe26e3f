package syncengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tonimelisma/drivesync/internal/remote"
)

// folderMimeType is the mime type used when creating a folder record for
// a locally-created directory.
const folderMimeType = "application/vnd.google-apps.folder"

// ApplyLocalEvent applies one event from the Local Event Queue, per
// spec.md §4.6.4. Events are handled one at a time by construction — the
// queue serializes them.
func (r *Reconciler) ApplyLocalEvent(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case FileAdded:
		return r.localFileAdded(ctx, ev.Path)
	case FileChanged:
		return r.localFileChanged(ctx, ev.Path)
	case FileRemoved:
		return r.localFileRemoved(ctx, ev.Path)
	case DirAdded:
		return r.localDirAdded(ctx, ev.Path)
	case DirRemoved:
		return r.localDirRemoved(ctx, ev.Path)
	default:
		return fmt.Errorf("syncengine: unhandled event kind %v", ev.Kind)
	}
}

// parentOfPath implements spec.md §4.6.5: dirname(path) looked up in the
// Path Index; the configured root is special-cased since it is never
// itself stored as a Path Index entry.
func (r *Reconciler) parentOfPath(path string) (string, error) {
	dir := filepath.Dir(path)

	if dir == r.state.RootPath() {
		return r.state.RootID(), nil
	}

	id, ok := r.state.PathIndexGet(dir)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownParent, dir)
	}

	return id, nil
}

// localFileAdded implements spec.md §4.6.4's "Local file added".
func (r *Reconciler) localFileAdded(ctx context.Context, path string) error {
	if _, ok := r.state.PathIndexGet(path); ok {
		return r.localFileChanged(ctx, path)
	}

	parentID, err := r.parentOfPath(path)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("syncengine: opening %s: %w", path, err)
	}
	defer f.Close()

	meta := &remote.FileRecord{Name: filepath.Base(path), Parents: []string{parentID}}

	created, err := r.client.CreateFile(ctx, meta, f)
	if err != nil {
		return fmt.Errorf("syncengine: creating remote file for %s: %w", path, err)
	}

	return r.storeCreatedLocal(ctx, created)
}

// localFileChanged implements spec.md §4.6.4's "Local file changed".
func (r *Reconciler) localFileChanged(ctx context.Context, path string) error {
	id, ok := r.state.PathIndexGet(path)
	if !ok {
		return r.localFileAdded(ctx, path)
	}

	record := r.state.CacheGet(id)
	if record == nil {
		var err error

		record, err = r.metadata.Get(ctx, id)
		if err != nil {
			return err
		}
	}

	if record != nil && record.Size == nil {
		// Non-downloadable blob: no content to push.
		return nil
	}

	sum, err := fileMD5(path)
	if err != nil {
		return fmt.Errorf("syncengine: hashing %s: %w", path, err)
	}

	if record != nil && sum == record.MD5Checksum {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("syncengine: opening %s: %w", path, err)
	}
	defer f.Close()

	updated, err := r.client.UpdateContent(ctx, id, f)
	if err != nil {
		return fmt.Errorf("syncengine: updating content for %s: %w", path, err)
	}

	r.metadata.Store(updated)

	for _, sibling := range r.state.pathsForID(id) {
		if sibling == path {
			continue
		}

		if err := r.ignoredCopy(path, sibling); err != nil {
			return err
		}
	}

	return nil
}

// localFileRemoved implements spec.md §4.6.4's "Local file removed".
func (r *Reconciler) localFileRemoved(ctx context.Context, path string) error {
	id, ok := r.state.PathIndexGet(path)
	if !ok {
		return nil
	}

	siblings := r.state.pathsForID(id)
	for _, sibling := range siblings {
		if err := r.ignoredRemove(sibling); err != nil {
			return err
		}

		r.removeFromIndex(sibling)
	}

	r.state.CacheDelete(id)

	if r.permanentlyDelete {
		return r.client.DeleteRecord(ctx, id)
	}

	_, err := r.client.UpdateMetadata(ctx, id, &remote.FileRecord{Trashed: true})

	return err
}

// localDirAdded implements spec.md §4.6.4's "Local directory added":
// same as file added but with a folder mime type and no content stream.
func (r *Reconciler) localDirAdded(ctx context.Context, path string) error {
	if _, ok := r.state.PathIndexGet(path); ok {
		return r.localFileChanged(ctx, path)
	}

	parentID, err := r.parentOfPath(path)
	if err != nil {
		return err
	}

	meta := &remote.FileRecord{Name: filepath.Base(path), Parents: []string{parentID}, MimeType: folderMimeType}

	created, err := r.client.CreateFile(ctx, meta, nil)
	if err != nil {
		return fmt.Errorf("syncengine: creating remote folder for %s: %w", path, err)
	}

	return r.storeCreatedLocal(ctx, created)
}

// localDirRemoved implements spec.md §4.6.4's "Local directory removed":
// reuses file-removed logic, with a fatal guard if the root itself was
// removed.
func (r *Reconciler) localDirRemoved(ctx context.Context, path string) error {
	if path == r.state.RootPath() {
		return ErrRootRemoved
	}

	return r.localFileRemoved(ctx, path)
}

// storeCreatedLocal stores a freshly-created record and marks every
// materialized path as belonging to the engine.
func (r *Reconciler) storeCreatedLocal(ctx context.Context, created *remote.FileRecord) error {
	r.metadata.Store(created)

	paths, err := r.paths.UpdateIndex(ctx, created)
	if err != nil {
		return err
	}

	for _, p := range paths {
		r.state.MaterializedAdd(p)
	}

	return nil
}
