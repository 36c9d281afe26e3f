package syncengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivesync/internal/remote"
)

func newTestReconciler(t *testing.T, client *fakeRemoteClient, permanentlyDelete bool) (*State, *Reconciler) {
	t.Helper()

	root := t.TempDir()
	state := NewState("root", root)
	metadata := NewMetadataCache(state, client, discardTestLogger())
	paths := NewPathMaterializer(state, metadata, discardTestLogger())
	ignore := NewIgnoreRegistry()
	r := NewReconciler(state, client, metadata, paths, ignore, discardTestLogger(), permanentlyDelete)

	return state, r
}

func int64p(v int64) *int64 { return &v }

// TestInitialSyncTwoFileFolder exercises scenario 1 from spec.md §8.
func TestInitialSyncTwoFileFolder(t *testing.T) {
	client := newFakeRemoteClient()
	client.putContent("a", []byte("aaa"))
	client.putContent("b", []byte("bbbbb"))

	state, r := newTestReconciler(t, client, false)

	folder := &remote.FileRecord{ID: "F", Name: "F", MimeType: folderMimeType, Parents: []string{"root"}}
	a := &remote.FileRecord{ID: "a", Name: "a.txt", MD5Checksum: md5Hex([]byte("aaa")), Size: int64p(3), Parents: []string{"F"}}
	b := &remote.FileRecord{ID: "b", Name: "b.txt", MD5Checksum: md5Hex([]byte("bbbbb")), Size: int64p(5), Parents: []string{"F"}}

	ctx := context.Background()

	changed, err := r.addLocally(ctx, folder)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = r.addLocally(ctx, a)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = r.addLocally(ctx, b)
	require.NoError(t, err)
	assert.True(t, changed)

	aPath := filepath.Join(state.RootPath(), "F", "a.txt")
	bPath := filepath.Join(state.RootPath(), "F", "b.txt")

	aData, err := os.ReadFile(aPath)
	require.NoError(t, err)
	assert.Equal(t, "aaa", string(aData))

	bData, err := os.ReadFile(bPath)
	require.NoError(t, err)
	assert.Equal(t, "bbbbb", string(bData))

	assert.Equal(t, 3, state.CacheLen())
}

// TestRemoteRename exercises scenario 2.
func TestRemoteRename(t *testing.T) {
	client := newFakeRemoteClient()
	client.putContent("a", []byte("aaa"))

	state, r := newTestReconciler(t, client, false)
	ctx := context.Background()

	folder := &remote.FileRecord{ID: "F", Name: "F", MimeType: folderMimeType, Parents: []string{"root"}}
	_, err := r.addLocally(ctx, folder)
	require.NoError(t, err)

	a := &remote.FileRecord{ID: "a", Name: "a.txt", MD5Checksum: md5Hex([]byte("aaa")), Size: int64p(3), Parents: []string{"F"}}
	_, err = r.addLocally(ctx, a)
	require.NoError(t, err)

	renamed := &remote.FileRecord{ID: "a", Name: "a2.txt", MD5Checksum: a.MD5Checksum, Size: a.Size, Parents: []string{"F"}, ModifiedTime: "2026-01-01T00:00:00Z"}

	changed, err := r.ApplyRemoteChange(ctx, &remote.Change{FileID: "a", Record: renamed})
	require.NoError(t, err)
	assert.True(t, changed)

	oldPath := filepath.Join(state.RootPath(), "F", "a.txt")
	newPath := filepath.Join(state.RootPath(), "F", "a2.txt")

	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(newPath)
	require.NoError(t, err)
	assert.Equal(t, "aaa", string(data))

	id, ok := state.PathIndexGet(newPath)
	require.True(t, ok)
	assert.Equal(t, "a", id)
}

// TestMultiParentAdd exercises scenario 3.
func TestMultiParentAdd(t *testing.T) {
	client := newFakeRemoteClient()
	client.putContent("s", []byte("s2"))

	state, r := newTestReconciler(t, client, false)
	ctx := context.Background()

	folder := &remote.FileRecord{ID: "F", Name: "F", MimeType: folderMimeType, Parents: []string{"root"}}
	_, err := r.addLocally(ctx, folder)
	require.NoError(t, err)

	s := &remote.FileRecord{ID: "s", Name: "s.txt", MD5Checksum: md5Hex([]byte("s2")), Size: int64p(2), Parents: []string{"F", "root"}}

	changed, err := r.addLocally(ctx, s)
	require.NoError(t, err)
	assert.True(t, changed)

	p1 := filepath.Join(state.RootPath(), "F", "s.txt")
	p2 := filepath.Join(state.RootPath(), "s.txt")

	d1, err := os.ReadFile(p1)
	require.NoError(t, err)
	d2, err := os.ReadFile(p2)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	id1, ok1 := state.PathIndexGet(p1)
	id2, ok2 := state.PathIndexGet(p2)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, id1, id2)
}

// TestLocalEdit exercises scenario 4.
func TestLocalEdit(t *testing.T) {
	client := newFakeRemoteClient()
	client.putContent("a", []byte("aaa"))

	state, r := newTestReconciler(t, client, false)
	ctx := context.Background()

	a := &remote.FileRecord{ID: "a", Name: "a.txt", MD5Checksum: md5Hex([]byte("aaa")), Size: int64p(3), Parents: []string{"root"}}
	client.put(a)
	_, err := r.addLocally(ctx, a)
	require.NoError(t, err)

	path := filepath.Join(state.RootPath(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("dddd"), 0o644))

	require.NoError(t, r.ApplyLocalEvent(ctx, Event{Kind: FileChanged, Path: path}))

	updated := state.CacheGet("a")
	require.NotNil(t, updated)
	assert.Equal(t, md5Hex([]byte("dddd")), updated.MD5Checksum)
}

// TestRemoteDelete exercises scenario 5.
func TestRemoteDelete(t *testing.T) {
	client := newFakeRemoteClient()
	client.putContent("a", []byte("aaa"))

	state, r := newTestReconciler(t, client, false)
	ctx := context.Background()

	a := &remote.FileRecord{ID: "a", Name: "a.txt", MD5Checksum: md5Hex([]byte("aaa")), Size: int64p(3), Parents: []string{"root"}}
	_, err := r.addLocally(ctx, a)
	require.NoError(t, err)

	path := filepath.Join(state.RootPath(), "a.txt")

	changed, err := r.ApplyRemoteChange(ctx, &remote.Change{FileID: "a", Record: &remote.FileRecord{ID: "a", Trashed: true}})
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, ok := state.PathIndexGet(path)
	assert.False(t, ok)
	assert.Nil(t, state.CacheGet("a"))
}

// TestApplyIdempotence exercises P4: applying the same change twice
// yields the same final state.
func TestApplyIdempotence(t *testing.T) {
	client := newFakeRemoteClient()
	client.putContent("a", []byte("aaa"))

	state, r := newTestReconciler(t, client, false)
	ctx := context.Background()

	a := &remote.FileRecord{ID: "a", Name: "a.txt", MD5Checksum: md5Hex([]byte("aaa")), Size: int64p(3), Parents: []string{"root"}}
	change := &remote.Change{FileID: "a", Record: a}

	_, err := r.ApplyRemoteChange(ctx, change)
	require.NoError(t, err)

	_, err = r.ApplyRemoteChange(ctx, change)
	require.NoError(t, err)

	path := filepath.Join(state.RootPath(), "a.txt")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "aaa", string(data))
}

func TestLocalFileRemovedTrashesWhenNotPermanentlyDelete(t *testing.T) {
	client := newFakeRemoteClient()
	client.putContent("a", []byte("aaa"))

	state, r := newTestReconciler(t, client, false)
	ctx := context.Background()

	a := &remote.FileRecord{ID: "a", Name: "a.txt", MD5Checksum: md5Hex([]byte("aaa")), Size: int64p(3), Parents: []string{"root"}}
	client.put(a)
	_, err := r.addLocally(ctx, a)
	require.NoError(t, err)

	path := filepath.Join(state.RootPath(), "a.txt")

	require.NoError(t, r.ApplyLocalEvent(ctx, Event{Kind: FileRemoved, Path: path}))

	remoteRecord, ok := client.records["a"]
	require.True(t, ok)
	assert.True(t, remoteRecord.Trashed)
}

func TestLocalDirRemovedAtRootIsFatal(t *testing.T) {
	client := newFakeRemoteClient()
	state, r := newTestReconciler(t, client, false)

	err := r.ApplyLocalEvent(context.Background(), Event{Kind: DirRemoved, Path: state.RootPath()})
	require.ErrorIs(t, err, ErrRootRemoved)
}

func TestParentOfPathUnknownParent(t *testing.T) {
	_, r := newTestReconciler(t, newFakeRemoteClient(), false)

	_, err := r.parentOfPath("/nonexistent/deep/a.txt")
	require.ErrorIs(t, err, ErrUnknownParent)
}
