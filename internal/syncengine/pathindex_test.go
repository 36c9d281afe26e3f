package syncengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivesync/internal/remote"
)

func newTestMaterializer(client remote.Client) (*State, *MetadataCache, *PathMaterializer) {
	state := NewState("root", "/local/root")
	metadata := NewMetadataCache(state, client, discardTestLogger())
	pm := NewPathMaterializer(state, metadata, discardTestLogger())

	return state, metadata, pm
}

func TestPathsOfRoot(t *testing.T) {
	_, _, pm := newTestMaterializer(newFakeRemoteClient())

	paths, err := pm.PathsOf(context.Background(), &remote.FileRecord{ID: "root"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/local/root"}, paths)
}

func TestPathsOfNoParents(t *testing.T) {
	_, _, pm := newTestMaterializer(newFakeRemoteClient())

	paths, err := pm.PathsOf(context.Background(), &remote.FileRecord{ID: "orphan", Name: "x"})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestPathsOfSingleParent(t *testing.T) {
	client := newFakeRemoteClient()
	_, metadata, pm := newTestMaterializer(client)

	folder := &remote.FileRecord{ID: "F", Name: "Folder", Parents: []string{"root"}}
	metadata.Store(folder)

	file := &remote.FileRecord{ID: "a", Name: "a.txt", Parents: []string{"F"}}

	paths, err := pm.PathsOf(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, []string{"/local/root/Folder/a.txt"}, paths)
}

// TestPathsOfMultiParentFanOut verifies P6: for a record with parents
// {p1,...,pk}, |pathsOf(record)| = sum |pathsOf(p_i)|.
func TestPathsOfMultiParentFanOut(t *testing.T) {
	client := newFakeRemoteClient()
	_, metadata, pm := newTestMaterializer(client)

	folder := &remote.FileRecord{ID: "F", Name: "Folder", Parents: []string{"root"}}
	metadata.Store(folder)

	shared := &remote.FileRecord{ID: "s", Name: "s.txt", Parents: []string{"F", "root"}}

	paths, err := pm.PathsOf(context.Background(), shared)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/local/root/Folder/s.txt", "/local/root/s.txt"}, paths)
}

func TestPrefetchParentsThenCacheOnlyWalk(t *testing.T) {
	client := newFakeRemoteClient()
	client.put(&remote.FileRecord{ID: "F", Name: "Folder", Parents: []string{"root"}})

	_, _, pm := newTestMaterializer(client)

	file := &remote.FileRecord{ID: "a", Name: "a.txt", Parents: []string{"F"}}

	require.NoError(t, pm.PrefetchParents(context.Background(), []*remote.FileRecord{file}))

	// Remove the backing record so any further remote fetch would fail;
	// PathsOf must now be cache-only.
	delete(client.records, "F")

	paths, err := pm.PathsOf(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, []string{"/local/root/Folder/a.txt"}, paths)
}

func TestUpdateIndexWritesPathIndex(t *testing.T) {
	client := newFakeRemoteClient()
	state, metadata, pm := newTestMaterializer(client)

	folder := &remote.FileRecord{ID: "F", Name: "Folder", Parents: []string{"root"}}
	metadata.Store(folder)

	file := &remote.FileRecord{ID: "a", Name: "a.txt", Parents: []string{"F"}}
	metadata.Store(file)

	paths, err := pm.UpdateIndex(context.Background(), file)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	id, ok := state.PathIndexGet(paths[0])
	require.True(t, ok)
	assert.Equal(t, "a", id)
}
