package syncengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueueAppliesFileAdded(t *testing.T) {
	client := newFakeRemoteClient()
	state, r := newTestReconciler(t, client, false)

	var gotSummary ChangeSummary

	done := make(chan struct{})

	q := NewEventQueue(state, r, discardTestLogger(), func(s ChangeSummary) {
		gotSummary = s
		close(done)
	})

	path := filepath.Join(state.RootPath(), "new.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	q.Push(context.Background(), Event{Kind: FileAdded, Path: path})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event was not applied")
	}

	assert.Equal(t, 1, gotSummary.Added)

	id, ok := state.PathIndexGet(path)
	require.True(t, ok)
	assert.NotEmpty(t, id)
}

func TestEventQueueSecondPushWhileRunningOnlyAppends(t *testing.T) {
	client := newFakeRemoteClient()
	state, r := newTestReconciler(t, client, false)

	q := NewEventQueue(state, r, discardTestLogger(), nil)

	path1 := filepath.Join(state.RootPath(), "one.txt")
	path2 := filepath.Join(state.RootPath(), "two.txt")
	require.NoError(t, os.WriteFile(path1, []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(path2, []byte("two"), 0o644))

	q.mu.Lock()
	q.running = true
	q.mu.Unlock()

	q.Push(context.Background(), Event{Kind: FileAdded, Path: path1})
	q.Push(context.Background(), Event{Kind: FileAdded, Path: path2})

	q.mu.Lock()
	pendingLen := len(q.pending)
	q.mu.Unlock()

	assert.Equal(t, 2, pendingLen)
}

func TestEventQueueStatusIdleAfterDrain(t *testing.T) {
	client := newFakeRemoteClient()
	state, r := newTestReconciler(t, client, false)

	done := make(chan struct{})

	q := NewEventQueue(state, r, discardTestLogger(), func(ChangeSummary) { close(done) })

	path := filepath.Join(state.RootPath(), "new.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	q.Push(context.Background(), Event{Kind: FileAdded, Path: path})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event was not applied")
	}

	assert.Equal(t, StatusIdle, state.Status())
}
