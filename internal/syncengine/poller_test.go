package syncengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivesync/internal/remote"
)

var testPollParams = PollParams{
	Initial: 5 * time.Millisecond,
	Min:     2 * time.Millisecond,
	Max:     20 * time.Millisecond,
	Backoff: 1.5,
}

func TestPollerSkipsWhileUnsynced(t *testing.T) {
	client := newFakeRemoteClient()
	state, r := newTestReconciler(t, client, false)
	state.SetSynced(false)

	client.changes = []*remote.Change{{FileID: "a", Record: &remote.FileRecord{ID: "a", Name: "a.txt", Parents: []string{"root"}}}}

	p := NewPoller(state, client, r, discardTestLogger(), testPollParams, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	p.Run(ctx)

	assert.Nil(t, state.CacheGet("a"))
}

func TestPollerAppliesQueuedChangesAndReportsSummary(t *testing.T) {
	client := newFakeRemoteClient()
	state, r := newTestReconciler(t, client, false)
	state.SetSynced(true)

	client.putContent("a", []byte("aaa"))
	client.changes = []*remote.Change{
		{FileID: "a", Record: &remote.FileRecord{ID: "a", Name: "a.txt", MD5Checksum: md5Hex([]byte("aaa")), Size: int64p(3), Parents: []string{"root"}}},
	}

	var gotSummary ChangeSummary

	p := NewPoller(state, client, r, discardTestLogger(), testPollParams, func(s ChangeSummary) {
		gotSummary = s
	})

	applied, err := p.pollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, gotSummary.Updated)
}

func TestPollerNoChangesReportsNotApplied(t *testing.T) {
	client := newFakeRemoteClient()
	state, r := newTestReconciler(t, client, false)
	state.SetSynced(true)

	p := NewPoller(state, client, r, discardTestLogger(), testPollParams, nil)

	applied, err := p.pollOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestPollerClosesPromptly(t *testing.T) {
	client := newFakeRemoteClient()
	state, r := newTestReconciler(t, client, false)
	state.SetSynced(true)

	p := NewPoller(state, client, r, discardTestLogger(), testPollParams, nil)
	p.Close()

	done := make(chan struct{})

	go func() {
		p.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after Close")
	}
}
