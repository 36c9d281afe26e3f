package syncengine

import (
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFsWatcher struct {
	added  []string
	events chan fsnotify.Event
	errors chan error
	closed bool
}

func newFakeFsWatcher() *fakeFsWatcher {
	return &fakeFsWatcher{
		events: make(chan fsnotify.Event, 16),
		errors: make(chan error, 1),
	}
}

func (f *fakeFsWatcher) Add(name string) error        { f.added = append(f.added, name); return nil }
func (f *fakeFsWatcher) Remove(string) error          { return nil }
func (f *fakeFsWatcher) Close() error                 { f.closed = true; close(f.events); return nil }
func (f *fakeFsWatcher) Events() <-chan fsnotify.Event { return f.events }
func (f *fakeFsWatcher) Errors() <-chan error          { return f.errors }

func newTestWatcher(t *testing.T, fake *fakeFsWatcher, ignore *IgnoreRegistry) *Watcher {
	t.Helper()

	w := &Watcher{
		fs:     fake,
		root:   t.TempDir(),
		ignore: ignore,
		logger: discardTestLogger(),
		events: make(chan Event, 16),
		done:   make(chan struct{}),
		dirs:   make(map[string]struct{}),
	}

	go w.run()
	t.Cleanup(func() { close(w.done) })

	return w
}

func TestWatcherSuppressesIgnoredPath(t *testing.T) {
	fake := newFakeFsWatcher()
	ignore := NewIgnoreRegistry()
	ignore.Ignore("/root/a.txt")

	w := newTestWatcher(t, fake, ignore)
	fake.events <- fsnotify.Event{Name: "/root/a.txt", Op: fsnotify.Write}

	select {
	case ev := <-w.Events():
		t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatcherSuppressesTempPath(t *testing.T) {
	fake := newFakeFsWatcher()
	w := newTestWatcher(t, fake, NewIgnoreRegistry())

	fake.events <- fsnotify.Event{Name: "/root/.a.txt.tmp", Op: fsnotify.Write}

	select {
	case ev := <-w.Events():
		t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatcherForwardsWrite(t *testing.T) {
	fake := newFakeFsWatcher()
	w := newTestWatcher(t, fake, NewIgnoreRegistry())

	fake.events <- fsnotify.Event{Name: "/root/a.txt", Op: fsnotify.Write}

	select {
	case ev := <-w.Events():
		assert.Equal(t, FileChanged, ev.Kind)
		assert.Equal(t, "/root/a.txt", ev.Path)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestWatcherClassifiesKnownDirRemoval(t *testing.T) {
	fake := newFakeFsWatcher()
	w := newTestWatcher(t, fake, NewIgnoreRegistry())
	w.dirs["/root/sub"] = struct{}{}

	fake.events <- fsnotify.Event{Name: "/root/sub", Op: fsnotify.Remove}

	select {
	case ev := <-w.Events():
		assert.Equal(t, DirRemoved, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestIsTempPath(t *testing.T) {
	assert.True(t, isTempPath("/x/.name.tmp"))
	assert.False(t, isTempPath("/x/name.tmp"))
	assert.False(t, isTempPath("/x/name.txt"))
}

func TestIgnoreRegistryPerWriteTokens(t *testing.T) {
	r := NewIgnoreRegistry()
	r.Ignore("/a")
	r.Ignore("/a")

	require.True(t, r.Consume("/a"))
	require.True(t, r.Consume("/a"))
	require.False(t, r.Consume("/a"))
}
