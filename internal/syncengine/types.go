// Package syncengine implements the synchronization engine: the Ignore
// Registry, Local Watcher, Metadata Cache, Path Materializer, Reconciler,
// Remote Change Poller, Local Event Queue, and Sync Controller (spec.md
// §4.2–4.9), sharing state through a single mutex-guarded State.
package syncengine

import (
	"sync"

	"github.com/tonimelisma/drivesync/internal/remote"
)

// Status is the union of states the engine can be in (spec.md §3,
// SyncStatus).
type Status int

const (
	StatusIdle Status = iota
	StatusInitialSyncing
	StatusApplyingRemoteChange
	StatusApplyingLocalChange
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusInitialSyncing:
		return "initial-syncing"
	case StatusApplyingRemoteChange:
		return "applying-remote-change"
	case StatusApplyingLocalChange:
		return "applying-local-change"
	default:
		return "unknown"
	}
}

// PendingChange is one change record fetched from the feed but not yet
// applied, persisted so a crash mid-apply does not lose it (spec.md §3).
type PendingChange struct {
	FileID  string
	Record  *remote.FileRecord
	Removed bool
}

// ChangeSummary counts what changed since the last emission, per spec.md
// §6's filesChanged(summary) event.
type ChangeSummary struct {
	Added      int
	Removed    int
	Updated    int
	MovedTrash int
}

// Empty reports whether no changes were counted.
func (s ChangeSummary) Empty() bool {
	return s.Added == 0 && s.Removed == 0 && s.Updated == 0 && s.MovedTrash == 0
}

// add merges delta into s.
func (s *ChangeSummary) add(delta ChangeSummary) {
	s.Added += delta.Added
	s.Removed += delta.Removed
	s.Updated += delta.Updated
	s.MovedTrash += delta.MovedTrash
}

// State is the shared, mutex-guarded home of the Metadata Cache, Path
// Index, Materialized Set, PendingChanges, ChangeToken, and SyncStatus
// (spec.md §5: "mutations to these maps must be serialized"). Bounded
// concurrent reconciler work (the poller's and controller's windows of up
// to 10) all mutate through this one struct.
type State struct {
	mu sync.RWMutex

	rootID   string
	rootPath string

	cache     map[string]*remote.FileRecord // Metadata Cache: id -> record
	pathIndex map[string]string             // local path -> id

	materialized map[string]struct{} // Materialized Set

	changeToken string
	pending     []PendingChange

	synced bool
	status Status
}

// NewState constructs an empty State rooted at rootID/rootPath.
func NewState(rootID, rootPath string) *State {
	return &State{
		rootID:       rootID,
		rootPath:     rootPath,
		cache:        make(map[string]*remote.FileRecord),
		pathIndex:    make(map[string]string),
		materialized: make(map[string]struct{}),
	}
}

// RootID returns the configured remote root id.
func (s *State) RootID() string { return s.rootID }

// RootPath returns the configured local root path.
func (s *State) RootPath() string { return s.rootPath }

// Status returns the current SyncStatus.
func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.status
}

// SetStatus sets the current SyncStatus.
func (s *State) SetStatus(v Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = v
}

// Synced reports whether the initial sync has completed.
func (s *State) Synced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.synced
}

// SetSynced marks the initial sync complete.
func (s *State) SetSynced(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.synced = v
}

// ChangeToken returns the current change feed cursor.
func (s *State) ChangeToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.changeToken
}

// SetChangeToken replaces the in-memory change feed cursor. It is
// persisted by the next checkpoint write; the Poller calls it only after
// the changes the new token covers have been applied.
func (s *State) SetChangeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.changeToken = token
}

// CacheGet returns the cached record for id, or nil if absent.
func (s *State) CacheGet(id string) *remote.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cache[id]
}

// CacheGetMany returns the cached records for ids that are present,
// leaving absent ids out of the result.
func (s *State) CacheGetMany(ids []string) map[string]*remote.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*remote.FileRecord, len(ids))
	for _, id := range ids {
		if r, ok := s.cache[id]; ok {
			out[id] = r
		}
	}

	return out
}

// CacheStore inserts or replaces a record.
func (s *State) CacheStore(r *remote.FileRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[r.ID] = r
}

// CacheDelete removes a record from the cache.
func (s *State) CacheDelete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, id)
}

// CacheLen returns the number of cached records.
func (s *State) CacheLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.cache)
}

// CacheSnapshot returns a shallow copy of the entire Metadata Cache, for
// checkpointing.
func (s *State) CacheSnapshot() map[string]*remote.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*remote.FileRecord, len(s.cache))
	for id, r := range s.cache {
		out[id] = r
	}

	return out
}

// LoadCache replaces the Metadata Cache wholesale, used when restoring
// from a checkpoint.
func (s *State) LoadCache(m map[string]*remote.FileRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache = m
}

// PathIndexGet returns the id mapped to path, and whether it was present.
func (s *State) PathIndexGet(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.pathIndex[path]

	return id, ok
}

// PathIndexSet records path -> id. Per spec.md §4.5, stale entries are
// never deleted here — only the Reconciler removes entries, when it
// removes a record.
func (s *State) PathIndexSet(path, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pathIndex[path] = id
}

// PathIndexDelete removes a path from the index.
func (s *State) PathIndexDelete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pathIndex, path)
}

// pathsForID returns every path in the Path Index currently mapped to
// id, used by the Reconciler to recover a record's prior materialized
// paths before they are overwritten by a replacement record.
func (s *State) pathsForID(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string

	for p, pid := range s.pathIndex {
		if pid == id {
			out = append(out, p)
		}
	}

	return out
}

// PathIndexSnapshot returns a shallow copy of the Path Index.
func (s *State) PathIndexSnapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.pathIndex))
	for p, id := range s.pathIndex {
		out[p] = id
	}

	return out
}

// MaterializedAdd records path as written by the engine.
func (s *State) MaterializedAdd(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.materialized[path] = struct{}{}
}

// MaterializedRemove drops path from the Materialized Set.
func (s *State) MaterializedRemove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.materialized, path)
}

// MaterializedHas reports whether path is in the Materialized Set.
func (s *State) MaterializedHas(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.materialized[path]

	return ok
}

// MaterializedSnapshot returns a shallow copy of the Materialized Set.
func (s *State) MaterializedSnapshot() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]struct{}, len(s.materialized))
	for p := range s.materialized {
		out[p] = struct{}{}
	}

	return out
}

// LoadMaterialized replaces the Materialized Set wholesale.
func (s *State) LoadMaterialized(m map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.materialized = m
}

// PendingSnapshot returns a copy of PendingChanges.
func (s *State) PendingSnapshot() []PendingChange {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]PendingChange, len(s.pending))
	copy(out, s.pending)

	return out
}

// PendingSet replaces PendingChanges wholesale, persisted so a crash
// mid-apply does not lose changes (spec.md §3).
func (s *State) PendingSet(p []PendingChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = p
}

// PendingAppend appends changes to PendingChanges.
func (s *State) PendingAppend(changes ...PendingChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, changes...)
}

// PendingPopFront removes and returns the first n pending changes (or
// fewer, if there are not n left).
func (s *State) PendingPopFront(n int) []PendingChange {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > len(s.pending) {
		n = len(s.pending)
	}

	popped := make([]PendingChange, n)
	copy(popped, s.pending[:n])
	s.pending = s.pending[n:]

	return popped
}
