package syncengine

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/drivesync/internal/remote"
)

// metadataFetchLimit bounds the number of concurrent uncached fetches
// getMany issues, mirroring the teacher's errgroup.SetLimit pool in
// internal/sync/transfer.go (spec.md §5: "bounded to whatever the
// Remote Client's rate allows").
const metadataFetchLimit = 10

// MetadataCache resolves remote ids to FileRecords, fetching and caching
// through the shared State (spec.md §4.4).
type MetadataCache struct {
	state  *State
	client remote.Client
	logger *slog.Logger

	// sideCacheMu guards sideCache, the short-lived Parent-info Side
	// Cache used during path walks (spec.md §3): a memo invalidated for
	// a parent id whenever any of its children's records is replaced.
	sideCacheMu sync.Mutex
	sideCache   map[string]*remote.FileRecord
}

// NewMetadataCache constructs a MetadataCache backed by state and client.
func NewMetadataCache(state *State, client remote.Client, logger *slog.Logger) *MetadataCache {
	return &MetadataCache{
		state:     state,
		client:    client,
		logger:    logger,
		sideCache: make(map[string]*remote.FileRecord),
	}
}

// Get returns the cached record for id, fetching it from the Remote
// Client on a miss. A remote not-found yields (nil, nil).
func (m *MetadataCache) Get(ctx context.Context, id string) (*remote.FileRecord, error) {
	if r := m.state.CacheGet(id); r != nil {
		return r, nil
	}

	r, err := m.client.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	if r == nil {
		return nil, nil
	}

	m.Store(r)

	return r, nil
}

// GetMany partitions ids into cached and uncached, fetches the uncached
// ones concurrently (bounded by metadataFetchLimit), and returns a
// mapping id -> record. A per-id failure or not-found yields a nil entry
// for that id without failing the batch (spec.md §4.4, §7).
func (m *MetadataCache) GetMany(ctx context.Context, ids []string) map[string]*remote.FileRecord {
	result := make(map[string]*remote.FileRecord, len(ids))

	var uncached []string

	for _, id := range ids {
		if r := m.state.CacheGet(id); r != nil {
			result[id] = r
		} else {
			uncached = append(uncached, id)
		}
	}

	if len(uncached) == 0 {
		return result
	}

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metadataFetchLimit)

	for _, id := range uncached {
		g.Go(func() error {
			r, err := m.client.GetRecord(gctx, id)
			if err != nil {
				m.logger.Warn("metadata fetch failed, yielding null for this id",
					slog.String("id", id), slog.Any("err", err))

				mu.Lock()
				result[id] = nil
				mu.Unlock()

				return nil
			}

			if r != nil {
				m.Store(r)
			}

			mu.Lock()
			result[id] = r
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait() // individual errors are already absorbed above

	return result
}

// Store inserts or replaces a record and invalidates every side-cache
// entry equal to any parent in the replaced record, because that
// parent's children-set may have shifted (spec.md §4.4).
func (m *MetadataCache) Store(r *remote.FileRecord) {
	m.state.CacheStore(r)

	m.sideCacheMu.Lock()
	defer m.sideCacheMu.Unlock()

	for _, parentID := range r.Parents {
		delete(m.sideCache, parentID)
	}
}

// sideGet returns the side-cache entry for id, if present.
func (m *MetadataCache) sideGet(id string) (*remote.FileRecord, bool) {
	m.sideCacheMu.Lock()
	defer m.sideCacheMu.Unlock()

	r, ok := m.sideCache[id]

	return r, ok
}

// sidePut memoizes a record in the side cache for the duration of one
// path walk.
func (m *MetadataCache) sidePut(r *remote.FileRecord) {
	m.sideCacheMu.Lock()
	defer m.sideCacheMu.Unlock()

	m.sideCache[r.ID] = r
}
