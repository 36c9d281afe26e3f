package syncengine

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/tonimelisma/drivesync/internal/remote"
)

// PathMaterializer computes the set of local paths a remote record
// materializes to by walking its parent chain, and maintains the reverse
// Path Index (spec.md §4.5).
type PathMaterializer struct {
	state    *State
	metadata *MetadataCache
	logger   *slog.Logger
}

// NewPathMaterializer constructs a PathMaterializer.
func NewPathMaterializer(state *State, metadata *MetadataCache, logger *slog.Logger) *PathMaterializer {
	return &PathMaterializer{state: state, metadata: metadata, logger: logger}
}

// rootRecord is the synthetic record representing the configured root:
// it has no name, no parents, and PathsOf returns {rootPath} for it
// without ever being stored in the Metadata Cache.
func (p *PathMaterializer) rootRecord() *remote.FileRecord {
	return &remote.FileRecord{ID: p.state.RootID()}
}

// PathsOf computes pathsOf(record) per spec.md §4.5:
//   - if record.id equals root id, return {rootFolder};
//   - if record has no parents, return ∅;
//   - for each parent p, resolve parent record, and for every parent-path
//     returned by pathsOf(parentRecord), emit join(parent-path, record.name).
//
// Parents is an ordered slice (not sorted or deduplicated): insertion
// order determines canonical-path precedence in content download
// (§4.6.3), so the output order here is load-bearing.
func (p *PathMaterializer) PathsOf(ctx context.Context, record *remote.FileRecord) ([]string, error) {
	if record.ID == p.state.RootID() {
		return []string{p.state.RootPath()}, nil
	}

	if len(record.Parents) == 0 {
		return nil, nil
	}

	var paths []string

	for _, parentID := range record.Parents {
		parentRecord, err := p.resolveParent(ctx, parentID)
		if err != nil {
			return nil, err
		}

		if parentRecord == nil {
			// Unknown parent: the record races ahead of the parent's own
			// ingestion. Skip this parent's contribution; the record's
			// paths are recomputed only when the record itself is applied
			// again, not when the parent arrives.
			p.logger.Warn("unresolved parent during path materialization",
				slog.String("record_id", record.ID), slog.String("parent_id", parentID))

			continue
		}

		parentPaths, err := p.PathsOf(ctx, parentRecord)
		if err != nil {
			return nil, err
		}

		for _, pp := range parentPaths {
			paths = append(paths, filepath.Join(pp, record.Name))
		}
	}

	return paths, nil
}

// resolveParent resolves a parent id via the Parent-info Side Cache,
// then the Metadata Cache, then (on a genuine miss) a single remote
// fetch — exactly the precedence spec.md §4.5 specifies. The root id is
// special-cased to the synthetic rootRecord so recursion terminates
// without ever storing a fake record in the Metadata Cache.
func (p *PathMaterializer) resolveParent(ctx context.Context, id string) (*remote.FileRecord, error) {
	if id == p.state.RootID() {
		return p.rootRecord(), nil
	}

	if r, ok := p.metadata.sideGet(id); ok {
		return r, nil
	}

	r, err := p.metadata.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if r != nil {
		p.metadata.sidePut(r)
	}

	return r, nil
}

// PrefetchParents collects every parent id transitively reachable from
// records (up to the root) and resolves them in as few batched getMany
// calls as levels in the parent chain, so a subsequent PathsOf walk over
// records touches only the cache (spec.md §4.5: "the caller collects all
// parent ids reachable ... and issues one getMany so the walk itself is
// cache-only").
func (p *PathMaterializer) PrefetchParents(ctx context.Context, records []*remote.FileRecord) error {
	seen := make(map[string]bool)

	var frontier []string

	collect := func(parents []string) {
		for _, pid := range parents {
			if pid == p.state.RootID() || seen[pid] {
				continue
			}

			seen[pid] = true

			frontier = append(frontier, pid)
		}
	}

	for _, r := range records {
		collect(r.Parents)
	}

	for len(frontier) > 0 {
		level := p.metadata.GetMany(ctx, frontier)

		var next []string

		for _, pid := range frontier {
			if r := level[pid]; r != nil {
				p.metadata.sidePut(r)

				for _, gpid := range r.Parents {
					if gpid == p.state.RootID() || seen[gpid] {
						continue
					}

					seen[gpid] = true

					next = append(next, gpid)
				}
			}
		}

		frontier = next
	}

	return nil
}

// UpdateIndex computes pathsOf(record) and writes every resulting path
// into the Path Index, per spec.md §4.5: "pathIndex[path] = id is
// updated whenever pathsOf runs during store." Stale entries from a
// record's previous path set are never removed here — only the
// Reconciler removes entries, when it removes a record.
func (p *PathMaterializer) UpdateIndex(ctx context.Context, record *remote.FileRecord) ([]string, error) {
	paths, err := p.PathsOf(ctx, record)
	if err != nil {
		return nil, err
	}

	for _, path := range paths {
		p.state.PathIndexSet(path, record.ID)
	}

	return paths, nil
}
