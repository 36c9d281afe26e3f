package syncengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/drivesync/internal/checkpoint"
	"github.com/tonimelisma/drivesync/internal/remote"
)

// downloadWindow bounds concurrent downloads during the initial bulk
// sync, per spec.md §4.9 step 7.
const downloadWindow = 10

// checkpointMinChangesDefault is used when Params.CheckpointMinChanges
// is left at zero.
const checkpointMinChangesDefault = 1

// Params configures a Controller.
type Params struct {
	AccountID         string
	RootID            string
	RootPath          string
	PermanentlyDelete bool

	Poll PollParams

	CheckpointMinInterval time.Duration
	CheckpointMinChanges  int
}

// Controller is the Sync Controller: orchestrates initial bulk sync,
// starts the Poller and the Local Event Queue, tracks in-flight mode,
// emits status, and coordinates checkpointing (spec.md §4.9).
type Controller struct {
	params Params
	client remote.Client
	store  *checkpoint.Store
	logger *slog.Logger

	state      *State
	ignore     *IgnoreRegistry
	metadata   *MetadataCache
	paths      *PathMaterializer
	reconciler *Reconciler
	watcher    *Watcher
	poller     *Poller
	queue      *EventQueue

	syncing      chan bool
	filesChanged chan ChangeSummary
	errs         chan error

	cancel context.CancelFunc

	checkpointMu    sync.Mutex
	lastCheckpoint  time.Time
	changesSinceCkp int
}

// NewController wires every syncengine component together over a shared
// State, per spec.md §4.9 and §5 ("the Metadata Cache, Path Index,
// Materialized Set, PendingChanges, ChangeToken, and SyncStatus are
// mutated only by the Reconciler and the Controller").
func NewController(params Params, client remote.Client, store *checkpoint.Store, logger *slog.Logger) *Controller {
	state := NewState(params.RootID, params.RootPath)
	ignore := NewIgnoreRegistry()
	metadata := NewMetadataCache(state, client, logger)
	paths := NewPathMaterializer(state, metadata, logger)
	reconciler := NewReconciler(state, client, metadata, paths, ignore, logger, params.PermanentlyDelete)

	c := &Controller{
		params:       params,
		client:       client,
		store:        store,
		logger:       logger,
		state:        state,
		ignore:       ignore,
		metadata:     metadata,
		paths:        paths,
		reconciler:   reconciler,
		syncing:      make(chan bool, 8),
		filesChanged: make(chan ChangeSummary, 8),
		errs:         make(chan error, 8),
	}

	return c
}

// Syncing exposes the syncing(bool) event stream (spec.md §6).
func (c *Controller) Syncing() <-chan bool { return c.syncing }

// FilesChanged exposes the filesChanged(summary) event stream.
func (c *Controller) FilesChanged() <-chan ChangeSummary { return c.filesChanged }

// Errors exposes the error event stream (spec.md §7: "the controller
// reports via the error channel").
func (c *Controller) Errors() <-chan error { return c.errs }

func (c *Controller) emitSyncing(v bool) {
	select {
	case c.syncing <- v:
	default:
	}
}

func (c *Controller) emitError(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

func (c *Controller) onChangesApplied(summary ChangeSummary) {
	select {
	case c.filesChanged <- summary:
	default:
	}

	c.maybeCheckpoint(context.Background(), summary)
}

// Start implements spec.md §4.9's startup sequence and then returns once
// the initial download completes, leaving the Poller and Local Event
// Queue consumer running in the background. notify is invoked with
// human-readable progress strings (spec.md §6).
func (c *Controller) Start(ctx context.Context, notify func(string)) error {
	if notify == nil {
		notify = func(string) {}
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	notify("loading checkpoint")

	if err := c.loadCheckpoint(ctx); err != nil {
		return err
	}

	notify("starting local watcher")

	watcher, err := NewWatcher(c.params.RootPath, c.ignore, c.logger)
	if err != nil {
		return fmt.Errorf("syncengine: starting watcher: %w", err)
	}

	c.watcher = watcher
	c.queue = NewEventQueue(c.state, c.reconciler, c.logger, c.onChangesApplied)

	go c.pumpWatcherEvents(ctx)

	notify("applying pending changes")

	if err := c.applyPendingChanges(ctx); err != nil {
		return err
	}

	if c.state.Synced() {
		notify("resuming from checkpoint")
	} else {
		if err := c.initialSync(ctx, notify); err != nil {
			return err
		}
	}

	notify("starting change poller")

	c.poller = NewPoller(c.state, c.client, c.reconciler, c.logger, c.params.Poll, c.onChangesApplied)

	go c.poller.Run(ctx)

	return nil
}

// pumpWatcherEvents forwards Local Watcher events into the Local Event
// Queue for as long as the controller is running.
func (c *Controller) pumpWatcherEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.watcher.Events():
			if !ok {
				return
			}

			c.queue.Push(ctx, ev)
		}
	}
}

// loadCheckpoint implements spec.md §4.9 step 1.
func (c *Controller) loadCheckpoint(ctx context.Context) error {
	record, err := c.store.Load(ctx, c.params.AccountID)
	if err != nil {
		if err == checkpoint.ErrNoCheckpoint {
			return nil
		}

		return fmt.Errorf("syncengine: loading checkpoint: %w", err)
	}

	c.state.SetChangeToken(record.ChangeToken)
	c.state.SetSynced(record.Synced)
	c.state.LoadCache(record.FileInfo)

	materialized := make(map[string]struct{}, len(record.OnLocalDrive))

	for encoded := range record.OnLocalDrive {
		path, err := checkpoint.DecodePath(encoded)
		if err != nil {
			c.logger.Warn("skipping malformed checkpoint path", slog.Any("err", err))
			continue
		}

		materialized[path] = struct{}{}
	}

	c.state.LoadMaterialized(materialized)

	pending := make([]PendingChange, len(record.ChangesToExecute))
	for i, p := range record.ChangesToExecute {
		pending[i] = PendingChange{FileID: p.FileID, Record: p.Record, Removed: p.Removed}
	}

	c.state.PendingSet(pending)

	return nil
}

// applyPendingChanges implements spec.md §4.9 step 3: re-apply any
// PendingChanges that survived the last shutdown (idempotent per §8 P4).
func (c *Controller) applyPendingChanges(ctx context.Context) error {
	pending := c.state.PendingPopFront(len(c.state.PendingSnapshot()))
	if len(pending) == 0 {
		return nil
	}

	for _, p := range pending {
		change := &remote.Change{FileID: p.FileID, Record: p.Record, Removed: p.Removed}
		if _, err := c.reconciler.ApplyRemoteChange(ctx, change); err != nil {
			return fmt.Errorf("syncengine: re-applying pending change %s: %w", p.FileID, err)
		}
	}

	return c.checkpointNow(ctx)
}

// initialSync implements spec.md §4.9 steps 4-8.
func (c *Controller) initialSync(ctx context.Context, notify func(string)) error {
	c.state.SetStatus(StatusInitialSyncing)
	c.emitSyncing(true)

	defer func() {
		c.state.SetStatus(StatusIdle)
		c.emitSyncing(false)
	}()

	if c.state.ChangeToken() == "" {
		bootstrapID := uuid.New().String()
		notify("bootstrapping change token")

		token, err := c.client.StartPageToken(ctx)
		if err != nil {
			return fmt.Errorf("syncengine: bootstrapping change token: %w", err)
		}

		c.logger.Debug("bootstrapped change token", slog.String("bootstrap_id", bootstrapID))
		c.state.SetChangeToken(token)
	}

	notify("walking remote tree")

	records, downloadList, err := c.walkRemoteTree(ctx)
	if err != nil {
		return fmt.Errorf("syncengine: walking remote tree: %w", err)
	}

	notify("computing paths")

	if err := c.paths.PrefetchParents(ctx, records); err != nil {
		return fmt.Errorf("syncengine: prefetching parents: %w", err)
	}

	for _, r := range records {
		if _, err := c.paths.UpdateIndex(ctx, r); err != nil {
			return fmt.Errorf("syncengine: indexing %s: %w", r.ID, err)
		}
	}

	notify("downloading files")

	if err := c.downloadAll(ctx, downloadList); err != nil {
		return fmt.Errorf("syncengine: downloading initial files: %w", err)
	}

	c.state.SetSynced(true)

	return c.checkpointNow(ctx)
}

// walkRemoteTree implements spec.md §4.9 step 5: list children
// recursively from root, storing every record and collecting
// non-folder records for download.
func (c *Controller) walkRemoteTree(ctx context.Context) ([]*remote.FileRecord, []*remote.FileRecord, error) {
	var (
		all      []*remote.FileRecord
		download []*remote.FileRecord
	)

	var walk func(parentID string) error

	walk = func(parentID string) error {
		pageToken := ""

		for {
			children, nextPageToken, err := c.client.ListChildren(ctx, parentID, pageToken)
			if err != nil {
				return err
			}

			for _, child := range children {
				c.metadata.Store(child)
				all = append(all, child)

				if child.IsFolder() {
					if err := walk(child.ID); err != nil {
						return err
					}
				} else {
					download = append(download, child)
				}
			}

			if nextPageToken == "" {
				break
			}

			pageToken = nextPageToken
		}

		return nil
	}

	if err := walk(c.params.RootID); err != nil {
		return nil, nil, err
	}

	return all, download, nil
}

// downloadAll implements spec.md §4.9 step 7: bounded-parallel download
// pipeline in windows of downloadWindow, with each window's parents
// prefetched before it runs.
func (c *Controller) downloadAll(ctx context.Context, records []*remote.FileRecord) error {
	for start := 0; start < len(records); start += downloadWindow {
		end := start + downloadWindow
		if end > len(records) {
			end = len(records)
		}

		window := records[start:end]

		if err := c.paths.PrefetchParents(ctx, window); err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)

		for _, record := range window {
			record := record

			g.Go(func() error {
				_, err := c.reconciler.addLocally(gctx, record)
				return err
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}
	}

	return nil
}

// maybeCheckpoint throttles checkpoint writes per spec.md §9: "a
// time-and-change-count threshold (>30s elapsed and >0 changes)
// throttles checkpoint writes during heavy change streams."
func (c *Controller) maybeCheckpoint(ctx context.Context, summary ChangeSummary) {
	minChanges := c.params.CheckpointMinChanges
	if minChanges <= 0 {
		minChanges = checkpointMinChangesDefault
	}

	changed := summary.Added + summary.Removed + summary.Updated + summary.MovedTrash

	c.checkpointMu.Lock()
	c.changesSinceCkp += changed
	due := time.Since(c.lastCheckpoint) >= c.params.CheckpointMinInterval && c.changesSinceCkp >= minChanges
	c.checkpointMu.Unlock()

	if !due {
		return
	}

	if err := c.checkpointNow(ctx); err != nil {
		c.logger.Error("checkpoint write failed", slog.Any("err", err))
		c.emitError(err)
	}
}

// checkpointNow writes the current state unconditionally, per spec.md
// §7: "checkpoint writes occur after a successful apply, not inside
// it". The token written is the one held in State, which the Poller
// advances only after applying the changes it covers, so a persisted
// token never runs ahead of applied changes. Steady-state writes go
// through maybeCheckpoint and may be skipped by its throttle.
func (c *Controller) checkpointNow(ctx context.Context) error {
	onLocalDrive := make(map[string]bool)

	for path := range c.state.MaterializedSnapshot() {
		onLocalDrive[checkpoint.EncodePath(path)] = true
	}

	pending := c.state.PendingSnapshot()
	changesToExecute := make([]checkpoint.PendingChange, len(pending))

	for i, p := range pending {
		changesToExecute[i] = checkpoint.PendingChange{FileID: p.FileID, Record: p.Record, Removed: p.Removed}
	}

	record := &checkpoint.Record{
		ChangeToken:      c.state.ChangeToken(),
		FileInfo:         c.state.CacheSnapshot(),
		Synced:           c.state.Synced(),
		RootID:           c.params.RootID,
		ChangesToExecute: changesToExecute,
		OnLocalDrive:     onLocalDrive,
	}

	saveID := uuid.New().String()

	c.logger.Debug("writing checkpoint", slog.String("save_id", saveID), slog.Int("cached_records", len(record.FileInfo)))

	if err := c.store.Save(ctx, c.params.AccountID, record); err != nil {
		return fmt.Errorf("syncengine: writing checkpoint: %w", err)
	}

	c.checkpointMu.Lock()
	c.lastCheckpoint = time.Now()
	c.changesSinceCkp = 0
	c.checkpointMu.Unlock()

	return nil
}

// Close terminates the Poller and Local Event Queue consumer at their
// next suspension point (spec.md §6's close()).
func (c *Controller) Close() error {
	if c.cancel != nil {
		c.cancel()
	}

	if c.poller != nil {
		c.poller.Close()
	}

	if c.queue != nil {
		c.queue.Close()
	}

	if c.watcher != nil {
		return c.watcher.Close()
	}

	return nil
}

// Erase removes the persisted checkpoint, per spec.md §6's erase().
func (c *Controller) Erase(ctx context.Context) error {
	return c.store.Erase(ctx, c.params.AccountID)
}
