package syncengine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/drivesync/internal/remote"
)

// pollApplyWindow bounds concurrent change applications within one poll
// cycle, per spec.md §4.7 step 4 / §5.
const pollApplyWindow = 10

// PollParams configures the Poller's adaptive interval, per spec.md
// §4.7. Values come from config.Resolved's Poll* fields so the spec's 8s
// / 2s / 30s / ×1.5 defaults are overridable, not hardcoded.
type PollParams struct {
	Initial time.Duration
	Min     time.Duration
	Max     time.Duration
	Backoff float64
}

// Poller runs the Remote Change Poller loop: drains the incremental
// change feed and applies it through the Reconciler with an adaptive
// sleep interval (spec.md §4.7).
type Poller struct {
	state      *State
	client     remote.Client
	reconciler *Reconciler
	logger     *slog.Logger
	params     PollParams

	onApplied func(ChangeSummary)

	done chan struct{}
}

// NewPoller constructs a Poller. onApplied is invoked with a non-empty
// ChangeSummary whenever a poll cycle applies at least one change;
// callers use it to drive the filesChanged(summary) event (spec.md §6).
func NewPoller(state *State, client remote.Client, reconciler *Reconciler, logger *slog.Logger, params PollParams, onApplied func(ChangeSummary)) *Poller {
	return &Poller{
		state:      state,
		client:     client,
		reconciler: reconciler,
		logger:     logger,
		params:     params,
		onApplied:  onApplied,
		done:       make(chan struct{}),
	}
}

// Run blocks, polling until ctx is cancelled or Close is called.
func (p *Poller) Run(ctx context.Context) {
	interval := p.params.Initial

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		default:
		}

		if !p.state.Synced() || p.state.Status() == StatusInitialSyncing {
			if !p.sleep(ctx, p.params.Initial) {
				return
			}

			continue
		}

		applied, err := p.pollOnce(ctx)
		if err != nil {
			p.logger.Error("poll cycle failed, terminating poller", slog.Any("err", err))
			return
		}

		if applied {
			interval = p.params.Min
		} else {
			interval = time.Duration(float64(interval) * p.params.Backoff)
			if interval > p.params.Max {
				interval = p.params.Max
			}
		}

		if !p.sleep(ctx, interval) {
			return
		}
	}
}

// sleep waits for d, returning false if the poller was asked to stop
// while waiting.
func (p *Poller) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-p.done:
		return false
	case <-timer.C:
		return true
	}
}

// pollOnce implements one iteration of spec.md §4.7 steps 2-4: drain all
// change-feed pages, apply them in bounded windows of up to 10 concurrent
// applications, and report whether anything was applied.
func (p *Poller) pollOnce(ctx context.Context) (bool, error) {
	token := p.state.ChangeToken()

	var all []*remote.Change

	pageToken := ""

	for {
		changes, nextPageToken, newStartToken, err := p.client.ChangesSince(ctx, token, pageToken)
		if err != nil {
			return false, err
		}

		all = append(all, changes...)

		if newStartToken != "" {
			token = newStartToken
		}

		if nextPageToken == "" {
			break
		}

		pageToken = nextPageToken
	}

	if len(all) == 0 {
		return false, nil
	}

	p.state.SetStatus(StatusApplyingRemoteChange)
	defer p.state.SetStatus(StatusIdle)

	summary, err := p.applyBatched(ctx, all)
	if err != nil {
		return false, err
	}

	if token != "" {
		p.state.SetChangeToken(token)
	}

	if !summary.Empty() && p.onApplied != nil {
		p.onApplied(summary)
	}

	return !summary.Empty(), nil
}

// applyBatched applies changes through the Reconciler in windows of up
// to pollApplyWindow concurrent applications (spec.md §4.7 step 4, §5).
func (p *Poller) applyBatched(ctx context.Context, changes []*remote.Change) (ChangeSummary, error) {
	var total ChangeSummary

	for start := 0; start < len(changes); start += pollApplyWindow {
		end := start + pollApplyWindow
		if end > len(changes) {
			end = len(changes)
		}

		window := changes[start:end]

		var mu sync.Mutex

		g, gctx := errgroup.WithContext(ctx)

		for _, change := range window {
			change := change

			g.Go(func() error {
				changed, err := p.reconciler.ApplyRemoteChange(gctx, change)
				if err != nil {
					return err
				}

				if changed {
					mu.Lock()
					total.add(summaryFor(change))
					mu.Unlock()
				}

				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return total, err
		}
	}

	return total, nil
}

// summaryFor classifies one applied change for the filesChanged(summary)
// event (spec.md §6).
func summaryFor(change *remote.Change) ChangeSummary {
	switch {
	case change.Removed:
		return ChangeSummary{Removed: 1}
	case change.Record != nil && change.Record.Trashed:
		return ChangeSummary{MovedTrash: 1}
	default:
		return ChangeSummary{Updated: 1}
	}
}

// Close stops the poller loop at its next suspension point.
func (p *Poller) Close() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}
