package syncengine

import (
	"context"
	"log/slog"
	"sync"
)

// EventQueue is the Local Event Queue: a single-consumer FIFO that
// serializes local-originated operations through the Reconciler (spec.md
// §4.8). Producers are the Local Watcher's callbacks; exactly one
// consumer goroutine ever drains the queue.
type EventQueue struct {
	state      *State
	reconciler *Reconciler
	logger     *slog.Logger

	onApplied func(ChangeSummary)

	mu      sync.Mutex
	pending []Event
	running bool

	done chan struct{}
}

// NewEventQueue constructs an EventQueue. onApplied is invoked once per
// drain cycle with the accumulated summary, mirroring the Poller's
// filesChanged(summary) contract (spec.md §6).
func NewEventQueue(state *State, reconciler *Reconciler, logger *slog.Logger, onApplied func(ChangeSummary)) *EventQueue {
	return &EventQueue{
		state:      state,
		reconciler: reconciler,
		logger:     logger,
		onApplied:  onApplied,
		done:       make(chan struct{}),
	}
}

// Push appends an event. If no consumer loop is currently running, one is
// started; otherwise the running loop picks it up on its next iteration.
// Per spec.md §4.8: "a second producer detects the running loop and only
// appends."
func (q *EventQueue) Push(ctx context.Context, ev Event) {
	q.mu.Lock()
	q.pending = append(q.pending, ev)

	alreadyRunning := q.running
	if !alreadyRunning {
		q.running = true
	}

	q.mu.Unlock()

	if !alreadyRunning {
		go q.drain(ctx)
	}
}

// drain is the sole consumer loop: it repeatedly pops the front of the
// queue and applies it until the queue is empty, setting SyncStatus to
// applying-local-change while non-empty and back to idle when drained.
func (q *EventQueue) drain(ctx context.Context) {
	q.state.SetStatus(StatusApplyingLocalChange)

	var summary ChangeSummary

	for {
		select {
		case <-q.done:
			q.finishDrain(summary)
			return
		default:
		}

		ev, ok := q.popFront()
		if !ok {
			break
		}

		err := q.reconciler.ApplyLocalEvent(ctx, ev)
		if err != nil {
			if err == ErrRootRemoved {
				q.logger.Error("local root removed, terminating", slog.Any("err", err))
				q.finishDrain(summary)

				return
			}

			q.logger.Warn("local event apply failed", slog.String("path", ev.Path), slog.Any("err", err))

			continue
		}

		summary.add(localSummaryFor(ev))
	}

	q.finishDrain(summary)
}

func (q *EventQueue) finishDrain(summary ChangeSummary) {
	q.state.SetStatus(StatusIdle)

	if !summary.Empty() && q.onApplied != nil {
		q.onApplied(summary)
	}
}

// popFront removes and returns the front event, reporting false and
// clearing the running flag if the queue was empty.
func (q *EventQueue) popFront() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		q.running = false
		return Event{}, false
	}

	ev := q.pending[0]
	q.pending = q.pending[1:]

	return ev, true
}

// localSummaryFor classifies one applied local event for the
// filesChanged(summary) event.
func localSummaryFor(ev Event) ChangeSummary {
	switch ev.Kind {
	case FileRemoved, DirRemoved:
		return ChangeSummary{Removed: 1}
	case FileAdded, DirAdded:
		return ChangeSummary{Added: 1}
	default:
		return ChangeSummary{Updated: 1}
	}
}

// Close stops accepting further drains at the next suspension point.
func (q *EventQueue) Close() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}
