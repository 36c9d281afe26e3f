package syncengine

import "errors"

// ErrUnknownParent is returned when a local event's directory is not yet
// in the Path Index. Per spec.md §4.6.5 this can only happen when the
// event races ahead of a remote change still in the pending queue;
// callers log and continue rather than treating it as fatal.
var ErrUnknownParent = errors.New("syncengine: unknown parent for local event")

// ErrRootRemoved is fatal: the configured local root directory itself
// was removed. The Reconciler returns it for a DirRemoved event on the
// root; the Local Event Queue logs it and stops draining, so no further
// local events are applied. It is not delivered to Controller.Start or
// to the Controller's error channel, and the engine does not terminate
// the process.
var ErrRootRemoved = errors.New("syncengine: local root directory removed")

// ErrClosed names the engine-closed condition. No function in this
// package returns it: calls made after Close are not rejected with it.
var ErrClosed = errors.New("syncengine: engine closed")
