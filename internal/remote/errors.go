package remote

import "errors"

// ErrNotFound is returned by DownloadContent and DeleteRecord when the
// remote service reports a not-found condition. The other operations
// except GetRecord return the service's not-found error wrapped, not
// ErrNotFound. GetRecord itself never returns ErrNotFound — spec.md §4.1
// requires it to return a nil record instead, since the caller treats
// that as a logical removal.
var ErrNotFound = errors.New("remote: not found")

// ErrTransient marks a connection-reset-style error eligible for the
// one-retry policy in retryingClient. Concrete Client implementations
// wrap the underlying error with ErrTransient via errors.Join so callers
// can still inspect the original cause.
var ErrTransient = errors.New("remote: transient network error")
