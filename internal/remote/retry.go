package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"google.golang.org/api/googleapi"
)

// retryDelay is the fixed pause before the single retry attempt, per
// spec.md §4.1 and §7.
const retryDelay = 2 * time.Second

// wrapTransient wraps err with ErrTransient when it looks like a
// connection-reset-style network error, so retryingClient (and callers
// using errors.Is) can distinguish it from a permanent failure. Non-
// transient errors pass through unchanged.
func wrapTransient(err error) error {
	if err == nil {
		return nil
	}

	if isTransient(err) {
		return errors.Join(err, ErrTransient)
	}

	return err
}

// isTransient reports whether err represents a connection reset or
// similar transient network condition: a syscall.ECONNRESET, an
// io.ErrUnexpectedEOF, a net.Error reporting a timeout, or a 5xx
// response from the API.
func isTransient(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code >= 500 {
		return true
	}

	return false
}

// retryingClient decorates any Client with the one-retry-on-transient
// policy: a transient error retries exactly once after a 2-second pause;
// any other error, or a second transient error, propagates. Wrapping a
// decorator around the Client interface (rather than baking retry logic
// into DriveClient) keeps the policy independently testable against a
// fake inner Client, mirroring the Google-Drive-CLI examples'
// ExecuteWithRetry helper.
type retryingClient struct {
	inner  Client
	logger *slog.Logger
	sleep  func(time.Duration) // overridden in tests
}

// NewRetrying wraps inner with the one-retry-on-transient-network policy.
func NewRetrying(inner Client, logger *slog.Logger) Client {
	return &retryingClient{inner: inner, logger: logger, sleep: time.Sleep}
}

func retry[T any](c *retryingClient, op string, fn func() (T, error)) (T, error) {
	result, err := fn()
	if err == nil || !errors.Is(err, ErrTransient) {
		return result, err
	}

	c.logger.Warn("transient remote error, retrying", slog.String("op", op), slog.Any("err", err))
	c.sleep(retryDelay)

	return fn()
}

func (c *retryingClient) GetRecord(ctx context.Context, id string) (*FileRecord, error) {
	return retry(c, "GetRecord", func() (*FileRecord, error) { return c.inner.GetRecord(ctx, id) })
}

func (c *retryingClient) ListChildren(ctx context.Context, parentID, pageToken string) ([]*FileRecord, string, error) {
	type result struct {
		records   []*FileRecord
		nextToken string
	}

	r, err := retry(c, "ListChildren", func() (result, error) {
		records, next, err := c.inner.ListChildren(ctx, parentID, pageToken)
		return result{records, next}, err
	})

	return r.records, r.nextToken, err
}

func (c *retryingClient) CreateFile(ctx context.Context, metadata *FileRecord, content io.Reader) (*FileRecord, error) {
	return retry(c, "CreateFile", func() (*FileRecord, error) { return c.inner.CreateFile(ctx, metadata, content) })
}

func (c *retryingClient) UpdateContent(ctx context.Context, id string, content io.Reader) (*FileRecord, error) {
	return retry(c, "UpdateContent", func() (*FileRecord, error) { return c.inner.UpdateContent(ctx, id, content) })
}

func (c *retryingClient) UpdateMetadata(ctx context.Context, id string, patch *FileRecord) (*FileRecord, error) {
	return retry(c, "UpdateMetadata", func() (*FileRecord, error) { return c.inner.UpdateMetadata(ctx, id, patch) })
}

func (c *retryingClient) DownloadContent(ctx context.Context, id string) (io.ReadCloser, error) {
	return retry(c, "DownloadContent", func() (io.ReadCloser, error) { return c.inner.DownloadContent(ctx, id) })
}

func (c *retryingClient) DeleteRecord(ctx context.Context, id string) error {
	_, err := retry(c, "DeleteRecord", func() (struct{}, error) { return struct{}{}, c.inner.DeleteRecord(ctx, id) })
	return err
}

func (c *retryingClient) ChangesSince(ctx context.Context, token, pageToken string) ([]*Change, string, string, error) {
	type result struct {
		changes       []*Change
		nextToken     string
		newStartToken string
	}

	r, err := retry(c, "ChangesSince", func() (result, error) {
		changes, next, start, err := c.inner.ChangesSince(ctx, token, pageToken)
		return result{changes, next, start}, err
	})

	return r.changes, r.nextToken, r.newStartToken, err
}

func (c *retryingClient) StartPageToken(ctx context.Context) (string, error) {
	return retry(c, "StartPageToken", func() (string, error) { return c.inner.StartPageToken(ctx) })
}
