package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// queryPageSize is used for both the initial tree walk and the change
// feed, per spec.md §6.
const queryPageSize = 1000

// fileFields is the field set requested on every record, per spec.md §6.
const fileFields = "id,name,mimeType,md5Checksum,size,modifiedTime,parents,trashed"

// Client is the Remote Client contract (spec.md §4.1). DownloadContent is
// a necessary addition beyond the named operations in spec.md §4.1: the
// Content Download step (§4.6.3) cannot be expressed without a way to
// stream a record's bytes back, so the contract supplements it the same
// way it supplements the writing half (CreateFile/UpdateContent already
// take a content stream).
type Client interface {
	GetRecord(ctx context.Context, id string) (*FileRecord, error)
	ListChildren(ctx context.Context, parentID, pageToken string) ([]*FileRecord, string, error)
	CreateFile(ctx context.Context, metadata *FileRecord, content io.Reader) (*FileRecord, error)
	UpdateContent(ctx context.Context, id string, content io.Reader) (*FileRecord, error)
	UpdateMetadata(ctx context.Context, id string, patch *FileRecord) (*FileRecord, error)
	DeleteRecord(ctx context.Context, id string) error
	DownloadContent(ctx context.Context, id string) (io.ReadCloser, error)
	ChangesSince(ctx context.Context, token, pageToken string) (changes []*Change, nextPageToken, newStartToken string, err error)
	StartPageToken(ctx context.Context) (string, error)
}

// DriveClient implements Client over google.golang.org/api/drive/v3. The
// caller supplies the *http.Client (already wrapping an
// oauth2.TokenSource) — DriveClient never performs the OAuth exchange
// itself.
type DriveClient struct {
	svc    *drive.Service
	logger *slog.Logger
}

// NewDriveClient builds a DriveClient from an already-authenticated HTTP
// client; the transport is injected rather than constructed internally.
func NewDriveClient(ctx context.Context, httpClient *http.Client, logger *slog.Logger) (*DriveClient, error) {
	svc, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("remote: creating drive service: %w", err)
	}

	return &DriveClient{svc: svc, logger: logger}, nil
}

// GetRecord returns a nil record, nil error when the service reports
// not-found, per spec.md §4.1: "getRecord returns a null record when the
// service reports a not-found condition."
func (c *DriveClient) GetRecord(ctx context.Context, id string) (*FileRecord, error) {
	f, err := c.svc.Files.Get(id).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("remote: get %s: %w", id, wrapTransient(err))
	}

	return toRecord(f), nil
}

// ListChildren lists the non-trashed direct children of parentID, per the
// query contract in spec.md §6.
func (c *DriveClient) ListChildren(ctx context.Context, parentID, pageToken string) ([]*FileRecord, string, error) {
	query := fmt.Sprintf("trashed = false and %q in parents", parentID)

	call := c.svc.Files.List().
		Q(query).
		PageSize(queryPageSize).
		Fields(googleapi.Field("nextPageToken,files(" + fileFields + ")"))

	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	result, err := call.Context(ctx).Do()
	if err != nil {
		return nil, "", fmt.Errorf("remote: list children of %s: %w", parentID, wrapTransient(err))
	}

	records := make([]*FileRecord, len(result.Files))
	for i, f := range result.Files {
		records[i] = toRecord(f)
	}

	return records, result.NextPageToken, nil
}

// CreateFile creates a new record, optionally uploading content.
func (c *DriveClient) CreateFile(ctx context.Context, metadata *FileRecord, content io.Reader) (*FileRecord, error) {
	call := c.svc.Files.Create(fromRecord(metadata)).Fields(googleapi.Field(fileFields))
	if content != nil {
		call = call.Media(content)
	}

	f, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("remote: create %s: %w", metadata.Name, wrapTransient(err))
	}

	return toRecord(f), nil
}

// UpdateContent replaces the content of an existing record.
func (c *DriveClient) UpdateContent(ctx context.Context, id string, content io.Reader) (*FileRecord, error) {
	f, err := c.svc.Files.Update(id, &drive.File{}).Media(content).Fields(googleapi.Field(fileFields)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("remote: update content %s: %w", id, wrapTransient(err))
	}

	return toRecord(f), nil
}

// UpdateMetadata patches name/parents/trashed on an existing record.
func (c *DriveClient) UpdateMetadata(ctx context.Context, id string, patch *FileRecord) (*FileRecord, error) {
	f, err := c.svc.Files.Update(id, fromRecord(patch)).Fields(googleapi.Field(fileFields)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("remote: update metadata %s: %w", id, wrapTransient(err))
	}

	return toRecord(f), nil
}

// DeleteRecord permanently deletes a record. Trashing (the "soft delete"
// the account's permanently-delete flag can choose instead) is expressed
// as UpdateMetadata with Trashed=true, not through this method.
func (c *DriveClient) DeleteRecord(ctx context.Context, id string) error {
	if err := c.svc.Files.Delete(id).Context(ctx).Do(); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}

		return fmt.Errorf("remote: delete %s: %w", id, wrapTransient(err))
	}

	return nil
}

// DownloadContent streams the binary content of a record.
func (c *DriveClient) DownloadContent(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := c.svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("remote: download %s: %w", id, wrapTransient(err))
	}

	return resp.Body, nil
}

// changeFields is the field set requested on every change feed entry.
const changeFields = "nextPageToken,newStartPageToken,changes(fileId,removed,file(" + fileFields + "))"

// ChangesSince drains one page of the incremental change feed starting at
// pageToken (token is the change-list cursor used on the first call of a
// drain; pageToken is the per-page cursor thereafter), per spec.md §6's
// corpus/space/restrictToMyDrive contract.
func (c *DriveClient) ChangesSince(ctx context.Context, token, pageToken string) ([]*Change, string, string, error) {
	cursor := pageToken
	if cursor == "" {
		cursor = token
	}

	result, err := c.svc.Changes.List(cursor).
		PageSize(queryPageSize).
		Spaces("drive").
		RestrictToMyDrive(true).
		Fields(googleapi.Field(changeFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, "", "", fmt.Errorf("remote: changes since %s: %w", token, wrapTransient(err))
	}

	changes := make([]*Change, len(result.Changes))
	for i, ch := range result.Changes {
		changes[i] = &Change{FileID: ch.FileId, Removed: ch.Removed}
		if !ch.Removed && ch.File != nil {
			changes[i].Record = toRecord(ch.File)
		}
	}

	return changes, result.NextPageToken, result.NewStartPageToken, nil
}

// StartPageToken returns a cursor marking "now" in the change feed, used
// to bootstrap ChangeToken before the initial tree walk (spec.md §4.9
// step 4).
func (c *DriveClient) StartPageToken(ctx context.Context) (string, error) {
	result, err := c.svc.Changes.GetStartPageToken().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("remote: start page token: %w", wrapTransient(err))
	}

	return result.StartPageToken, nil
}

// isNotFound reports whether err is a Google API 404 response.
func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound
	}

	return false
}
