package syncengine

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // test fixture checksum, not a security boundary
	"encoding/hex"
	"io"

	"github.com/tonimelisma/drivesync/internal/remote"
)

func md5Hex(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // test fixture checksum, not a security boundary
	return hex.EncodeToString(sum[:])
}

// fakeRemoteClient is an in-memory remote.Client for tests, matching the
// teacher's fully-offline unit test style: fakes implement the narrow
// interface the production code depends on instead of hitting a real
// network.
type fakeRemoteClient struct {
	records map[string]*remote.FileRecord
	content map[string][]byte
	// changes queued for ChangesSince, drained in order.
	changes []*remote.Change
}

func newFakeRemoteClient() *fakeRemoteClient {
	return &fakeRemoteClient{
		records: make(map[string]*remote.FileRecord),
		content: make(map[string][]byte),
	}
}

func (f *fakeRemoteClient) put(r *remote.FileRecord) { f.records[r.ID] = r }

func (f *fakeRemoteClient) putContent(id string, data []byte) { f.content[id] = data }

func (f *fakeRemoteClient) DownloadContent(_ context.Context, id string) (io.ReadCloser, error) {
	data, ok := f.content[id]
	if !ok {
		return nil, remote.ErrNotFound
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeRemoteClient) GetRecord(_ context.Context, id string) (*remote.FileRecord, error) {
	return f.records[id], nil
}

func (f *fakeRemoteClient) ListChildren(_ context.Context, parentID, _ string) ([]*remote.FileRecord, string, error) {
	var out []*remote.FileRecord

	for _, r := range f.records {
		for _, p := range r.Parents {
			if p == parentID {
				out = append(out, r)
				break
			}
		}
	}

	return out, "", nil
}

func (f *fakeRemoteClient) CreateFile(_ context.Context, meta *remote.FileRecord, content io.Reader) (*remote.FileRecord, error) {
	rec := *meta
	if rec.ID == "" {
		rec.ID = "new-" + rec.Name
	}

	if content != nil {
		data, err := io.ReadAll(content)
		if err != nil {
			return nil, err
		}

		f.content[rec.ID] = data
		rec.MD5Checksum = md5Hex(data)
		size := int64(len(data))
		rec.Size = &size
	}

	f.records[rec.ID] = &rec

	return &rec, nil
}

func (f *fakeRemoteClient) UpdateContent(_ context.Context, id string, content io.Reader) (*remote.FileRecord, error) {
	existing, ok := f.records[id]
	if !ok {
		return nil, remote.ErrNotFound
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}

	f.content[id] = data
	sum := md5Hex(data)
	size := int64(len(data))

	updated := *existing
	updated.MD5Checksum = sum
	updated.Size = &size
	f.records[id] = &updated

	return &updated, nil
}

func (f *fakeRemoteClient) UpdateMetadata(_ context.Context, id string, patch *remote.FileRecord) (*remote.FileRecord, error) {
	existing, ok := f.records[id]
	if !ok {
		return nil, remote.ErrNotFound
	}

	updated := *existing
	if patch.Name != "" {
		updated.Name = patch.Name
	}

	if patch.Parents != nil {
		updated.Parents = patch.Parents
	}

	updated.Trashed = patch.Trashed
	f.records[id] = &updated

	return &updated, nil
}

func (f *fakeRemoteClient) DeleteRecord(_ context.Context, id string) error {
	delete(f.records, id)
	return nil
}

func (f *fakeRemoteClient) ChangesSince(context.Context, string, string) ([]*remote.Change, string, string, error) {
	out := f.changes
	f.changes = nil

	return out, "", "", nil
}

func (f *fakeRemoteClient) StartPageToken(context.Context) (string, error) {
	return "start-token", nil
}
