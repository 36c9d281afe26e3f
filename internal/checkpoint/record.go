// Package checkpoint implements the Checkpoint Store: a bbolt-backed
// durable snapshot of sync state, keyed by account id (spec.md §6).
package checkpoint

import (
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/tonimelisma/drivesync/internal/remote"
)

// ErrNoCheckpoint is returned by Load when no checkpoint exists yet for
// the account (first run, or after Erase).
var ErrNoCheckpoint = errors.New("checkpoint: no checkpoint for account")

// PendingChange mirrors syncengine.PendingChange without importing that
// package, avoiding an import cycle (syncengine imports checkpoint, not
// the other way around).
type PendingChange struct {
	FileID  string             `json:"fileId"`
	Record  *remote.FileRecord `json:"record,omitempty"`
	Removed bool               `json:"removed"`
}

// Record is the persisted checkpoint, one per account, per spec.md §6:
// "changeToken, fileInfo, synced, rootId, changesToExecute, onLocalDrive".
type Record struct {
	ChangeToken      string                        `json:"changeToken"`
	FileInfo         map[string]*remote.FileRecord `json:"fileInfo"`
	Synced           bool                          `json:"synced"`
	RootID           string                        `json:"rootId"`
	ChangesToExecute []PendingChange               `json:"changesToExecute"`
	// OnLocalDrive's keys are base64-encoded absolute paths. bbolt (and
	// the JSON it wraps) are fine with arbitrary bytes, but the source
	// format this checkpoint is compatible with disallows certain path
	// characters in keys, so the encoding is kept per spec.md §6.
	OnLocalDrive map[string]bool `json:"onLocalDrive"`
}

// EncodePath base64-encodes an absolute path for use as an
// OnLocalDrive key.
func EncodePath(path string) string {
	return base64.StdEncoding.EncodeToString([]byte(path))
}

// DecodePath reverses EncodePath.
func DecodePath(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}

	return string(raw), nil
}

// marshal/unmarshal are thin wrappers kept so the bbolt-facing store
// code never touches encoding/json directly.
func marshal(r *Record) ([]byte, error) { return json.Marshal(r) }

func unmarshal(data []byte) (*Record, error) {
	var r Record

	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}

	return &r, nil
}
