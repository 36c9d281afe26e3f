package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.etcd.io/bbolt"
)

// bucketName holds every account's checkpoint record, keyed by
// accountID + "\x00sync" per spec.md §6's {type: "sync", accountId} key.
var bucketName = []byte("sync")

const keySuffix = "\x00sync"

// Store is the Checkpoint Store: a bbolt-backed durable snapshot,
// serialized per spec.md §5 ("while a save is in flight, a second save
// request waits; while a load is in flight, save requests wait").
type Store struct {
	db     *bbolt.DB
	logger *slog.Logger

	mu sync.Mutex
}

// Open opens (creating if absent) the bbolt database at path and ensures
// the checkpoint bucket exists.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: opening %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint: creating bucket: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(accountID string) []byte {
	return []byte(accountID + keySuffix)
}

// Save persists record for accountID. The Store's mutex gives save/load
// the strict serialization spec.md §5 requires — a single account-level
// lock is sufficient for this single-account engine (spec Non-goal:
// multiple simultaneous accounts).
func (s *Store) Save(_ context.Context, accountID string, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := marshal(record)
	if err != nil {
		return fmt.Errorf("checkpoint: encoding record for %s: %w", accountID, err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(key(accountID), data)
	})
	if err != nil {
		return fmt.Errorf("checkpoint: saving record for %s: %w", accountID, err)
	}

	s.logger.Debug("checkpoint saved", slog.String("account_id", accountID))

	return nil
}

// Load returns the persisted record for accountID, or ErrNoCheckpoint if
// none exists.
func (s *Store) Load(_ context.Context, accountID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key(accountID))
		if v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: loading record for %s: %w", accountID, err)
	}

	if data == nil {
		return nil, ErrNoCheckpoint
	}

	record, err := unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: decoding record for %s: %w", accountID, err)
	}

	return record, nil
}

// Erase removes the persisted checkpoint for accountID, per spec.md §6's
// erase() operation. Erasing an absent checkpoint is not an error.
func (s *Store) Erase(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete(key(accountID))
	})
	if err != nil {
		return fmt.Errorf("checkpoint: erasing record for %s: %w", accountID, err)
	}

	return nil
}
