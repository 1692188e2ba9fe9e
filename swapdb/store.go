// Package swapdb implements the bbolt-backed persistence store behind
// swap/alice.Store, per spec.md §6's durability requirement: the daemon
// must resume an in-flight swap after a crash from the last phase it
// reached. Grounded on channeldb/db.go's DB/Open shape (a thin struct
// embedding *bbolt.DB plus a single top-level bucket), using
// go.etcd.io/bbolt rather than channeldb's vendored boltdb/bolt fork.
package swapdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/xmrswap/swapd/common"
	"github.com/xmrswap/swapd/swap/alice"
)

const (
	dbFileName       = "swaps.db"
	dbFilePermission = 0600
)

var swapBucket = []byte("swaps")

// Store is the daemon's on-disk record of every swap it has ever
// driven, keyed by swap id. It satisfies alice.Store so a
// alice.Machine can check in progress after every phase transition.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the swap database rooted at
// dbPath. Mirrors channeldb.Open's create-bucket-if-missing shape.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(dbPath, 0700); err != nil {
		return nil, fmt.Errorf("swapdb: create db dir: %w", err)
	}

	path := filepath.Join(dbPath, dbFileName)
	db, err := bbolt.Open(path, dbFilePermission, nil)
	if err != nil {
		return nil, fmt.Errorf("swapdb: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(swapBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("swapdb: create swap bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists sw under its swap id, overwriting any prior record.
// Called by alice.Machine after every phase transition; also usable
// directly for the initial PhaseStarted write.
func (s *Store) Save(_ context.Context, sw *alice.Swap) error {
	data, err := sw.Encode()
	if err != nil {
		return fmt.Errorf("swapdb: encode swap %s: %w", sw.ID, err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(swapBucket)
		return bucket.Put(sw.ID.Bytes(), data)
	})
	if err != nil {
		return fmt.Errorf("swapdb: save swap %s: %w", sw.ID, err)
	}

	log.Debugf("saved swap_id=%s phase=%s", sw.ID, sw.Phase)
	return nil
}

// Get loads a single swap by id.
func (s *Store) Get(id common.SwapID) (*alice.Swap, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(swapBucket)
		v := bucket.Get(id.Bytes())
		if v == nil {
			return fmt.Errorf("swapdb: no swap with id %s", id)
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return alice.Decode(data)
}

// ScanSwaps returns every swap currently recorded in the store, for
// the daemon's startup pass that resumes any non-terminal swap left
// over from before a crash or restart.
func (s *Store) ScanSwaps() ([]*alice.Swap, error) {
	var swaps []*alice.Swap
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(swapBucket)
		return bucket.ForEach(func(k, v []byte) error {
			sw, err := alice.Decode(v)
			if err != nil {
				return fmt.Errorf("swapdb: decode swap %x: %w", k, err)
			}
			swaps = append(swaps, sw)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return swaps, nil
}

// PendingSwaps returns every swap whose phase is not yet terminal, the
// subset a daemon restart needs to hand back to alice.Machine.Run.
func (s *Store) PendingSwaps() ([]*alice.Swap, error) {
	all, err := s.ScanSwaps()
	if err != nil {
		return nil, err
	}

	pending := all[:0]
	for _, sw := range all {
		if !sw.Phase.IsTerminal() {
			pending = append(pending, sw)
		}
	}
	return pending, nil
}

var _ alice.Store = (*Store)(nil)
