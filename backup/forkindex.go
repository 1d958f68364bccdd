package backup

import (
	"encoding/binary"

	bolt "go.etcd.io/bbolt"

	"github.com/aleph-forkalert/forkalert/types"
)

var forkersBucket = []byte("forkers")

// ForkerIndex is an optional persistent secondary index over the forker
// registry, backed by a bolt database rather than the append-only log.
// Nothing in the load contract depends on it — Load alone is sufficient to
// resume correctly — but it lets an operator query "which creators have
// ever forked in this session" without replaying the whole backup file,
// the same role channeldb gives a bolt bucket layered over otherwise
// WAL-like state.
type ForkerIndex struct {
	db *bolt.DB
}

// OpenForkerIndex opens (creating if necessary) a bolt-backed forker index
// at path.
func OpenForkerIndex(path string) (*ForkerIndex, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, ErrWriteFailed(err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(forkersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, ErrWriteFailed(err)
	}
	return &ForkerIndex{db: db}, nil
}

// RecordForker marks creator as a known forker. Safe to call more than
// once for the same creator.
func (idx *ForkerIndex) RecordForker(creator types.NodeIndex) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(forkersBucket)
		var key [2]byte
		binary.BigEndian.PutUint16(key[:], uint16(creator))
		return b.Put(key[:], []byte{1})
	})
}

// IsForker reports whether creator has been recorded.
func (idx *ForkerIndex) IsForker(creator types.NodeIndex) (bool, error) {
	var present bool
	err := idx.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(forkersBucket)
		var key [2]byte
		binary.BigEndian.PutUint16(key[:], uint16(creator))
		present = b.Get(key[:]) != nil
		return nil
	})
	return present, err
}

// Close closes the underlying bolt database.
func (idx *ForkerIndex) Close() error {
	return idx.db.Close()
}
