// Package journal persists delivered event ids in a local BoltDB file.
// At-least-once outbox delivery means a reclaimed entry can come around
// twice; the journal is what turns that into effectively-once publishing
// from a single consumer instance.
package journal

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Journal records event ids together with their delivery timestamp.
type Journal struct {
	db     *bolt.DB
	bucket []byte
}

// Open initializes the BoltDB file and ensures the bucket exists.
func Open(path string, bucket string) (*Journal, error) {
	if bucket == "" {
		bucket = "delivered"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{
		db:     db,
		bucket: []byte(bucket),
	}, nil
}

// Seen reports whether the event id was already delivered.
func (j *Journal) Seen(eventID string) (bool, error) {
	if j == nil || j.db == nil {
		return false, bolt.ErrDatabaseNotOpen
	}
	var seen bool
	err := j.db.View(func(tx *bolt.Tx) error {
		seen = tx.Bucket(j.bucket).Get([]byte(eventID)) != nil
		return nil
	})
	return seen, err
}

// MarkDelivered records the event id with the current timestamp.
func (j *Journal) MarkDelivered(eventID string) error {
	if j == nil || j.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	stamp := make([]byte, 8)
	binary.BigEndian.PutUint64(stamp, uint64(time.Now().UnixNano()))
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(j.bucket).Put([]byte(eventID), stamp)
	})
}

// Cleanup removes entries delivered before the cutoff, bounding the file
// size. Safe to call periodically.
func (j *Journal) Cleanup(olderThan time.Time) error {
	if j == nil || j.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	cutoff := olderThan.UnixNano()
	return j.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(j.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(v) != 8 {
				continue
			}
			if int64(binary.BigEndian.Uint64(v)) < cutoff {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Size returns the number of journaled ids.
func (j *Journal) Size() (int, error) {
	if j == nil || j.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var count int
	err := j.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(j.bucket).Stats().KeyN
		return nil
	})
	return count, err
}

// Close closes the Bolt database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
