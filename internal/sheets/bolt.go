package sheets

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var rowsBucket = []byte("rows")

// journalEntry is the stored form of one row.
type journalEntry struct {
	Values   []string  `json:"values"`
	StoredAt time.Time `json:"stored_at"`
}

// BoltAppender journals rows to a local bbolt file, in append order.
type BoltAppender struct {
	db *bolt.DB
}

// NewBoltAppender opens (or creates) the journal at path.
func NewBoltAppender(path string) (*BoltAppender, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rowsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating rows bucket: %w", err)
	}

	return &BoltAppender{db: db}, nil
}

// AppendRow stores values under the next sequence number.
func (b *BoltAppender) AppendRow(ctx context.Context, values []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(rowsBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(journalEntry{Values: values, StoredAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		return bucket.Put(sequenceKey(seq), data)
	})
}

// Rows returns every journaled row in append order.
func (b *BoltAppender) Rows() ([][]string, error) {
	var rows [][]string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(rowsBucket).ForEach(func(_, v []byte) error {
			var e journalEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			rows = append(rows, e.Values)
			return nil
		})
	})
	return rows, err
}

// Close closes the journal file.
func (b *BoltAppender) Close() error {
	return b.db.Close()
}

// sequenceKey is big-endian so byte order equals insertion order.
func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
