// Package journal keeps an append-only copy of committed events in a local
// bbolt file so stream subscribers can resume from a sequence cursor.
package journal

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"lukechampine.com/blake3"

	"fundchain/core/types"
)

var (
	bucketEvents = []byte("events")

	// ErrCorrupt is returned when a stored entry fails its digest check.
	ErrCorrupt = errors.New("journal: corrupt entry")
)

const digestSize = 32

// Journal stores committed events keyed by big-endian sequence.
type Journal struct {
	db *bolt.DB
}

// Open creates or opens the journal at path.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close releases the bbolt handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) Name() string { return "journal" }

// Publish appends the batch. Sequences already present are overwritten with
// identical content, so replays after a crash are harmless.
func (j *Journal) Publish(_ context.Context, batch []types.CommittedEvent) error {
	if len(batch) == 0 {
		return nil
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketEvents)
		for _, evt := range batch {
			value, err := encode(evt)
			if err != nil {
				return err
			}
			if err := bucket.Put(seqKey(evt.Sequence), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Since returns up to limit events with a sequence greater than after, in
// order. A non-positive limit returns everything.
func (j *Journal) Since(after uint64, limit int) ([]types.CommittedEvent, error) {
	var out []types.CommittedEvent
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Seek(seqKey(after + 1)); k != nil; k, v = c.Next() {
			evt, err := decode(v)
			if err != nil {
				return fmt.Errorf("%w at sequence %d", err, binary.BigEndian.Uint64(k))
			}
			out = append(out, evt)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

// Last returns the highest stored sequence, zero when empty.
func (j *Journal) Last() (uint64, error) {
	var last uint64
	err := j.db.View(func(tx *bolt.Tx) error {
		if k, _ := tx.Bucket(bucketEvents).Cursor().Last(); k != nil {
			last = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	return last, err
}

func seqKey(seq uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], seq)
	return key[:]
}

// encode prefixes the JSON body with its BLAKE3 digest.
func encode(evt types.CommittedEvent) ([]byte, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	digest := blake3.Sum256(body)
	return append(digest[:], body...), nil
}

func decode(value []byte) (types.CommittedEvent, error) {
	var evt types.CommittedEvent
	if len(value) < digestSize {
		return evt, ErrCorrupt
	}
	body := value[digestSize:]
	digest := blake3.Sum256(body)
	if !bytes.Equal(digest[:], value[:digestSize]) {
		return evt, ErrCorrupt
	}
	if err := json.Unmarshal(body, &evt); err != nil {
		return evt, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return evt, nil
}
