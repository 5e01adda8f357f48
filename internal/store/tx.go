package store

import (
	"encoding/json"
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var errReadOnly = errors.New("write in read-only transaction")

// Tx is a store transaction. Rows are JSON encoded.
type Tx struct {
	tx       *bolt.Tx
	writable bool
	change   Change
}

func (t *Tx) bucket(b Bucket) (*bolt.Bucket, error) {
	bk := t.tx.Bucket([]byte(b))
	if bk == nil {
		return nil, fmt.Errorf("bucket %s not initialized", b)
	}

	return bk, nil
}

// Raw returns the encoded row for key, or nil. The slice is only valid
// for the life of the transaction.
func (t *Tx) Raw(b Bucket, key string) []byte {
	bk, err := t.bucket(b)
	if err != nil {
		return nil
	}

	return bk.Get([]byte(key))
}

// Get decodes the row at key into v. It reports false if the row does
// not exist.
func (t *Tx) Get(b Bucket, key string, v any) (bool, error) {
	raw := t.Raw(b, key)
	if raw == nil {
		return false, nil
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decoding %s/%s: %w", b, key, err)
	}

	return true, nil
}

// Put encodes v and stores it at key.
func (t *Tx) Put(b Bucket, key string, v any) error {
	if !t.writable {
		return errReadOnly
	}

	bk, err := t.bucket(b)
	if err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", b, key, err)
	}

	if err := bk.Put([]byte(key), data); err != nil {
		return err
	}

	t.change.add(b, key)

	return nil
}

// Delete removes the row at key. Deleting a missing row is a no-op and
// is not reported as a change.
func (t *Tx) Delete(b Bucket, key string) error {
	if !t.writable {
		return errReadOnly
	}

	bk, err := t.bucket(b)
	if err != nil {
		return err
	}

	if bk.Get([]byte(key)) == nil {
		return nil
	}

	if err := bk.Delete([]byte(key)); err != nil {
		return err
	}

	t.change.add(b, key)

	return nil
}

// ForEach calls fn for every row in b in key order.
func (t *Tx) ForEach(b Bucket, fn func(key string, raw []byte) error) error {
	bk, err := t.bucket(b)
	if err != nil {
		return err
	}

	return bk.ForEach(func(k, v []byte) error {
		return fn(string(k), v)
	})
}

// Count returns the number of rows in b.
func (t *Tx) Count(b Bucket) int {
	bk, err := t.bucket(b)
	if err != nil {
		return 0
	}

	return bk.Stats().KeyN
}

// Clear deletes every row in b.
func (t *Tx) Clear(b Bucket) error {
	if !t.writable {
		return errReadOnly
	}

	var keys []string
	if err := t.ForEach(b, func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	}); err != nil {
		return err
	}

	for _, k := range keys {
		if err := t.Delete(b, k); err != nil {
			return err
		}
	}

	return nil
}

// Decode unmarshals a raw row produced by ForEach or Raw.
func Decode[T any](raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)

	return v, err
}
