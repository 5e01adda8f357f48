// Package store persists the local chat mirror in a bbolt database and
// tells subscribers which rows each committed transaction touched.
package store

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// storeDirPerm is the permission mode for the store directory.
	storeDirPerm = fs.FileMode(0o700)

	// storeFilePerm is the permission mode for the database file.
	storeFilePerm = fs.FileMode(0o600)

	// storeOpenTimeout is the maximum time to wait for the bolt database lock.
	storeOpenTimeout = 5 * time.Second
)

// Bucket names a table of rows.
type Bucket string

const (
	BucketMeta      Bucket = "meta"
	BucketChannels  Bucket = "channels"
	BucketMessages  Bucket = "messages"
	BucketReactions Bucket = "reactions"
	BucketMembers   Bucket = "members"
	BucketReminders Bucket = "reminders"
	BucketDrafts    Bucket = "drafts"
	BucketQueue     Bucket = "queued_requests"
)

// AllBuckets lists every bucket created on open.
var AllBuckets = []Bucket{
	BucketMeta,
	BucketChannels,
	BucketMessages,
	BucketReactions,
	BucketMembers,
	BucketReminders,
	BucketDrafts,
	BucketQueue,
}

// Change lists the keys a committed transaction wrote or deleted, per
// bucket.
type Change map[Bucket]map[string]struct{}

// Touches reports whether the change wrote to b.
func (c Change) Touches(b Bucket) bool {
	return len(c[b]) > 0
}

// Keys returns the touched keys in b.
func (c Change) Keys(b Bucket) []string {
	out := make([]string, 0, len(c[b]))
	for k := range c[b] {
		out = append(out, k)
	}

	return out
}

func (c Change) add(b Bucket, key string) {
	keys, ok := c[b]
	if !ok {
		keys = make(map[string]struct{})
		c[b] = keys
	}

	keys[key] = struct{}{}
}

// Store wraps a bbolt database holding the local chat mirror.
//
// Writes go through Write, which commits one bbolt transaction and then
// delivers exactly one Change to every subscriber, in commit order.
// Subscribers run on the writing goroutine while the commit lock is held,
// so they may read the store but must not write to it synchronously.
type Store struct {
	db        *bolt.DB
	path      string
	ephemeral bool

	commitMu sync.Mutex

	subsMu sync.RWMutex
	subs   map[uint64]func(Change)
	nextID uint64
}

// Open opens the store at path, creating it and its buckets if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), storeDirPerm); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := bolt.Open(path, storeFilePerm, &bolt.Options{Timeout: storeOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range AllBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing store db: %w", err)
	}

	return &Store{db: db, path: path, subs: make(map[uint64]func(Change))}, nil
}

// OpenEphemeral opens a store in a temporary file that is removed on
// Close. Used when local storage is disabled: the runtime still needs
// somewhere to hold live state, but nothing outlives the process.
func OpenEphemeral() (*Store, error) {
	dir, err := os.MkdirTemp("", "chat-sync-*")
	if err != nil {
		return nil, fmt.Errorf("creating ephemeral store directory: %w", err)
	}

	s, err := Open(filepath.Join(dir, "mirror.db"))
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	s.ephemeral = true

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.ephemeral {
		os.RemoveAll(filepath.Dir(s.path))
	}

	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// View runs fn in a read-only transaction.
func (s *Store) View(fn func(*Tx) error) error {
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
}

// Write runs fn in a read-write transaction. If fn returns nil and the
// transaction commits, subscribers receive the keys fn touched. A
// transaction that touched nothing produces no notification.
func (s *Store) Write(fn func(*Tx) error) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	var change Change

	err := s.db.Update(func(btx *bolt.Tx) error {
		tx := &Tx{tx: btx, writable: true, change: make(Change)}
		if err := fn(tx); err != nil {
			return err
		}

		change = tx.change

		return nil
	})
	if err != nil {
		return err
	}

	if len(change) == 0 {
		return nil
	}

	s.subsMu.RLock()
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.RUnlock()

	for _, fn := range subs {
		fn(change)
	}

	return nil
}

// Subscribe registers fn for every committed change. The returned
// function unregisters it.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}
