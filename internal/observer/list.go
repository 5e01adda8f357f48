// Package observer turns store queries into live, diffed lists of domain
// objects. Each committed store transaction that changes a query's
// result produces exactly one changeset.
package observer

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/alexjbarnes/chat-sync/internal/logging"
	"github.com/alexjbarnes/chat-sync/internal/store"
)

// Query selects and orders rows of type R from one bucket.
type Query[R any] struct {
	Bucket store.Bucket
	// Filter keeps rows for which it returns true. Nil keeps all rows.
	Filter func(R) bool
	// Less orders rows. Nil keeps key order.
	Less func(a, b R) bool
}

func (q Query[R]) relevant(c store.Change) bool {
	return c.Touches(q.Bucket)
}

// ListOptions configures a ListObserver.
type ListOptions[R, T any] struct {
	Query Query[R]
	// Key returns the row's stable identity.
	Key func(R) string
	// Create builds the domain object for a row. It is only called for
	// new rows and rows whose stored bytes changed.
	Create func(R) (T, error)
	// OnChange receives every non-empty changeset.
	OnChange func([]ListChange[T])
	Logger   *slog.Logger
}

type cached[T any] struct {
	raw  []byte
	item T
}

type row[R any] struct {
	key string
	raw []byte
	val R
}

// ListObserver keeps an ordered list of items in step with the store.
type ListObserver[R, T any] struct {
	store  *store.Store
	opts   ListOptions[R, T]
	logger *slog.Logger

	mu     sync.RWMutex
	ids    []string
	byID   map[string]cached[T]
	cancel func()
}

// NewList creates an observer. Call Start to load the initial snapshot.
func NewList[R, T any](s *store.Store, opts ListOptions[R, T]) *ListObserver[R, T] {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &ListObserver[R, T]{
		store:  s,
		opts:   opts,
		logger: logger,
		byID:   make(map[string]cached[T]),
	}
}

// Start loads the current result and begins observing commits. The
// initial load does not produce a changeset.
func (o *ListObserver[R, T]) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		return nil
	}

	// Subscribe before loading. A commit that lands during the load
	// blocks in onCommit until Start returns, then diffs against it.
	o.cancel = o.store.Subscribe(o.onCommit)

	ids, byID, _, err := o.compute(nil, nil)
	if err != nil {
		o.cancel()
		o.cancel = nil

		return err
	}

	o.ids = ids
	o.byID = byID

	return nil
}

// Stop ends observation. Items keeps returning the last snapshot.
func (o *ListObserver[R, T]) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Items returns the current ordered items.
func (o *ListObserver[R, T]) Items() []T {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]T, len(o.ids))
	for i, id := range o.ids {
		out[i] = o.byID[id].item
	}

	return out
}

func (o *ListObserver[R, T]) onCommit(c store.Change) {
	if !o.opts.Query.relevant(c) {
		return
	}

	o.mu.Lock()

	if o.cancel == nil {
		o.mu.Unlock()
		return
	}

	ids, byID, changes, err := o.compute(o.ids, o.byID)
	if err != nil {
		o.mu.Unlock()
		o.logger.Warn("observer refresh failed",
			slog.String("bucket", string(o.opts.Query.Bucket)),
			slog.String("error", err.Error()),
		)

		return
	}

	o.ids = ids
	o.byID = byID
	o.mu.Unlock()

	if len(changes) > 0 && o.opts.OnChange != nil {
		o.opts.OnChange(changes)
	}
}

// compute reads the query result and diffs it against the previous
// snapshot, reusing items whose stored bytes are unchanged.
func (o *ListObserver[R, T]) compute(prevIDs []string, prev map[string]cached[T]) ([]string, map[string]cached[T], []ListChange[T], error) {
	var rows []row[R]

	q := o.opts.Query

	err := o.store.View(func(tx *store.Tx) error {
		return tx.ForEach(q.Bucket, func(_ string, raw []byte) error {
			val, err := store.Decode[R](raw)
			if err != nil {
				return err
			}

			if q.Filter != nil && !q.Filter(val) {
				return nil
			}

			rows = append(rows, row[R]{key: o.opts.Key(val), raw: bytes.Clone(raw), val: val})

			return nil
		})
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading %s: %w", q.Bucket, err)
	}

	if q.Less != nil {
		sort.SliceStable(rows, func(i, j int) bool {
			return q.Less(rows[i].val, rows[j].val)
		})
	}

	ids := make([]string, len(rows))
	byID := make(map[string]cached[T], len(rows))
	updated := make(map[string]struct{})

	for i, r := range rows {
		ids[i] = r.key

		if c, ok := prev[r.key]; ok && bytes.Equal(c.raw, r.raw) {
			byID[r.key] = c
			continue
		}

		item, err := o.opts.Create(r.val)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("creating item %s: %w", r.key, err)
		}

		byID[r.key] = cached[T]{raw: r.raw, item: item}

		if _, ok := prev[r.key]; ok {
			updated[r.key] = struct{}{}
		}
	}

	if prev == nil {
		return ids, byID, nil, nil
	}

	return ids, byID, changeset(prevIDs, ids, prev, byID, updated), nil
}

func changeset[T any](oldIDs, newIDs []string, prev, next map[string]cached[T], updated map[string]struct{}) []ListChange[T] {
	removed, inserted := diffIDs(oldIDs, newIDs)

	oldIndex := make(map[string]int, len(oldIDs))
	for i, id := range oldIDs {
		oldIndex[id] = i
	}

	var changes []ListChange[T]

	for i, id := range oldIDs {
		if _, gone := removed[id]; !gone {
			continue
		}

		if _, back := inserted[id]; back {
			continue
		}

		changes = append(changes, ListChange[T]{Kind: Remove, Item: prev[id].item, Index: i})
	}

	for i, id := range newIDs {
		_, ins := inserted[id]
		_, rem := removed[id]

		switch {
		case ins && rem:
			changes = append(changes, ListChange[T]{Kind: Move, Item: next[id].item, Index: i, From: oldIndex[id]})
		case ins:
			changes = append(changes, ListChange[T]{Kind: Insert, Item: next[id].item, Index: i})
		default:
			if _, ok := updated[id]; ok {
				changes = append(changes, ListChange[T]{Kind: Update, Item: next[id].item, Index: i})
			}
		}
	}

	return changes
}
