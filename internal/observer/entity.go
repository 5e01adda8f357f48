package observer

import (
	"bytes"
	"log/slog"
	"sync"

	"github.com/alexjbarnes/chat-sync/internal/logging"
	"github.com/alexjbarnes/chat-sync/internal/store"
)

// EntityChange is the change to a single observed row. Item is the zero
// value on Remove.
type EntityChange[T any] struct {
	Kind ChangeKind
	Item T
}

// EntityOptions configures an EntityObserver.
type EntityOptions[R, T any] struct {
	Bucket   store.Bucket
	Key      string
	Create   func(R) (T, error)
	OnChange func(EntityChange[T])
	Logger   *slog.Logger
}

// EntityObserver follows one row by key.
type EntityObserver[R, T any] struct {
	store  *store.Store
	opts   EntityOptions[R, T]
	logger *slog.Logger

	mu     sync.RWMutex
	raw    []byte
	item   T
	exists bool
	cancel func()
}

// NewEntity creates an observer for a single row.
func NewEntity[R, T any](s *store.Store, opts EntityOptions[R, T]) *EntityObserver[R, T] {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &EntityObserver[R, T]{store: s, opts: opts, logger: logger}
}

// Start loads the row and begins observing.
func (o *EntityObserver[R, T]) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		return nil
	}

	// Subscribed first so no commit slips between load and subscribe.
	cancel := o.store.Subscribe(o.onCommit)

	raw, err := o.read()
	if err != nil {
		cancel()
		return err
	}

	if raw != nil {
		item, err := o.create(raw)
		if err != nil {
			cancel()
			return err
		}

		o.raw, o.item, o.exists = raw, item, true
	}

	o.cancel = cancel

	return nil
}

// Stop ends observation.
func (o *EntityObserver[R, T]) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Item returns the current item and whether the row exists.
func (o *EntityObserver[R, T]) Item() (T, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.item, o.exists
}

func (o *EntityObserver[R, T]) read() ([]byte, error) {
	var raw []byte

	err := o.store.View(func(tx *store.Tx) error {
		if v := tx.Raw(o.opts.Bucket, o.opts.Key); v != nil {
			raw = bytes.Clone(v)
		}

		return nil
	})

	return raw, err
}

func (o *EntityObserver[R, T]) create(raw []byte) (T, error) {
	val, err := store.Decode[R](raw)
	if err != nil {
		var zero T
		return zero, err
	}

	return o.opts.Create(val)
}

func (o *EntityObserver[R, T]) onCommit(c store.Change) {
	if _, ok := c[o.opts.Bucket][o.opts.Key]; !ok {
		return
	}

	o.mu.Lock()

	if o.cancel == nil {
		o.mu.Unlock()
		return
	}

	raw, err := o.read()
	if err != nil {
		o.mu.Unlock()
		o.logger.Warn("entity observer refresh failed",
			slog.String("key", o.opts.Key),
			slog.String("error", err.Error()),
		)

		return
	}

	var change EntityChange[T]

	switch {
	case raw == nil && !o.exists:
		o.mu.Unlock()
		return
	case raw == nil:
		var zero T
		o.raw, o.item, o.exists = nil, zero, false
		change = EntityChange[T]{Kind: Remove}
	case o.exists && bytes.Equal(raw, o.raw):
		o.mu.Unlock()
		return
	default:
		item, err := o.create(raw)
		if err != nil {
			o.mu.Unlock()
			o.logger.Warn("entity observer create failed",
				slog.String("key", o.opts.Key),
				slog.String("error", err.Error()),
			)

			return
		}

		kind := Update
		if !o.exists {
			kind = Insert
		}

		o.raw, o.item, o.exists = raw, item, true
		change = EntityChange[T]{Kind: kind, Item: item}
	}

	o.mu.Unlock()

	if o.opts.OnChange != nil {
		o.opts.OnChange(change)
	}
}
