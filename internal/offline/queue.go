// Package offline persists mutations that could not reach the server and
// replays them once the connection is back.
package offline

//go:generate mockgen -destination=mock_doer_test.go -package=offline github.com/alexjbarnes/chat-sync/internal/api Doer

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alexjbarnes/chat-sync/internal/api"
	errs "github.com/alexjbarnes/chat-sync/internal/errors"
	"github.com/alexjbarnes/chat-sync/internal/logging"
	"github.com/alexjbarnes/chat-sync/internal/models"
	"github.com/alexjbarnes/chat-sync/internal/store"
	"github.com/oklog/ulid/v2"
)

// DefaultMaxAge is how long a queued request stays eligible for replay.
const DefaultMaxAge = 12 * time.Hour

// Outcomes reported to Options.OnResult.
const (
	OutcomeQueued  = "queued"
	OutcomeSent    = "sent"
	OutcomeKept    = "kept"
	OutcomeDropped = "dropped"
	OutcomeStale   = "stale"
)

// queueable lists the endpoint kinds that may be persisted.
var queueable = map[api.Kind]bool{
	api.KindSendMessage:    true,
	api.KindEditMessage:    true,
	api.KindDeleteMessage:  true,
	api.KindAddReaction:    true,
	api.KindDeleteReaction: true,
}

// Queueable reports whether requests of kind can be queued.
func Queueable(kind api.Kind) bool {
	return queueable[kind]
}

// queuedRequest is the persisted row.
type queuedRequest struct {
	Endpoint  api.Endpoint `json:"endpoint"`
	CreatedAt time.Time    `json:"created_at"`
}

// MutationResponse covers the bodies returned by every queueable kind.
type MutationResponse struct {
	Message  *models.Message  `json:"message"`
	Reaction *models.Reaction `json:"reaction"`
}

// Options configures a Queue.
type Options struct {
	Store *store.Store
	// Requests sends replayed requests. It must bypass recovery mode.
	Requests api.Doer
	MaxAge   time.Duration
	Logger   *slog.Logger
	OnResult func(kind api.Kind, outcome string)
}

// Queue is the offline request queue. Rows are keyed by ULID so key
// order is creation order.
type Queue struct {
	store    *store.Store
	requests api.Doer
	maxAge   time.Duration
	logger   *slog.Logger
	onResult func(api.Kind, string)

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy

	runMu sync.Mutex
}

// New creates a Queue.
func New(opts Options) *Queue {
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Queue{
		store:    opts.Store,
		requests: opts.Requests,
		maxAge:   maxAge,
		logger:   logger,
		onResult: opts.OnResult,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

func (q *Queue) report(kind api.Kind, outcome string) {
	if q.onResult != nil {
		q.onResult(kind, outcome)
	}
}

func (q *Queue) newID(now time.Time) (string, error) {
	q.idMu.Lock()
	defer q.idMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(now), q.entropy)
	if err != nil {
		return "", fmt.Errorf("generating queue id: %w", err)
	}

	return id.String(), nil
}

// Queue persists ep for later replay. Kinds outside the allow-list are
// ignored.
func (q *Queue) Queue(ctx context.Context, ep api.Endpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !Queueable(ep.Kind) {
		q.logger.Debug("not queueing request", slog.String("kind", string(ep.Kind)))
		return nil
	}

	now := time.Now()

	id, err := q.newID(now)
	if err != nil {
		return err
	}

	err = q.store.Write(func(tx *store.Tx) error {
		return tx.Put(store.BucketQueue, id, queuedRequest{Endpoint: ep, CreatedAt: now.UTC()})
	})
	if err != nil {
		return fmt.Errorf("queueing %s: %w", ep.Kind, err)
	}

	q.logger.Info("request queued",
		slog.String("id", id),
		slog.String("kind", string(ep.Kind)),
	)
	q.report(ep.Kind, OutcomeQueued)

	return nil
}

// Len returns the number of queued requests.
func (q *Queue) Len() int {
	n := 0
	_ = q.store.View(func(tx *store.Tx) error {
		n = tx.Count(store.BucketQueue)
		return nil
	})

	return n
}

type entry struct {
	id  string
	req queuedRequest
}

func (q *Queue) load() ([]entry, error) {
	var out []entry

	err := q.store.View(func(tx *store.Tx) error {
		return tx.ForEach(store.BucketQueue, func(key string, raw []byte) error {
			req, err := store.Decode[queuedRequest](raw)
			if err != nil {
				q.logger.Warn("dropping undecodable queued request",
					slog.String("id", key),
					slog.String("error", err.Error()),
				)

				req = queuedRequest{}
			}

			out = append(out, entry{id: key, req: req})

			return nil
		})
	})

	return out, err
}

// RunQueuedRequests replays queued requests one at a time in creation
// order. Stale requests are dropped without a network call. A request
// that fails on connectivity stays queued. Any other failure drops it and
// leaves the optimistic local state untouched.
func (q *Queue) RunQueuedRequests(ctx context.Context) error {
	q.runMu.Lock()
	defer q.runMu.Unlock()

	entries, err := q.load()
	if err != nil {
		return fmt.Errorf("loading queued requests: %w", err)
	}

	if len(entries) == 0 {
		return nil
	}

	q.logger.Info("replaying queued requests", slog.Int("count", len(entries)))

	now := time.Now()

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		ep := e.req.Endpoint

		if ep.Kind == "" {
			if err := q.finish(e.id, nil); err != nil {
				return err
			}

			continue
		}

		if now.Sub(e.req.CreatedAt) > q.maxAge {
			q.logger.Info("dropping stale queued request",
				slog.String("id", e.id),
				slog.String("kind", string(ep.Kind)),
				slog.Duration("age", now.Sub(e.req.CreatedAt)),
			)

			if err := q.finish(e.id, nil); err != nil {
				return err
			}

			q.report(ep.Kind, OutcomeStale)

			continue
		}

		var resp MutationResponse

		err := q.requests.Do(ctx, ep, &resp)

		switch {
		case err == nil:
			if err := q.finish(e.id, func(tx *store.Tx) error { return Reconcile(tx, ep, resp) }); err != nil {
				return err
			}

			q.report(ep.Kind, OutcomeSent)

		case errs.IsConnectivity(err):
			q.logger.Warn("queued request failed on connectivity, keeping",
				slog.String("id", e.id),
				slog.String("kind", string(ep.Kind)),
				slog.String("error", err.Error()),
			)
			q.report(ep.Kind, OutcomeKept)

		case ctx.Err() != nil:
			return ctx.Err()

		default:
			q.logger.Warn("queued request rejected, dropping",
				slog.String("id", e.id),
				slog.String("kind", string(ep.Kind)),
				slog.String("error", err.Error()),
			)

			if err := q.finish(e.id, nil); err != nil {
				return err
			}

			q.report(ep.Kind, OutcomeDropped)
		}
	}

	return nil
}

// finish deletes a queued row and applies fn in the same transaction.
func (q *Queue) finish(id string, fn func(*store.Tx) error) error {
	return q.store.Write(func(tx *store.Tx) error {
		if err := tx.Delete(store.BucketQueue, id); err != nil {
			return err
		}

		if fn == nil {
			return nil
		}

		return fn(tx)
	})
}

// Reconcile applies the server's answer to a mutation. It is used for
// replayed requests and for mutations sent while online.
func Reconcile(tx *store.Tx, ep api.Endpoint, resp MutationResponse) error {
	if resp.Message != nil {
		m := *resp.Message
		if m.CID == "" {
			m.CID = ep.CID
		}

		m.LocalState = models.LocalStateNone
		if err := tx.SaveMessage(m); err != nil {
			return err
		}
	}

	switch ep.Kind {
	case api.KindSendMessage, api.KindEditMessage:
		if resp.Message == nil {
			return setMessageState(tx, ep.MessageID, models.LocalStateNone)
		}

	case api.KindDeleteMessage:
		if resp.Message == nil || ep.Query["hard"] == "true" {
			return tx.DeleteMessage(ep.MessageID)
		}

	case api.KindAddReaction:
		if resp.Reaction != nil {
			r := *resp.Reaction
			r.LocalState = models.LocalStateNone

			return tx.SaveReaction(r)
		}

		return setReactionState(tx, ep, models.LocalStateNone)
	}

	return nil
}

func setMessageState(tx *store.Tx, id string, state models.LocalState) error {
	m, err := tx.Message(id)
	if err != nil || m == nil {
		return err
	}

	if m.LocalState == state {
		return nil
	}

	m.LocalState = state

	return tx.SaveMessage(*m)
}

func pendingReactions(tx *store.Tx, ep api.Endpoint) ([]models.Reaction, error) {
	all, err := tx.Reactions(ep.MessageID)
	if err != nil {
		return nil, err
	}

	var out []models.Reaction

	for _, r := range all {
		if r.Type == ep.ReactionType && r.LocalState != models.LocalStateNone {
			out = append(out, r)
		}
	}

	return out, nil
}

func setReactionState(tx *store.Tx, ep api.Endpoint, state models.LocalState) error {
	rs, err := pendingReactions(tx, ep)
	if err != nil {
		return err
	}

	for _, r := range rs {
		r.LocalState = state
		if err := tx.SaveReaction(r); err != nil {
			return err
		}
	}

	return nil
}

// Peek decodes the queued endpoints in replay order, for diagnostics.
func (q *Queue) Peek() ([]api.Endpoint, error) {
	entries, err := q.load()
	if err != nil {
		return nil, err
	}

	out := make([]api.Endpoint, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.req.Endpoint)
	}

	return out, nil
}
