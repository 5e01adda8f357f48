package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/alexjbarnes/chat-sync/internal/api"
	"github.com/alexjbarnes/chat-sync/internal/models"
	"github.com/alexjbarnes/chat-sync/internal/observer"
	"github.com/alexjbarnes/chat-sync/internal/store"
)

// DefaultReactionPageSize is the page size used when none is given.
const DefaultReactionPageSize = 25

// ReactionList is a live, paged list of a message's reactions, newest
// first.
type ReactionList struct {
	client    *Client
	messageID string
	pageSize  int
	observer  *observer.ListObserver[models.Reaction, models.Reaction]

	mu      sync.Mutex
	loaded  int
	hasMore bool
}

// ReactionList creates a live list for messageID.
func (c *Client) ReactionList(messageID string, pageSize int, onChange func([]observer.ListChange[models.Reaction])) (*ReactionList, error) {
	if pageSize <= 0 {
		pageSize = DefaultReactionPageSize
	}

	l := &ReactionList{client: c, messageID: messageID, pageSize: pageSize, hasMore: true}

	l.observer = observer.NewList(c.store, observer.ListOptions[models.Reaction, models.Reaction]{
		Query: observer.Query[models.Reaction]{
			Bucket: store.BucketReactions,
			Filter: func(r models.Reaction) bool { return r.MessageID == messageID },
			Less: func(a, b models.Reaction) bool {
				if !a.CreatedAt.Equal(b.CreatedAt) {
					return a.CreatedAt.After(b.CreatedAt)
				}

				return a.Key() < b.Key()
			},
		},
		Key:      func(r models.Reaction) string { return r.Key() },
		Create:   identity[models.Reaction],
		OnChange: onChange,
		Logger:   c.logger,
	})

	if err := l.observer.Start(); err != nil {
		return nil, fmt.Errorf("starting reaction list: %w", err)
	}

	return l, nil
}

// Items returns the reactions currently stored.
func (l *ReactionList) Items() []models.Reaction {
	return l.observer.Items()
}

// HasMore reports whether the last page was full.
func (l *ReactionList) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.hasMore
}

// Get loads the first page and resets the list to it: stored reactions
// the server no longer returns are removed. Reactions still waiting to
// be sent are kept.
func (l *ReactionList) Get(ctx context.Context) error {
	page, err := l.fetch(ctx, 0)
	if err != nil {
		return err
	}

	err = l.client.store.Write(func(tx *store.Tx) error {
		existing, err := tx.Reactions(l.messageID)
		if err != nil {
			return err
		}

		for _, r := range existing {
			if r.LocalState != models.LocalStateNone {
				continue
			}

			if err := tx.DeleteReaction(r.Key()); err != nil {
				return err
			}
		}

		return saveReactions(tx, page)
	})
	if err != nil {
		return fmt.Errorf("resetting reactions: %w", err)
	}

	l.mu.Lock()
	l.loaded = len(page)
	l.hasMore = len(page) == l.pageSize
	l.mu.Unlock()

	return nil
}

// LoadMore appends the next page.
func (l *ReactionList) LoadMore(ctx context.Context) error {
	l.mu.Lock()
	offset := l.loaded
	l.mu.Unlock()

	page, err := l.fetch(ctx, offset)
	if err != nil {
		return err
	}

	if err := l.client.store.Write(func(tx *store.Tx) error { return saveReactions(tx, page) }); err != nil {
		return fmt.Errorf("saving reactions: %w", err)
	}

	l.mu.Lock()
	l.loaded += len(page)
	l.hasMore = len(page) == l.pageSize
	l.mu.Unlock()

	return nil
}

func (l *ReactionList) fetch(ctx context.Context, offset int) ([]models.Reaction, error) {
	var resp api.ReactionsResponse
	if err := l.client.api.Do(ctx, api.Reactions(l.messageID, l.pageSize, offset), &resp); err != nil {
		return nil, fmt.Errorf("loading reactions: %w", err)
	}

	return resp.Reactions, nil
}

func saveReactions(tx *store.Tx, rs []models.Reaction) error {
	for _, r := range rs {
		r.LocalState = models.LocalStateNone
		if err := tx.SaveReaction(r); err != nil {
			return err
		}
	}

	return nil
}

// Close stops observing.
func (l *ReactionList) Close() {
	l.observer.Stop()
}
