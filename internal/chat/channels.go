package chat

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/alexjbarnes/chat-sync/internal/api"
	errs "github.com/alexjbarnes/chat-sync/internal/errors"
	"github.com/alexjbarnes/chat-sync/internal/models"
	"github.com/alexjbarnes/chat-sync/internal/observer"
	"github.com/alexjbarnes/chat-sync/internal/store"
)

// DefaultMessageLimit is how many messages a channel watch loads.
const DefaultMessageLimit = 25

func savePayloads(tx *store.Tx, payloads []models.ChannelPayload) error {
	for _, p := range payloads {
		if err := tx.SaveChannel(p.Channel); err != nil {
			return err
		}

		for _, m := range p.Messages {
			if m.CID == "" {
				m.CID = p.Channel.CID
			}

			m.LocalState = models.LocalStateNone
			if err := tx.SaveMessage(m); err != nil {
				return err
			}
		}

		for _, m := range p.Members {
			if m.CID == "" {
				m.CID = p.Channel.CID
			}

			if err := tx.SaveMember(m); err != nil {
				return err
			}
		}
	}

	return nil
}

// QueryChannels runs q, stores the returned channels and returns their
// ids in server order. The channels are watched by the connection.
func (c *Client) QueryChannels(ctx context.Context, q api.ChannelQuery) ([]string, error) {
	var resp api.ChannelsResponse
	if err := c.api.Do(ctx, api.QueryChannels(q), &resp); err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}

	cids := make([]string, 0, len(resp.Channels))
	for _, p := range resp.Channels {
		cids = append(cids, p.Channel.CID)
	}

	if err := c.store.Write(func(tx *store.Tx) error { return savePayloads(tx, resp.Channels) }); err != nil {
		return nil, fmt.Errorf("saving channels: %w", err)
	}

	return cids, nil
}

// WatchChannel loads a channel's state and subscribes to its events.
func (c *Client) WatchChannel(ctx context.Context, cid string, messageLimit int) error {
	if _, _, ok := models.SplitCID(cid); !ok {
		return fmt.Errorf("%w: %q", errs.ErrInvalidCID, cid)
	}

	var resp models.ChannelPayload
	if err := c.api.Do(ctx, api.WatchChannel(cid, messageLimit), &resp); err != nil {
		return fmt.Errorf("watching %s: %w", cid, err)
	}

	if resp.Channel.CID == "" {
		resp.Channel.CID = cid
	}

	if err := c.store.Write(func(tx *store.Tx) error {
		return savePayloads(tx, []models.ChannelPayload{resp})
	}); err != nil {
		return fmt.Errorf("saving %s: %w", cid, err)
	}

	return nil
}

// CreateChannel creates a channel and stores it.
func (c *Client) CreateChannel(ctx context.Context, cid, name string, members []string) error {
	if _, _, ok := models.SplitCID(cid); !ok {
		return fmt.Errorf("%w: %q", errs.ErrInvalidCID, cid)
	}

	var resp models.ChannelPayload
	if err := c.api.Do(ctx, api.CreateChannel(cid, name, members), &resp); err != nil {
		return fmt.Errorf("creating %s: %w", cid, err)
	}

	if resp.Channel.CID == "" {
		resp.Channel.CID = cid
	}

	return c.store.Write(func(tx *store.Tx) error {
		return savePayloads(tx, []models.ChannelPayload{resp})
	})
}

func identity[T any](v T) (T, error) { return v, nil }

// ChannelList is a live channel list backed by a query. It is refreshed
// by every reconnection sync pass.
type ChannelList struct {
	client   *Client
	query    api.ChannelQuery
	observer *observer.ListObserver[models.Channel, models.Channel]
	fetched  atomic.Bool
	untrack  func()

	mu   sync.RWMutex
	cids map[string]struct{}
}

// ChannelList creates a live list for q, newest activity first. The list
// is empty until Watch runs.
func (c *Client) ChannelList(q api.ChannelQuery, onChange func([]observer.ListChange[models.Channel])) (*ChannelList, error) {
	l := &ChannelList{client: c, query: q, cids: make(map[string]struct{})}

	l.observer = observer.NewList(c.store, observer.ListOptions[models.Channel, models.Channel]{
		Query: observer.Query[models.Channel]{
			Bucket: store.BucketChannels,
			Filter: func(ch models.Channel) bool {
				return !ch.Hidden && l.contains(ch.CID)
			},
			Less: func(a, b models.Channel) bool {
				if !a.LastMessageAt.Equal(b.LastMessageAt) {
					return a.LastMessageAt.After(b.LastMessageAt)
				}

				return a.CreatedAt.After(b.CreatedAt)
			},
		},
		Key:      func(ch models.Channel) string { return ch.CID },
		Create:   identity[models.Channel],
		OnChange: onChange,
		Logger:   c.logger,
	})

	if err := l.observer.Start(); err != nil {
		return nil, fmt.Errorf("starting channel list: %w", err)
	}

	l.untrack = c.syncer.TrackChannelList(l)

	return l, nil
}

func (l *ChannelList) contains(cid string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.cids[cid]

	return ok
}

// Items returns the current channels in order.
func (l *ChannelList) Items() []models.Channel {
	return l.observer.Items()
}

// HasFetched reports whether the query has run.
func (l *ChannelList) HasFetched() bool {
	return l.fetched.Load()
}

// Watch runs the query for the first time.
func (l *ChannelList) Watch(ctx context.Context) ([]string, error) {
	return l.load(ctx)
}

// Refresh re-runs the query from the first page.
func (l *ChannelList) Refresh(ctx context.Context) ([]string, error) {
	return l.load(ctx)
}

func (l *ChannelList) load(ctx context.Context) ([]string, error) {
	q := l.query
	q.Offset = 0

	var resp api.ChannelsResponse
	if err := l.client.api.Do(ctx, api.QueryChannels(q), &resp); err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}

	cids := make(map[string]struct{}, len(resp.Channels))
	out := make([]string, 0, len(resp.Channels))

	for _, p := range resp.Channels {
		cids[p.Channel.CID] = struct{}{}
		out = append(out, p.Channel.CID)
	}

	l.mu.Lock()
	l.cids = cids
	l.mu.Unlock()

	// The write always touches the channels bucket, so membership
	// changes are picked up by the observer in the same commit.
	if err := l.client.store.Write(func(tx *store.Tx) error { return savePayloads(tx, resp.Channels) }); err != nil {
		return nil, fmt.Errorf("saving channels: %w", err)
	}

	l.fetched.Store(true)

	return out, nil
}

// Close stops observing and untracks the list.
func (l *ChannelList) Close() {
	l.untrack()
	l.observer.Stop()
}

// ChannelState is a live view of one channel and its top-level
// messages.
type ChannelState struct {
	client       *Client
	cid          string
	messageLimit int
	channel      *observer.EntityObserver[models.Channel, models.Channel]
	messages     *observer.ListObserver[models.Message, models.Message]
	fetched      atomic.Bool
	untrack      func()
}

// Channel creates a live view of cid. Watch loads it from the server.
func (c *Client) Channel(cid string, onMessages func([]observer.ListChange[models.Message])) (*ChannelState, error) {
	return c.channelState(cid, onMessages, false)
}

// Livestream is Channel for livestream channels, which the reconnection
// sync tracks separately.
func (c *Client) Livestream(cid string, onMessages func([]observer.ListChange[models.Message])) (*ChannelState, error) {
	return c.channelState(cid, onMessages, true)
}

func (c *Client) channelState(cid string, onMessages func([]observer.ListChange[models.Message]), livestream bool) (*ChannelState, error) {
	if _, _, ok := models.SplitCID(cid); !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrInvalidCID, cid)
	}

	s := &ChannelState{client: c, cid: cid, messageLimit: DefaultMessageLimit}

	s.channel = observer.NewEntity(c.store, observer.EntityOptions[models.Channel, models.Channel]{
		Bucket: store.BucketChannels,
		Key:    cid,
		Create: identity[models.Channel],
		Logger: c.logger,
	})

	s.messages = observer.NewList(c.store, observer.ListOptions[models.Message, models.Message]{
		Query: observer.Query[models.Message]{
			Bucket: store.BucketMessages,
			Filter: func(m models.Message) bool {
				return m.CID == cid && m.ParentID == ""
			},
			Less: func(a, b models.Message) bool {
				if !a.CreatedAt.Equal(b.CreatedAt) {
					return a.CreatedAt.Before(b.CreatedAt)
				}

				return a.ID < b.ID
			},
		},
		Key:      func(m models.Message) string { return m.ID },
		Create:   identity[models.Message],
		OnChange: onMessages,
		Logger:   c.logger,
	})

	if err := s.channel.Start(); err != nil {
		return nil, fmt.Errorf("starting channel observer: %w", err)
	}

	if err := s.messages.Start(); err != nil {
		s.channel.Stop()
		return nil, fmt.Errorf("starting message observer: %w", err)
	}

	if livestream {
		s.untrack = c.syncer.TrackLivestream(s)
	} else {
		s.untrack = c.syncer.TrackChannel(s)
	}

	return s, nil
}

// CID returns the channel id.
func (s *ChannelState) CID() string {
	return s.cid
}

// Channel returns the stored channel, if loaded.
func (s *ChannelState) Channel() (models.Channel, bool) {
	return s.channel.Item()
}

// Messages returns the top-level messages, oldest first.
func (s *ChannelState) Messages() []models.Message {
	return s.messages.Items()
}

// HasFetched reports whether the channel was loaded from the server.
func (s *ChannelState) HasFetched() bool {
	return s.fetched.Load()
}

// Watch loads the channel and subscribes to its events.
func (s *ChannelState) Watch(ctx context.Context) error {
	if err := s.client.WatchChannel(ctx, s.cid, s.messageLimit); err != nil {
		return err
	}

	s.fetched.Store(true)

	return nil
}

// Refresh reloads the channel after a reconnect.
func (s *ChannelState) Refresh(ctx context.Context) error {
	return s.client.WatchChannel(ctx, s.cid, s.messageLimit)
}

// Close stops observing and untracks the channel.
func (s *ChannelState) Close() {
	s.untrack()
	s.messages.Stop()
	s.channel.Stop()
}
