// Package events applies server events to the local store and fans
// them out to subscribers.
package events

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/alexjbarnes/chat-sync/internal/logging"
	"github.com/alexjbarnes/chat-sync/internal/models"
	"github.com/alexjbarnes/chat-sync/internal/store"
	"github.com/tidwall/gjson"
)

// Event types with a store effect.
const (
	MessageNew             = "message.new"
	MessageUpdated         = "message.updated"
	MessageDeleted         = "message.deleted"
	NotificationMessageNew = "notification.message_new"
	ReactionNew            = "reaction.new"
	ReactionUpdated        = "reaction.updated"
	ReactionDeleted        = "reaction.deleted"
	MemberAdded            = "member.added"
	MemberUpdated          = "member.updated"
	MemberRemoved          = "member.removed"
	ChannelUpdated         = "channel.updated"
	ChannelVisible         = "channel.visible"
	ChannelHidden          = "channel.hidden"
	ChannelDeleted         = "channel.deleted"
	ChannelTruncated       = "channel.truncated"
	NotificationAdded      = "notification.added_to_channel"
	NotificationRemoved    = "notification.removed_from_channel"
	ReminderCreated        = "reminder.created"
	ReminderUpdated        = "reminder.updated"
	ReminderDeleted        = "reminder.deleted"
	DraftUpdated           = "draft.updated"
	DraftDeleted           = "draft.deleted"
)

// Bus persists events and then broadcasts them. Subscribers see an event
// only after its effect is committed.
type Bus struct {
	store  *store.Store
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[int]func(models.Event)
	nextID int
}

// New creates a Bus writing to st.
func New(st *store.Store, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = logging.Discard()
	}

	return &Bus{
		store:  st,
		logger: logger,
		subs:   make(map[int]func(models.Event)),
	}
}

// Subscribe registers fn for every published event. The returned
// function unregisters it.
func (b *Bus) Subscribe(fn func(models.Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish applies ev and broadcasts it.
func (b *Bus) Publish(ev models.Event) error {
	return b.PublishBatch([]models.Event{ev})
}

// PublishBatch applies evs in order in a single transaction, then
// broadcasts each of them. Nothing is broadcast if the transaction fails.
func (b *Bus) PublishBatch(evs []models.Event) error {
	if len(evs) == 0 {
		return nil
	}

	err := b.store.Write(func(tx *store.Tx) error {
		for _, ev := range evs {
			if err := Apply(tx, ev); err != nil {
				return fmt.Errorf("applying %s: %w", ev.Type, err)
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	b.mu.RLock()
	subs := make([]func(models.Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, ev := range evs {
		for _, fn := range subs {
			fn(ev)
		}
	}

	b.logger.Debug("events published", slog.Int("count", len(evs)))

	return nil
}

// Apply writes the store effect of ev. Events without a store effect
// are ignored.
func Apply(tx *store.Tx, ev models.Event) error {
	switch ev.Type {
	case MessageNew, NotificationMessageNew, MessageUpdated:
		return saveMessage(tx, ev)

	case MessageDeleted:
		if ev.Message == nil {
			return nil
		}

		if gjson.GetBytes(ev.Raw, "hard_delete").Bool() {
			return tx.DeleteMessage(ev.Message.ID)
		}

		if ev.Message.DeletedAt == nil {
			at := ev.CreatedAt
			ev.Message.DeletedAt = &at
		}

		return saveMessage(tx, ev)

	case ReactionNew, ReactionUpdated:
		if ev.Reaction != nil {
			ev.Reaction.LocalState = models.LocalStateNone
			if err := tx.SaveReaction(*ev.Reaction); err != nil {
				return err
			}
		}

		return saveMessage(tx, ev)

	case ReactionDeleted:
		if ev.Reaction != nil {
			if err := tx.DeleteReaction(ev.Reaction.Key()); err != nil {
				return err
			}
		}

		return saveMessage(tx, ev)

	case MemberAdded, MemberUpdated:
		if ev.Member == nil {
			return nil
		}

		m := *ev.Member
		if m.CID == "" {
			m.CID = ev.CID
		}

		return tx.SaveMember(m)

	case MemberRemoved:
		if ev.Member == nil {
			return nil
		}

		return tx.DeleteMember(ev.CID, ev.Member.UserID)

	case ChannelUpdated, ChannelVisible, NotificationAdded:
		return saveChannel(tx, ev, false)

	case ChannelHidden:
		return saveChannel(tx, ev, true)

	case ChannelDeleted, NotificationRemoved:
		return tx.DeleteChannel(ev.CID)

	case ChannelTruncated:
		at := ev.CreatedAt
		if ev.Channel != nil && ev.Channel.TruncatedAt != nil {
			at = *ev.Channel.TruncatedAt
		}

		return tx.TruncateChannel(ev.CID, at)

	case ReminderCreated, ReminderUpdated:
		if ev.Reminder == nil {
			return nil
		}

		return tx.SaveReminder(*ev.Reminder)

	case ReminderDeleted:
		if ev.Reminder == nil {
			return nil
		}

		return tx.DeleteReminder(ev.Reminder.MessageID)

	case DraftUpdated:
		if ev.Draft == nil {
			return nil
		}

		return tx.SaveDraft(*ev.Draft)

	case DraftDeleted:
		if ev.Draft == nil {
			return nil
		}

		return tx.DeleteDraft(ev.Draft.CID, ev.Draft.ParentID)
	}

	return nil
}

func saveMessage(tx *store.Tx, ev models.Event) error {
	if ev.Message == nil {
		return nil
	}

	m := *ev.Message
	if m.CID == "" {
		m.CID = ev.CID
	}

	if m.UserID == "" {
		m.UserID = gjson.GetBytes(ev.Raw, "message.user.id").String()
	}

	m.LocalState = models.LocalStateNone

	if err := tx.SaveMessage(m); err != nil {
		return err
	}

	if ev.Type != MessageNew && ev.Type != NotificationMessageNew {
		return nil
	}

	ch, err := tx.Channel(m.CID)
	if err != nil || ch == nil {
		return err
	}

	if m.CreatedAt.After(ch.LastMessageAt) {
		ch.LastMessageAt = m.CreatedAt
		return tx.SaveChannel(*ch)
	}

	return nil
}

func saveChannel(tx *store.Tx, ev models.Event, hidden bool) error {
	if ev.Channel == nil {
		return nil
	}

	c := *ev.Channel
	if c.CID == "" {
		c.CID = ev.CID
	}

	c.Hidden = hidden

	return tx.SaveChannel(c)
}
