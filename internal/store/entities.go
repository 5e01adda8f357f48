package store

import (
	"sort"
	"strings"
	"time"

	"github.com/alexjbarnes/chat-sync/internal/models"
)

var currentUserKey = "current_user"

// CurrentUser returns the logged-in user row, or nil.
func (t *Tx) CurrentUser() (*models.CurrentUser, error) {
	var u models.CurrentUser

	ok, err := t.Get(BucketMeta, currentUserKey, &u)
	if err != nil || !ok {
		return nil, err
	}

	return &u, nil
}

// SaveCurrentUser stores the logged-in user row.
func (t *Tx) SaveCurrentUser(u models.CurrentUser) error {
	return t.Put(BucketMeta, currentUserKey, u)
}

// AdvanceLastSyncAt moves the sync cursor of the current user forward
// to at. A cursor already at or past at is left alone, so overlapping
// passes can finish in any order. It is a no-op when no user is stored.
func (t *Tx) AdvanceLastSyncAt(at time.Time) error {
	u, err := t.CurrentUser()
	if err != nil || u == nil {
		return err
	}

	if u.LastSyncAt != nil && !at.After(*u.LastSyncAt) {
		return nil
	}

	at = at.UTC()
	u.LastSyncAt = &at

	return t.SaveCurrentUser(*u)
}

// Channel returns the channel with cid, or nil.
func (t *Tx) Channel(cid string) (*models.Channel, error) {
	var c models.Channel

	ok, err := t.Get(BucketChannels, cid, &c)
	if err != nil || !ok {
		return nil, err
	}

	return &c, nil
}

// SaveChannel stores c.
func (t *Tx) SaveChannel(c models.Channel) error {
	return t.Put(BucketChannels, c.CID, c)
}

// ChannelIDs returns every locally known channel cid in key order.
func (t *Tx) ChannelIDs() ([]string, error) {
	var ids []string

	err := t.ForEach(BucketChannels, func(key string, _ []byte) error {
		ids = append(ids, key)
		return nil
	})

	return ids, err
}

// DeleteChannel removes a channel with its messages and members.
func (t *Tx) DeleteChannel(cid string) error {
	if err := t.Delete(BucketChannels, cid); err != nil {
		return err
	}

	msgs, err := t.MessagesInChannel(cid)
	if err != nil {
		return err
	}

	for _, m := range msgs {
		if err := t.DeleteMessage(m.ID); err != nil {
			return err
		}
	}

	return t.deletePrefix(BucketMembers, cid+"/")
}

// TruncateChannel removes every message created at or before at.
func (t *Tx) TruncateChannel(cid string, at time.Time) error {
	c, err := t.Channel(cid)
	if err != nil {
		return err
	}

	if c != nil {
		at = at.UTC()
		c.TruncatedAt = &at

		if err := t.SaveChannel(*c); err != nil {
			return err
		}
	}

	msgs, err := t.MessagesInChannel(cid)
	if err != nil {
		return err
	}

	for _, m := range msgs {
		if !m.CreatedAt.After(at) {
			if err := t.DeleteMessage(m.ID); err != nil {
				return err
			}
		}
	}

	return nil
}

// Message returns the message with id, or nil.
func (t *Tx) Message(id string) (*models.Message, error) {
	var m models.Message

	ok, err := t.Get(BucketMessages, id, &m)
	if err != nil || !ok {
		return nil, err
	}

	return &m, nil
}

// SaveMessage stores m.
func (t *Tx) SaveMessage(m models.Message) error {
	return t.Put(BucketMessages, m.ID, m)
}

// DeleteMessage hard deletes a message and its reactions.
func (t *Tx) DeleteMessage(id string) error {
	if err := t.Delete(BucketMessages, id); err != nil {
		return err
	}

	return t.deletePrefix(BucketReactions, id+"/")
}

// MessagesInChannel returns the channel's messages ordered by creation.
func (t *Tx) MessagesInChannel(cid string) ([]models.Message, error) {
	var out []models.Message

	err := t.ForEach(BucketMessages, func(_ string, raw []byte) error {
		m, err := Decode[models.Message](raw)
		if err != nil {
			return err
		}

		if m.CID == cid {
			out = append(out, m)
		}

		return nil
	})

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, err
}

// Reaction returns the reaction at key, or nil.
func (t *Tx) Reaction(key string) (*models.Reaction, error) {
	var r models.Reaction

	ok, err := t.Get(BucketReactions, key, &r)
	if err != nil || !ok {
		return nil, err
	}

	return &r, nil
}

// SaveReaction stores r.
func (t *Tx) SaveReaction(r models.Reaction) error {
	return t.Put(BucketReactions, r.Key(), r)
}

// DeleteReaction removes the reaction at key.
func (t *Tx) DeleteReaction(key string) error {
	return t.Delete(BucketReactions, key)
}

// Reactions returns every reaction on a message.
func (t *Tx) Reactions(messageID string) ([]models.Reaction, error) {
	var out []models.Reaction

	err := t.ForEach(BucketReactions, func(key string, raw []byte) error {
		if !strings.HasPrefix(key, messageID+"/") {
			return nil
		}

		r, err := Decode[models.Reaction](raw)
		if err != nil {
			return err
		}

		out = append(out, r)

		return nil
	})

	return out, err
}

// SaveMember stores m.
func (t *Tx) SaveMember(m models.Member) error {
	return t.Put(BucketMembers, m.Key(), m)
}

// DeleteMember removes a channel membership.
func (t *Tx) DeleteMember(cid, userID string) error {
	return t.Delete(BucketMembers, cid+"/"+userID)
}

// SaveReminder stores r keyed by its message.
func (t *Tx) SaveReminder(r models.Reminder) error {
	return t.Put(BucketReminders, r.MessageID, r)
}

// DeleteReminder removes the reminder on a message.
func (t *Tx) DeleteReminder(messageID string) error {
	return t.Delete(BucketReminders, messageID)
}

// SaveDraft stores d.
func (t *Tx) SaveDraft(d models.Draft) error {
	return t.Put(BucketDrafts, d.Key(), d)
}

// DeleteDraft removes the draft for a channel or thread.
func (t *Tx) DeleteDraft(cid, parentID string) error {
	d := models.Draft{CID: cid, ParentID: parentID}
	return t.Delete(BucketDrafts, d.Key())
}

func (t *Tx) deletePrefix(b Bucket, prefix string) error {
	var keys []string

	err := t.ForEach(b, func(key string, _ []byte) error {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}

		return nil
	})
	if err != nil {
		return err
	}

	for _, k := range keys {
		if err := t.Delete(b, k); err != nil {
			return err
		}
	}

	return nil
}

// WipeUserData removes every row of every bucket. Called when a different
// user logs in on the same store.
func (s *Store) WipeUserData() error {
	return s.Write(func(tx *Tx) error {
		for _, b := range AllBuckets {
			if err := tx.Clear(b); err != nil {
				return err
			}
		}

		return nil
	})
}
