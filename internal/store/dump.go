package store

import (
	"encoding/json"

	"github.com/alexjbarnes/chat-sync/internal/models"
)

// Snapshot is a typed copy of the whole store, used for debug output.
type Snapshot struct {
	CurrentUser *models.CurrentUser `yaml:"current_user,omitempty"`
	Channels    []models.Channel    `yaml:"channels"`
	Messages    []models.Message    `yaml:"messages"`
	Reactions   []models.Reaction   `yaml:"reactions"`
	Members     []models.Member     `yaml:"members"`
	Reminders   []models.Reminder   `yaml:"reminders"`
	Drafts      []models.Draft      `yaml:"drafts"`
	Queue       []QueuedRow         `yaml:"queued_requests"`
}

// QueuedRow is a raw offline-queue entry as stored.
type QueuedRow struct {
	ID      string `yaml:"id"`
	Payload string `yaml:"payload"`
}

// Dump reads every row into a Snapshot.
func (s *Store) Dump() (*Snapshot, error) {
	snap := &Snapshot{}

	err := s.View(func(tx *Tx) error {
		u, err := tx.CurrentUser()
		if err != nil {
			return err
		}

		snap.CurrentUser = u

		if snap.Channels, err = collect[models.Channel](tx, BucketChannels); err != nil {
			return err
		}

		if snap.Messages, err = collect[models.Message](tx, BucketMessages); err != nil {
			return err
		}

		if snap.Reactions, err = collect[models.Reaction](tx, BucketReactions); err != nil {
			return err
		}

		if snap.Members, err = collect[models.Member](tx, BucketMembers); err != nil {
			return err
		}

		if snap.Reminders, err = collect[models.Reminder](tx, BucketReminders); err != nil {
			return err
		}

		if snap.Drafts, err = collect[models.Draft](tx, BucketDrafts); err != nil {
			return err
		}

		return tx.ForEach(BucketQueue, func(key string, raw []byte) error {
			snap.Queue = append(snap.Queue, QueuedRow{ID: key, Payload: string(raw)})
			return nil
		})
	})

	return snap, err
}

func collect[T any](tx *Tx, b Bucket) ([]T, error) {
	var out []T

	err := tx.ForEach(b, func(_ string, raw []byte) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}

		out = append(out, v)

		return nil
	})

	return out, err
}
