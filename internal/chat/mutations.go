package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexjbarnes/chat-sync/internal/api"
	errs "github.com/alexjbarnes/chat-sync/internal/errors"
	"github.com/alexjbarnes/chat-sync/internal/models"
	"github.com/alexjbarnes/chat-sync/internal/offline"
	"github.com/alexjbarnes/chat-sync/internal/store"
	"github.com/google/uuid"
)

// mutate sends ep and applies the response. A connectivity failure
// queues ep for replay when local storage is enabled and leaves the
// optimistic state in place. Any other failure runs onFailure.
func (c *Client) mutate(ctx context.Context, ep api.Endpoint, onFailure func(*store.Tx) error) error {
	var resp offline.MutationResponse

	err := c.api.Do(ctx, ep, &resp)
	if err == nil {
		return c.store.Write(func(tx *store.Tx) error {
			return offline.Reconcile(tx, ep, resp)
		})
	}

	if errs.IsConnectivity(err) && c.localStorage && offline.Queueable(ep.Kind) {
		if qerr := c.queue.Queue(ctx, ep); qerr != nil {
			return fmt.Errorf("queueing %s: %w", ep.Kind, qerr)
		}

		c.logger.Info("request queued until reconnect",
			slog.String("kind", string(ep.Kind)),
			slog.String("message_id", ep.MessageID),
		)

		return nil
	}

	if onFailure != nil {
		if werr := c.store.Write(onFailure); werr != nil {
			c.logger.Error("recording failed mutation",
				slog.String("kind", string(ep.Kind)),
				slog.String("error", werr.Error()),
			)
		}
	}

	return fmt.Errorf("%s: %w", ep.Kind, err)
}

func markMessage(id string, state models.LocalState) func(*store.Tx) error {
	return func(tx *store.Tx) error {
		m, err := tx.Message(id)
		if err != nil || m == nil {
			return err
		}

		m.LocalState = state

		return tx.SaveMessage(*m)
	}
}

func (c *Client) message(id string) (*models.Message, error) {
	var m *models.Message

	err := c.store.View(func(tx *store.Tx) error {
		var err error
		m, err = tx.Message(id)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}

	if m == nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrMessageNotFound, id)
	}

	return m, nil
}

// SendMessage stores a new message as pending and sends it. The message
// keeps its local id; the returned copy reflects the stored row at the
// time of the call.
func (c *Client) SendMessage(ctx context.Context, cid, text, parentID string) (models.Message, error) {
	if _, _, ok := models.SplitCID(cid); !ok {
		return models.Message{}, fmt.Errorf("%w: %q", errs.ErrInvalidCID, cid)
	}

	now := time.Now().UTC()
	msg := models.Message{
		ID:         uuid.NewString(),
		CID:        cid,
		UserID:     c.auth.CurrentUserID(),
		Text:       text,
		Type:       "regular",
		ParentID:   parentID,
		CreatedAt:  now,
		UpdatedAt:  now,
		LocalState: models.LocalStatePendingSend,
	}

	if err := c.store.Write(func(tx *store.Tx) error { return tx.SaveMessage(msg) }); err != nil {
		return models.Message{}, fmt.Errorf("saving message: %w", err)
	}

	err := c.mutate(ctx, api.SendMessage(msg), markMessage(msg.ID, models.LocalStateSendingFailed))
	if err != nil {
		msg.LocalState = models.LocalStateSendingFailed
	}

	return msg, err
}

// ResendMessage retries a message whose send failed.
func (c *Client) ResendMessage(ctx context.Context, id string) error {
	msg, err := c.message(id)
	if err != nil {
		return err
	}

	if msg.LocalState != models.LocalStateSendingFailed {
		return nil
	}

	if err := c.store.Write(markMessage(id, models.LocalStatePendingSend)); err != nil {
		return err
	}

	return c.mutate(ctx, api.SendMessage(*msg), markMessage(id, models.LocalStateSendingFailed))
}

// EditMessage replaces the text of a message.
func (c *Client) EditMessage(ctx context.Context, id, text string) error {
	msg, err := c.message(id)
	if err != nil {
		return err
	}

	msg.Text = text
	msg.UpdatedAt = time.Now().UTC()

	// A message the server has not seen yet is sent with its new text.
	if msg.LocalState == models.LocalStatePendingSend || msg.LocalState == models.LocalStateSendingFailed {
		msg.LocalState = models.LocalStatePendingSend
		if err := c.store.Write(func(tx *store.Tx) error { return tx.SaveMessage(*msg) }); err != nil {
			return err
		}

		return c.mutate(ctx, api.SendMessage(*msg), markMessage(id, models.LocalStateSendingFailed))
	}

	msg.LocalState = models.LocalStatePendingSync
	if err := c.store.Write(func(tx *store.Tx) error { return tx.SaveMessage(*msg) }); err != nil {
		return err
	}

	return c.mutate(ctx, api.EditMessage(*msg), markMessage(id, models.LocalStateSyncingFailed))
}

// DeleteMessage deletes a message. Messages that never reached the
// server are removed locally without a request.
func (c *Client) DeleteMessage(ctx context.Context, id string, hard bool) error {
	msg, err := c.message(id)
	if err != nil {
		return err
	}

	if msg.LocalState == models.LocalStatePendingSend || msg.LocalState == models.LocalStateSendingFailed {
		return c.store.Write(func(tx *store.Tx) error { return tx.DeleteMessage(id) })
	}

	if err := c.store.Write(markMessage(id, models.LocalStateDeleting)); err != nil {
		return err
	}

	return c.mutate(ctx, api.DeleteMessage(msg.CID, id, hard), markMessage(id, models.LocalStateDeletingFailed))
}

// AddReaction adds the current user's reaction to a message.
func (c *Client) AddReaction(ctx context.Context, messageID, reactionType string, score int) error {
	now := time.Now().UTC()
	r := models.Reaction{
		MessageID:  messageID,
		UserID:     c.auth.CurrentUserID(),
		Type:       reactionType,
		Score:      score,
		CreatedAt:  now,
		UpdatedAt:  now,
		LocalState: models.LocalStatePendingSend,
	}

	if err := c.store.Write(func(tx *store.Tx) error { return tx.SaveReaction(r) }); err != nil {
		return fmt.Errorf("saving reaction: %w", err)
	}

	return c.mutate(ctx, api.AddReaction(messageID, reactionType, score), func(tx *store.Tx) error {
		return tx.DeleteReaction(r.Key())
	})
}

// DeleteReaction removes the current user's reaction. The reaction is
// restored if the server rejects the request.
func (c *Client) DeleteReaction(ctx context.Context, messageID, reactionType string) error {
	key := (&models.Reaction{MessageID: messageID, UserID: c.auth.CurrentUserID(), Type: reactionType}).Key()

	var previous *models.Reaction

	err := c.store.Write(func(tx *store.Tx) error {
		var err error
		if previous, err = tx.Reaction(key); err != nil || previous == nil {
			return err
		}

		return tx.DeleteReaction(key)
	})
	if err != nil {
		return fmt.Errorf("removing reaction: %w", err)
	}

	return c.mutate(ctx, api.DeleteReaction(messageID, reactionType), func(tx *store.Tx) error {
		if previous == nil {
			return nil
		}

		return tx.SaveReaction(*previous)
	})
}

// SendTypingEvent tells channel members the user started or stopped
// typing. It is never queued.
func (c *Client) SendTypingEvent(ctx context.Context, cid string, typing bool) error {
	eventType := "typing.stop"
	if typing {
		eventType = "typing.start"
	}

	if err := c.api.Do(ctx, api.SendChannelEvent(cid, eventType), nil); err != nil {
		return fmt.Errorf("sending %s: %w", eventType, err)
	}

	return nil
}
