package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alexjbarnes/chat-sync/internal/models"
)

// Kind identifies what an endpoint does. Kinds are persisted with queued
// requests, so existing values must not change.
type Kind string

const (
	KindSendMessage    Kind = "sendMessage"
	KindEditMessage    Kind = "editMessage"
	KindDeleteMessage  Kind = "deleteMessage"
	KindAddReaction    Kind = "addReaction"
	KindDeleteReaction Kind = "deleteReaction"
	KindCreateChannel  Kind = "createChannel"
	KindChannelEvent   Kind = "channelEvent"
	KindQueryChannels  Kind = "queryChannels"
	KindWatchChannel   Kind = "watchChannel"
	KindMissingEvents  Kind = "missingEvents"
	KindGuestToken     Kind = "guestToken"
	KindReactions      Kind = "reactions"
)

// Endpoint is a self-contained description of one request. It is plain
// data so it can be persisted and replayed later.
type Endpoint struct {
	Kind                 Kind              `json:"kind"`
	Method               string            `json:"method"`
	Path                 string            `json:"path"`
	Query                map[string]string `json:"query,omitempty"`
	Body                 json.RawMessage   `json:"body,omitempty"`
	RequiresToken        bool              `json:"requires_token"`
	RequiresConnectionID bool              `json:"requires_connection_id"`

	// Identity of the entity being mutated, used to reconcile local
	// state once the server answers.
	CID          string `json:"cid,omitempty"`
	MessageID    string `json:"message_id,omitempty"`
	ReactionType string `json:"reaction_type,omitempty"`
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("encoding endpoint body: %v", err))
	}

	return data
}

func channelPath(cid, suffix string) string {
	typ, id, ok := models.SplitCID(cid)
	if !ok {
		return "/channels/invalid" + suffix
	}

	return "/channels/" + typ + "/" + id + suffix
}

type messageBody struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	ParentID string `json:"parent_id,omitempty"`
}

// SendMessage creates msg in its channel.
func SendMessage(msg models.Message) Endpoint {
	return Endpoint{
		Kind:          KindSendMessage,
		Method:        http.MethodPost,
		Path:          channelPath(msg.CID, "/message"),
		Body:          mustJSON(map[string]any{"message": messageBody{ID: msg.ID, Text: msg.Text, ParentID: msg.ParentID}}),
		RequiresToken: true,
		CID:           msg.CID,
		MessageID:     msg.ID,
	}
}

// EditMessage replaces the text of msg.
func EditMessage(msg models.Message) Endpoint {
	return Endpoint{
		Kind:          KindEditMessage,
		Method:        http.MethodPost,
		Path:          "/messages/" + msg.ID,
		Body:          mustJSON(map[string]any{"message": messageBody{ID: msg.ID, Text: msg.Text, ParentID: msg.ParentID}}),
		RequiresToken: true,
		CID:           msg.CID,
		MessageID:     msg.ID,
	}
}

// DeleteMessage deletes a message. Hard deletes cannot be undone.
func DeleteMessage(cid, messageID string, hard bool) Endpoint {
	ep := Endpoint{
		Kind:          KindDeleteMessage,
		Method:        http.MethodDelete,
		Path:          "/messages/" + messageID,
		RequiresToken: true,
		CID:           cid,
		MessageID:     messageID,
	}

	if hard {
		ep.Query = map[string]string{"hard": "true"}
	}

	return ep
}

// AddReaction adds the current user's reaction to a message.
func AddReaction(messageID, reactionType string, score int) Endpoint {
	return Endpoint{
		Kind:          KindAddReaction,
		Method:        http.MethodPost,
		Path:          "/messages/" + messageID + "/reaction",
		Body:          mustJSON(map[string]any{"reaction": map[string]any{"type": reactionType, "score": score}}),
		RequiresToken: true,
		MessageID:     messageID,
		ReactionType:  reactionType,
	}
}

// DeleteReaction removes the current user's reaction from a message.
func DeleteReaction(messageID, reactionType string) Endpoint {
	return Endpoint{
		Kind:          KindDeleteReaction,
		Method:        http.MethodDelete,
		Path:          "/messages/" + messageID + "/reaction/" + reactionType,
		RequiresToken: true,
		MessageID:     messageID,
		ReactionType:  reactionType,
	}
}

// CreateChannel creates a channel with the given members.
func CreateChannel(cid, name string, members []string) Endpoint {
	return Endpoint{
		Kind:          KindCreateChannel,
		Method:        http.MethodPost,
		Path:          channelPath(cid, "/query"),
		Body:          mustJSON(map[string]any{"data": map[string]any{"name": name, "members": members}}),
		RequiresToken: true,
		CID:           cid,
	}
}

// SendChannelEvent sends an ephemeral event such as typing.start.
func SendChannelEvent(cid, eventType string) Endpoint {
	return Endpoint{
		Kind:          KindChannelEvent,
		Method:        http.MethodPost,
		Path:          channelPath(cid, "/event"),
		Body:          mustJSON(map[string]any{"event": map[string]string{"type": eventType}}),
		RequiresToken: true,
		CID:           cid,
	}
}

// ChannelQuery filters and pages a channel list.
type ChannelQuery struct {
	Filter       map[string]any `json:"filter_conditions"`
	Sort         []SortOption   `json:"sort,omitempty"`
	Limit        int            `json:"limit,omitempty"`
	Offset       int            `json:"offset,omitempty"`
	MessageLimit int            `json:"message_limit,omitempty"`
}

// SortOption orders a channel query.
type SortOption struct {
	Field     string `json:"field"`
	Direction int    `json:"direction"`
}

// QueryChannels fetches and watches channels matching q.
func QueryChannels(q ChannelQuery) Endpoint {
	body := map[string]any{
		"filter_conditions": q.Filter,
		"sort":              q.Sort,
		"limit":             q.Limit,
		"offset":            q.Offset,
		"message_limit":     q.MessageLimit,
		"watch":             true,
		"state":             true,
		"presence":          false,
	}

	return Endpoint{
		Kind:                 KindQueryChannels,
		Method:               http.MethodPost,
		Path:                 "/channels",
		Body:                 mustJSON(body),
		RequiresToken:        true,
		RequiresConnectionID: true,
	}
}

// ChannelsResponse is the result of QueryChannels.
type ChannelsResponse struct {
	Channels []models.ChannelPayload `json:"channels"`
}

// WatchChannel fetches a channel's state and subscribes to its events.
func WatchChannel(cid string, messageLimit int) Endpoint {
	body := map[string]any{"watch": true, "state": true}
	if messageLimit > 0 {
		body["messages"] = map[string]int{"limit": messageLimit}
	}

	return Endpoint{
		Kind:                 KindWatchChannel,
		Method:               http.MethodPost,
		Path:                 channelPath(cid, "/query"),
		Body:                 mustJSON(body),
		RequiresToken:        true,
		RequiresConnectionID: true,
		CID:                  cid,
	}
}

// MissingEvents fetches events on cids created after since.
func MissingEvents(since time.Time, cids []string) Endpoint {
	return Endpoint{
		Kind:   KindMissingEvents,
		Method: http.MethodPost,
		Path:   "/sync",
		Body: mustJSON(map[string]any{
			"last_sync_at": since.UTC().Format(time.RFC3339Nano),
			"channel_cids": cids,
		}),
		RequiresToken: true,
	}
}

// MissingEventsResponse is the result of MissingEvents.
type MissingEventsResponse struct {
	Events []models.Event `json:"events"`
}

// Reactions fetches one page of a message's reactions, newest first.
func Reactions(messageID string, limit, offset int) Endpoint {
	return Endpoint{
		Kind:   KindReactions,
		Method: http.MethodGet,
		Path:   "/messages/" + messageID + "/reactions",
		Query: map[string]string{
			"limit":  strconv.Itoa(limit),
			"offset": strconv.Itoa(offset),
		},
		RequiresToken: true,
		MessageID:     messageID,
	}
}

// ReactionsResponse is the result of Reactions.
type ReactionsResponse struct {
	Reactions []models.Reaction `json:"reactions"`
}

// GuestTokenEndpoint requests a token for a guest user.
func GuestTokenEndpoint(userID, name string) Endpoint {
	return Endpoint{
		Kind:   KindGuestToken,
		Method: http.MethodPost,
		Path:   "/guest",
		Body:   mustJSON(map[string]any{"user": map[string]string{"id": userID, "name": name}}),
	}
}

// GuestTokenResponse is the result of GuestTokenEndpoint.
type GuestTokenResponse struct {
	AccessToken string      `json:"access_token"`
	User        models.User `json:"user"`
}
