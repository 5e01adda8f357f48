package models

import (
	"encoding/json"
	"time"
)

// Event is a real-time or missed event from the chat backend.
type Event struct {
	Type         string    `json:"type"`
	CID          string    `json:"cid,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ConnectionID string    `json:"connection_id,omitempty"`

	User     *User     `json:"user,omitempty"`
	Channel  *Channel  `json:"channel,omitempty"`
	Message  *Message  `json:"message,omitempty"`
	Reaction *Reaction `json:"reaction,omitempty"`
	Member   *Member   `json:"member,omitempty"`
	Reminder *Reminder `json:"reminder,omitempty"`
	Draft    *Draft    `json:"draft,omitempty"`

	// Raw is the undecoded frame, kept for handlers of unknown types.
	Raw json.RawMessage `json:"-"`
}

// ChannelPayload is a channel with the state returned by query and watch
// endpoints.
type ChannelPayload struct {
	Channel  Channel   `json:"channel"`
	Messages []Message `json:"messages,omitempty"`
	Members  []Member  `json:"members,omitempty"`
}
