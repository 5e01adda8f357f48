// Package models defines the chat entities shared across internal packages.
package models

import (
	"strings"
	"time"
)

// LocalState marks a locally mutated row the server has not yet
// acknowledged. The empty value means the row mirrors the server.
type LocalState string

const (
	LocalStateNone           LocalState = ""
	LocalStatePendingSend    LocalState = "pendingSend"
	LocalStateSendingFailed  LocalState = "sendingFailed"
	LocalStatePendingSync    LocalState = "pendingSync"
	LocalStateSyncingFailed  LocalState = "syncingFailed"
	LocalStateDeleting       LocalState = "deleting"
	LocalStateDeletingFailed LocalState = "deletingFailed"
)

// User is a chat participant.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// CurrentUser is the logged-in user plus the sync cursor for their
// local mirror.
type CurrentUser struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

// Channel is a conversation identified by "<type>:<id>".
type Channel struct {
	CID           string    `json:"cid"`
	Type          string    `json:"type"`
	ID            string    `json:"id"`
	Name          string    `json:"name,omitempty"`
	MemberCount   int       `json:"member_count"`
	Frozen        bool      `json:"frozen,omitempty"`
	Hidden        bool      `json:"hidden,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	// TruncatedAt hides every message created at or before it.
	TruncatedAt *time.Time `json:"truncated_at,omitempty"`
}

// SplitCID splits "<type>:<id>".
func SplitCID(cid string) (typ, id string, ok bool) {
	typ, id, ok = strings.Cut(cid, ":")
	if !ok || typ == "" || id == "" {
		return "", "", false
	}

	return typ, id, true
}

// Message is a single chat message.
type Message struct {
	ID             string         `json:"id"`
	CID            string         `json:"cid"`
	UserID         string         `json:"user_id"`
	Text           string         `json:"text"`
	Type           string         `json:"type,omitempty"`
	ParentID       string         `json:"parent_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
	ReactionCounts map[string]int `json:"reaction_counts,omitempty"`
	LocalState     LocalState     `json:"local_state,omitempty"`
}

// Deleted reports whether the message has been soft deleted.
func (m *Message) Deleted() bool {
	return m.DeletedAt != nil
}

// Reaction is one user's reaction of one type on a message.
type Reaction struct {
	MessageID  string     `json:"message_id"`
	UserID     string     `json:"user_id"`
	Type       string     `json:"type"`
	Score      int        `json:"score"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	LocalState LocalState `json:"local_state,omitempty"`
}

// Key is the reaction's identity within the store.
func (r *Reaction) Key() string {
	return r.MessageID + "/" + r.UserID + "/" + r.Type
}

// Member is a user's membership in a channel.
type Member struct {
	CID       string    `json:"cid"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"channel_role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key is the member's identity within the store.
func (m *Member) Key() string {
	return m.CID + "/" + m.UserID
}

// Reminder asks the server to nudge the user about a message.
type Reminder struct {
	MessageID string     `json:"message_id"`
	CID       string     `json:"channel_cid"`
	UserID    string     `json:"user_id"`
	RemindAt  *time.Time `json:"remind_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Draft is an unsent composer state for a channel or thread.
type Draft struct {
	CID       string    `json:"channel_cid"`
	ParentID  string    `json:"parent_id,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Key is the draft's identity within the store.
func (d *Draft) Key() string {
	if d.ParentID == "" {
		return d.CID
	}

	return d.CID + "/" + d.ParentID
}
