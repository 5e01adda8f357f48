// Package mcpserver registers MCP tools that expose the local chat mirror.
// It adapts the chat client to the MCP SDK's tool handler interface.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alexjbarnes/chat-sync/internal/connection"
	"github.com/alexjbarnes/chat-sync/internal/models"
	"github.com/alexjbarnes/chat-sync/internal/store"
	"github.com/alexjbarnes/chat-sync/internal/syncer"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	timeLayout          = time.RFC3339
	defaultMessageLimit = 50
	maxMessageLimit     = 500
)

// Chat is the part of the chat client the tools use.
type Chat interface {
	Store() *store.Store
	CurrentUserID() string
	ConnectionStatus() connection.Status
	ConnectionID() string
	QueuedRequests() int
	SendMessage(ctx context.Context, cid, text, parentID string) (models.Message, error)
	SyncMissingEvents(ctx context.Context) ([]string, error)
}

// RegisterTools adds all chat tools to the given MCP server.
func RegisterTools(server *mcp.Server, c Chat) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat_status",
		Description: "Show the connected user, connection status and how many requests are waiting for connectivity.",
	}, statusHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat_list_channels",
		Description: "List channels in the local mirror, most recent activity first. No messages.",
	}, listChannelsHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat_read_messages",
		Description: "Read the latest messages of a channel, oldest first. Use before to page back in time.",
	}, readMessagesHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat_search",
		Description: "Search channel names and message text. Case-insensitive. Newest messages first.",
	}, searchHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat_send_message",
		Description: "Send a message to a channel. When offline the message is queued and sent after reconnecting.",
	}, sendHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat_sync",
		Description: "Fetch events missed while disconnected. Rate limited; returns skipped when called again too soon.",
	}, syncHandler(c))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// StatusInput has no parameters.
type StatusInput struct{}

// ListChannelsInput holds parameters for chat_list_channels.
type ListChannelsInput struct {
	IncludeHidden bool `json:"include_hidden,omitempty" jsonschema:"include hidden channels"`
}

// ReadMessagesInput holds parameters for chat_read_messages.
type ReadMessagesInput struct {
	CID    string `json:"cid" jsonschema:"required,channel id in the form type:id"`
	Limit  int    `json:"limit,omitempty" jsonschema:"number of messages to return, defaults to 50"`
	Before string `json:"before,omitempty" jsonschema:"only messages created before this RFC3339 time"`
}

// SearchInput holds parameters for chat_search.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"required,search query"`
	CID        string `json:"cid,omitempty" jsonschema:"restrict the search to one channel"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum number of results, defaults to 20"`
}

// SendInput holds parameters for chat_send_message.
type SendInput struct {
	CID      string `json:"cid" jsonschema:"required,channel id in the form type:id"`
	Text     string `json:"text" jsonschema:"required,message text"`
	ParentID string `json:"parent_id,omitempty" jsonschema:"reply in the thread of this message"`
}

// SyncInput has no parameters.
type SyncInput struct{}

// --- Result types ---

// StatusResult is the response for chat_status.
type StatusResult struct {
	UserID         string `json:"user_id"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
	ConnectionID   string `json:"connection_id,omitempty"`
	QueuedRequests int    `json:"queued_requests"`
	LastSyncAt     string `json:"last_sync_at,omitempty"`
}

// ChannelEntry is one channel in a listing.
type ChannelEntry struct {
	CID           string `json:"cid"`
	Name          string `json:"name,omitempty"`
	MemberCount   int    `json:"member_count"`
	Hidden        bool   `json:"hidden,omitempty"`
	LastMessageAt string `json:"last_message_at,omitempty"`
}

// ListChannelsResult is the response for chat_list_channels.
type ListChannelsResult struct {
	TotalChannels int            `json:"total_channels"`
	Channels      []ChannelEntry `json:"channels"`
}

// MessageEntry is one message in a listing.
type MessageEntry struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Text       string `json:"text"`
	ParentID   string `json:"parent_id,omitempty"`
	CreatedAt  string `json:"created_at"`
	Deleted    bool   `json:"deleted,omitempty"`
	LocalState string `json:"local_state,omitempty"`
}

// ReadMessagesResult is the response for chat_read_messages.
type ReadMessagesResult struct {
	CID      string         `json:"cid"`
	HasMore  bool           `json:"has_more"`
	Messages []MessageEntry `json:"messages"`
}

// SendResult is the response for chat_send_message.
type SendResult struct {
	MessageID  string `json:"message_id"`
	CID        string `json:"cid"`
	LocalState string `json:"local_state,omitempty"`
	Queued     bool   `json:"queued"`
}

// SyncResult is the response for chat_sync.
type SyncResult struct {
	Skipped     bool     `json:"skipped"`
	ChannelCIDs []string `json:"channel_cids"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(timeLayout)
}

func messageEntry(m models.Message) MessageEntry {
	return MessageEntry{
		ID:         m.ID,
		UserID:     m.UserID,
		Text:       m.Text,
		ParentID:   m.ParentID,
		CreatedAt:  formatTime(m.CreatedAt),
		Deleted:    m.Deleted(),
		LocalState: string(m.LocalState),
	}
}

// --- Handlers ---

func statusHandler(c Chat) mcp.ToolHandlerFor[StatusInput, *StatusResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, *StatusResult, error) {
		status := c.ConnectionStatus()
		result := &StatusResult{
			UserID:         c.CurrentUserID(),
			Status:         status.Kind.String(),
			ConnectionID:   c.ConnectionID(),
			QueuedRequests: c.QueuedRequests(),
		}

		if status.Err != nil {
			result.Error = status.Err.Error()
		}

		err := c.Store().View(func(tx *store.Tx) error {
			u, err := tx.CurrentUser()
			if err == nil && u != nil && u.LastSyncAt != nil {
				result.LastSyncAt = formatTime(*u.LastSyncAt)
			}

			return err
		})
		if err != nil {
			return nil, nil, err
		}

		return textResult(result), result, nil
	}
}

func listChannelsHandler(c Chat) mcp.ToolHandlerFor[ListChannelsInput, *ListChannelsResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input ListChannelsInput) (*mcp.CallToolResult, *ListChannelsResult, error) {
		var channels []models.Channel

		err := c.Store().View(func(tx *store.Tx) error {
			return tx.ForEach(store.BucketChannels, func(_ string, raw []byte) error {
				ch, err := store.Decode[models.Channel](raw)
				if err != nil {
					return err
				}

				if !ch.Hidden || input.IncludeHidden {
					channels = append(channels, ch)
				}

				return nil
			})
		})
		if err != nil {
			return nil, nil, err
		}

		sort.SliceStable(channels, func(i, j int) bool {
			return channels[i].LastMessageAt.After(channels[j].LastMessageAt)
		})

		result := &ListChannelsResult{TotalChannels: len(channels), Channels: []ChannelEntry{}}
		for _, ch := range channels {
			result.Channels = append(result.Channels, ChannelEntry{
				CID:           ch.CID,
				Name:          ch.Name,
				MemberCount:   ch.MemberCount,
				Hidden:        ch.Hidden,
				LastMessageAt: formatTime(ch.LastMessageAt),
			})
		}

		return textResult(result), result, nil
	}
}

func readMessagesHandler(c Chat) mcp.ToolHandlerFor[ReadMessagesInput, *ReadMessagesResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input ReadMessagesInput) (*mcp.CallToolResult, *ReadMessagesResult, error) {
		if _, _, ok := models.SplitCID(input.CID); !ok {
			return nil, nil, fmt.Errorf("invalid cid %q: expected type:id", input.CID)
		}

		limit := input.Limit
		if limit <= 0 {
			limit = defaultMessageLimit
		}

		limit = min(limit, maxMessageLimit)

		var before time.Time

		if input.Before != "" {
			t, err := time.Parse(timeLayout, input.Before)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid before: %w", err)
			}

			before = t
		}

		var msgs []models.Message

		err := c.Store().View(func(tx *store.Tx) error {
			var err error
			msgs, err = tx.MessagesInChannel(input.CID)

			return err
		})
		if err != nil {
			return nil, nil, err
		}

		sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })

		if !before.IsZero() {
			n := sort.Search(len(msgs), func(i int) bool { return !msgs[i].CreatedAt.Before(before) })
			msgs = msgs[:n]
		}

		result := &ReadMessagesResult{CID: input.CID, Messages: []MessageEntry{}}
		if len(msgs) > limit {
			result.HasMore = true
			msgs = msgs[len(msgs)-limit:]
		}

		for _, m := range msgs {
			result.Messages = append(result.Messages, messageEntry(m))
		}

		return textResult(result), result, nil
	}
}

func searchHandler(c Chat) mcp.ToolHandlerFor[SearchInput, *SearchResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, *SearchResult, error) {
		if input.Query == "" {
			return nil, nil, errors.New("query is required")
		}

		result, err := search(c.Store(), input.Query, input.CID, input.MaxResults)
		if err != nil {
			return nil, nil, err
		}

		return textResult(result), result, nil
	}
}

func sendHandler(c Chat) mcp.ToolHandlerFor[SendInput, *SendResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SendInput) (*mcp.CallToolResult, *SendResult, error) {
		if input.Text == "" {
			return nil, nil, errors.New("text is required")
		}

		msg, err := c.SendMessage(ctx, input.CID, input.Text, input.ParentID)
		if err != nil {
			return nil, nil, err
		}

		result := &SendResult{
			MessageID:  msg.ID,
			CID:        msg.CID,
			LocalState: string(msg.LocalState),
			Queued:     msg.LocalState == models.LocalStatePendingSend && c.QueuedRequests() > 0,
		}

		return textResult(result), result, nil
	}
}

func syncHandler(c Chat) mcp.ToolHandlerFor[SyncInput, *SyncResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ SyncInput) (*mcp.CallToolResult, *SyncResult, error) {
		cids, err := c.SyncMissingEvents(ctx)

		result := &SyncResult{ChannelCIDs: cids}
		if result.ChannelCIDs == nil {
			result.ChannelCIDs = []string{}
		}

		switch {
		case errors.Is(err, syncer.ErrNoNeedToSync):
			result.Skipped = true
		case err != nil:
			return nil, nil, err
		}

		return textResult(result), result, nil
	}
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
