package chat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexjbarnes/chat-sync/internal/api"
	"github.com/alexjbarnes/chat-sync/internal/auth"
	"github.com/alexjbarnes/chat-sync/internal/connection"
	errs "github.com/alexjbarnes/chat-sync/internal/errors"
	"github.com/alexjbarnes/chat-sync/internal/models"
	"github.com/alexjbarnes/chat-sync/internal/observer"
	"github.com/alexjbarnes/chat-sync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedMessage(t *testing.T, c *Client, id string) *models.Message {
	t.Helper()

	var m *models.Message

	require.NoError(t, c.store.View(func(tx *store.Tx) error {
		var err error
		m, err = tx.Message(id)

		return err
	}))

	return m
}

func storedReactions(t *testing.T, c *Client, messageID string) []models.Reaction {
	t.Helper()

	var rs []models.Reaction

	require.NoError(t, c.store.View(func(tx *store.Tx) error {
		var err error
		rs, err = tx.Reactions(messageID)

		return err
	}))

	return rs
}

func TestConnectUser_ConnectsAndStoresUser(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)

	connect(t, c)

	assert.Equal(t, "conn-1", c.ConnectionID())
	assert.Equal(t, connection.StatusConnected, c.ConnectionStatus().Kind)
	assert.Equal(t, "u1", c.CurrentUserID())

	var user *models.CurrentUser

	require.NoError(t, c.store.View(func(tx *store.Tx) error {
		var err error
		user, err = tx.CurrentUser()

		return err
	}))
	require.NotNil(t, user)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "Ada", user.Name)
}

func TestConnectUser_PassiveClientReportsDisconnected(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b, passive())

	connect(t, c)

	assert.Equal(t, connection.StatusDisconnected, c.ConnectionStatus().Kind)
	assert.Empty(t, c.ConnectionID())
	assert.Zero(t, b.connects.Load())
}

func TestConnectUser_ExpiredTokenRefreshesAndReconnects(t *testing.T) {
	b := newFakeBackend(t)
	b.expireConnects.Store(1)
	c := newTestClient(t, b)

	var calls atomic.Int32

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, c.ConnectUser(ctx, auth.UserInfo{ID: "u1"}, staticProvider(&calls)))

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(2), b.connects.Load())
	assert.Equal(t, "conn-2", c.ConnectionID())
}

func TestSendMessage_Online(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)
	connect(t, c)

	msg, err := c.SendMessage(context.Background(), "messaging:general", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "u1", msg.UserID)

	stored := storedMessage(t, c, msg.ID)
	require.NotNil(t, stored)
	assert.Equal(t, models.LocalStateNone, stored.LocalState)
	assert.Equal(t, "hello", stored.Text)
	assert.Equal(t, 0, c.QueuedRequests())
}

func TestSendMessage_InvalidCID(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)

	_, err := c.SendMessage(context.Background(), "general", "hello", "")
	require.ErrorIs(t, err, errs.ErrInvalidCID)
}

func TestSendMessage_OfflineIsQueuedAndReplayed(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)
	connect(t, c)

	b.offline.Store(true)

	msg, err := c.SendMessage(context.Background(), "messaging:general", "offline hello", "")
	require.NoError(t, err)
	assert.Equal(t, 1, c.QueuedRequests())
	assert.Equal(t, models.LocalStatePendingSend, storedMessage(t, c, msg.ID).LocalState)

	b.offline.Store(false)
	require.NoError(t, c.SyncLocalState(context.Background()))

	assert.Equal(t, 0, c.QueuedRequests())
	assert.Equal(t, models.LocalStateNone, storedMessage(t, c, msg.ID).LocalState)
}

func TestSendMessage_RejectedMarksFailed(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)
	connect(t, c)

	b.reject.Store(true)

	msg, err := c.SendMessage(context.Background(), "messaging:general", "nope", "")
	require.Error(t, err)

	var apiErr *errs.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 4, apiErr.Code)
	assert.Equal(t, models.LocalStateSendingFailed, msg.LocalState)
	assert.Equal(t, models.LocalStateSendingFailed, storedMessage(t, c, msg.ID).LocalState)
	assert.Equal(t, 0, c.QueuedRequests())

	b.reject.Store(false)
	require.NoError(t, c.ResendMessage(context.Background(), msg.ID))
	assert.Equal(t, models.LocalStateNone, storedMessage(t, c, msg.ID).LocalState)
}

func TestEditAndDeleteMessage(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)
	connect(t, c)

	ctx := context.Background()

	msg, err := c.SendMessage(ctx, "messaging:general", "first", "")
	require.NoError(t, err)

	require.NoError(t, c.EditMessage(ctx, msg.ID, "second"))

	stored := storedMessage(t, c, msg.ID)
	assert.Equal(t, "second", stored.Text)
	assert.Equal(t, models.LocalStateNone, stored.LocalState)

	require.NoError(t, c.DeleteMessage(ctx, msg.ID, false))

	stored = storedMessage(t, c, msg.ID)
	require.NotNil(t, stored)
	assert.True(t, stored.Deleted())

	other, err := c.SendMessage(ctx, "messaging:general", "gone", "")
	require.NoError(t, err)
	require.NoError(t, c.DeleteMessage(ctx, other.ID, true))
	assert.Nil(t, storedMessage(t, c, other.ID))
}

func TestEditMessage_NotFound(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)

	err := c.EditMessage(context.Background(), "missing", "x")
	require.ErrorIs(t, err, errs.ErrMessageNotFound)
}

func TestDeleteMessage_UnsentIsLocalOnly(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)
	connect(t, c)

	b.offline.Store(true)

	msg, err := c.SendMessage(context.Background(), "messaging:general", "draft", "")
	require.NoError(t, err)

	b.offline.Store(false)

	require.NoError(t, c.DeleteMessage(context.Background(), msg.ID, false))
	assert.Nil(t, storedMessage(t, c, msg.ID))
	assert.Zero(t, b.requestCount("DELETE /messages/"+msg.ID))
}

func TestReactions(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)
	connect(t, c)

	ctx := context.Background()

	require.NoError(t, c.AddReaction(ctx, "m1", "like", 1))

	rs := storedReactions(t, c, "m1")
	require.Len(t, rs, 1)
	assert.Equal(t, models.LocalStateNone, rs[0].LocalState)

	b.reject.Store(true)
	require.Error(t, c.DeleteReaction(ctx, "m1", "like"))
	assert.Len(t, storedReactions(t, c, "m1"), 1, "rejected delete restores the reaction")

	b.reject.Store(false)
	require.NoError(t, c.DeleteReaction(ctx, "m1", "like"))
	assert.Empty(t, storedReactions(t, c, "m1"))
}

func TestAddReaction_RejectedIsRemoved(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)
	connect(t, c)

	b.reject.Store(true)

	require.Error(t, c.AddReaction(context.Background(), "m1", "like", 1))
	assert.Empty(t, storedReactions(t, c, "m1"))
}

func TestEventsAreAppliedAndBroadcast(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)

	got := make(chan models.Event, 1)
	unsubscribe := c.Subscribe(func(ev models.Event) {
		if ev.Type == "message.new" {
			got <- ev
		}
	})
	defer unsubscribe()

	connect(t, c)

	b.push(map[string]any{
		"type":       "message.new",
		"cid":        "messaging:general",
		"created_at": time.Now().UTC(),
		"message":    models.Message{ID: "srv-1", CID: "messaging:general", UserID: "u2", Text: "hi"},
	})

	select {
	case ev := <-got:
		assert.Equal(t, "messaging:general", ev.CID)
	case <-time.After(5 * time.Second):
		t.Fatal("event not broadcast")
	}

	stored := storedMessage(t, c, "srv-1")
	require.NotNil(t, stored)
	assert.Equal(t, "hi", stored.Text)
}

func TestChannelList_WatchAndRefreshOnSync(t *testing.T) {
	b := newFakeBackend(t)
	now := time.Now().UTC()
	b.setChannels(channel("messaging:old", now.Add(-time.Hour)), channel("messaging:new", now))

	c := newTestClient(t, b)
	connect(t, c)

	var changes atomic.Int32

	list, err := c.ChannelList(api.ChannelQuery{Limit: 10}, func([]observer.ListChange[models.Channel]) {
		changes.Add(1)
	})
	require.NoError(t, err)
	defer list.Close()

	assert.False(t, list.HasFetched())

	cids, err := list.Watch(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"messaging:old", "messaging:new"}, cids)
	assert.True(t, list.HasFetched())

	items := list.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "messaging:new", items[0].CID)
	assert.Equal(t, "messaging:old", items[1].CID)
	assert.Equal(t, int32(1), changes.Load())

	_, lists, _ := c.syncer.Tracked()
	assert.Equal(t, 1, lists)

	require.NoError(t, c.SyncLocalState(context.Background()))
	assert.Equal(t, int32(2), b.queryCalls.Load())
}

func TestChannelState_WatchLoadsMessages(t *testing.T) {
	b := newFakeBackend(t)
	now := time.Now().UTC()

	p := channel("messaging:general", now)
	p.Messages = []models.Message{
		{ID: "a", UserID: "u2", Text: "one", CreatedAt: now.Add(-2 * time.Minute)},
		{ID: "b", UserID: "u2", Text: "two", CreatedAt: now.Add(-time.Minute)},
		{ID: "reply", UserID: "u2", Text: "thread", ParentID: "a", CreatedAt: now},
	}
	b.setChannels(p)

	c := newTestClient(t, b)
	connect(t, c)

	state, err := c.Channel("messaging:general", nil)
	require.NoError(t, err)
	defer state.Close()

	require.NoError(t, state.Watch(context.Background()))
	assert.True(t, state.HasFetched())

	ch, ok := state.Channel()
	require.True(t, ok)
	assert.Equal(t, "channel general", ch.Name)

	msgs := state.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].ID)
	assert.Equal(t, "b", msgs[1].ID)

	live, err := c.Livestream("livestream:show", nil)
	require.NoError(t, err)
	defer live.Close()

	channels, _, livestreams := c.syncer.Tracked()
	assert.Equal(t, 1, channels)
	assert.Equal(t, 1, livestreams)
}

func TestChannel_InvalidCID(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)

	_, err := c.Channel("nope", nil)
	require.ErrorIs(t, err, errs.ErrInvalidCID)
}

func TestReactionList_GetResetsAndLoadMoreAppends(t *testing.T) {
	b := newFakeBackend(t)
	now := time.Now().UTC()

	reaction := func(user string, age time.Duration) models.Reaction {
		return models.Reaction{MessageID: "m1", UserID: user, Type: "like", CreatedAt: now.Add(-age)}
	}

	b.setReactions(reaction("u2", time.Minute), reaction("u3", 2*time.Minute), reaction("u4", 3*time.Minute))

	c := newTestClient(t, b)
	connect(t, c)

	list, err := c.ReactionList("m1", 2, nil)
	require.NoError(t, err)
	defer list.Close()

	ctx := context.Background()

	require.NoError(t, list.Get(ctx))
	assert.Len(t, list.Items(), 2)
	assert.True(t, list.HasMore())

	require.NoError(t, list.LoadMore(ctx))
	assert.Len(t, list.Items(), 3)
	assert.False(t, list.HasMore())

	b.setReactions(reaction("u9", 0))

	require.NoError(t, list.Get(ctx))

	items := list.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "u9", items[0].UserID)
}

func TestLogOutUser_WipesLocalData(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)
	connect(t, c)

	msg, err := c.SendMessage(context.Background(), "messaging:general", "bye", "")
	require.NoError(t, err)

	c.LogOutUser(context.Background())

	assert.Nil(t, storedMessage(t, c, msg.ID))
	assert.Empty(t, c.CurrentUserID())
	assert.Equal(t, connection.StatusDisconnected, c.ConnectionStatus().Kind)

	_, err = c.auth.Token(context.Background(), 10*time.Millisecond)
	assert.True(t, errors.Is(err, errs.ErrWaiterTimeout) || errors.Is(err, errs.ErrLoggedOut))
}

func TestSendTypingEvent(t *testing.T) {
	b := newFakeBackend(t)
	c := newTestClient(t, b)
	connect(t, c)

	require.NoError(t, c.SendTypingEvent(context.Background(), "messaging:general", true))
	assert.Equal(t, 1, b.requestCount("POST /channels/messaging/general/event"))
}
