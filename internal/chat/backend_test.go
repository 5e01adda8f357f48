package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexjbarnes/chat-sync/internal/auth"
	"github.com/alexjbarnes/chat-sync/internal/config"
	"github.com/alexjbarnes/chat-sync/internal/models"
	"github.com/alexjbarnes/chat-sync/internal/store"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-process chat server: REST endpoints plus a
// websocket that answers every connect with a health check.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	offline        atomic.Bool
	reject         atomic.Bool
	expireConnects atomic.Int32
	connects       atomic.Int32
	queryCalls     atomic.Int32
	watchCalls     atomic.Int32

	mu        sync.Mutex
	sockets   []*websocket.Conn
	messages  map[string]models.Message
	requests  []string
	channels  []models.ChannelPayload
	reactions []models.Reaction
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{t: t, messages: make(map[string]models.Message)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /connect", b.handleConnect)
	mux.HandleFunc("POST /channels/{type}/{id}/message", b.handleSend)
	mux.HandleFunc("POST /messages/{id}", b.handleEdit)
	mux.HandleFunc("DELETE /messages/{id}", b.handleDelete)
	mux.HandleFunc("POST /messages/{id}/reaction", b.handleAddReaction)
	mux.HandleFunc("DELETE /messages/{id}/reaction/{type}", b.handleEmpty)
	mux.HandleFunc("GET /messages/{id}/reactions", b.handleReactions)
	mux.HandleFunc("POST /channels", b.handleQuery)
	mux.HandleFunc("POST /channels/{type}/{id}/query", b.handleWatch)
	mux.HandleFunc("POST /channels/{type}/{id}/event", b.handleEmpty)
	mux.HandleFunc("POST /sync", b.handleSync)

	b.srv = httptest.NewServer(b.middleware(mux))
	t.Cleanup(b.srv.Close)

	return b
}

func (b *fakeBackend) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/connect" {
			b.mu.Lock()
			b.requests = append(b.requests, r.Method+" "+r.URL.Path)
			b.mu.Unlock()
		}

		if b.offline.Load() && r.URL.Path != "/connect" {
			hj, ok := w.(http.Hijacker)
			if !ok {
				http.Error(w, "no hijack", http.StatusInternalServerError)
				return
			}

			conn, _, err := hj.Hijack()
			if err == nil {
				conn.Close()
			}

			return
		}

		if b.reject.Load() && r.URL.Path != "/connect" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":4,"message":"rejected by test","StatusCode":400}`))

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (b *fakeBackend) requestCount(methodPath string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0

	for _, r := range b.requests {
		if r == methodPath {
			n++
		}
	}

	return n
}

func (b *fakeBackend) handleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	n := b.connects.Add(1)
	ctx := conn.CloseRead(r.Context())

	if b.expireConnects.Add(-1) >= 0 {
		_ = wsjson.Write(ctx, conn, map[string]any{
			"type":  "connection.error",
			"error": map[string]any{"code": 40, "message": "token expired", "StatusCode": 401},
		})
		<-ctx.Done()

		return
	}

	b.mu.Lock()
	b.sockets = append(b.sockets, conn)
	b.mu.Unlock()

	_ = wsjson.Write(ctx, conn, map[string]any{
		"type":          "health.check",
		"connection_id": "conn-" + strconv.Itoa(int(n)),
	})

	<-ctx.Done()
}

// push sends v on the most recent websocket.
func (b *fakeBackend) push(v any) {
	b.mu.Lock()
	conn := b.sockets[len(b.sockets)-1]
	b.mu.Unlock()

	require.NoError(b.t, wsjson.Write(context.Background(), conn, v))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type messageRequest struct {
	Message struct {
		ID       string `json:"id"`
		Text     string `json:"text"`
		ParentID string `json:"parent_id"`
	} `json:"message"`
}

func (b *fakeBackend) handleSend(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	msg := models.Message{
		ID:        req.Message.ID,
		CID:       r.PathValue("type") + ":" + r.PathValue("id"),
		UserID:    "u1",
		Text:      req.Message.Text,
		Type:      "regular",
		ParentID:  req.Message.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	b.mu.Lock()
	b.messages[msg.ID] = msg
	b.mu.Unlock()

	writeJSON(w, map[string]any{"message": msg})
}

func (b *fakeBackend) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	msg := b.messages[r.PathValue("id")]
	msg.Text = req.Message.Text
	msg.UpdatedAt = time.Now().UTC()
	b.messages[msg.ID] = msg
	b.mu.Unlock()

	writeJSON(w, map[string]any{"message": msg})
}

func (b *fakeBackend) handleDelete(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	b.mu.Lock()
	msg := b.messages[r.PathValue("id")]
	msg.DeletedAt = &now
	b.messages[msg.ID] = msg
	b.mu.Unlock()

	writeJSON(w, map[string]any{"message": msg})
}

func (b *fakeBackend) handleAddReaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reaction struct {
			Type  string `json:"type"`
			Score int    `json:"score"`
		} `json:"reaction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	writeJSON(w, map[string]any{"reaction": models.Reaction{
		MessageID: r.PathValue("id"),
		UserID:    "u1",
		Type:      req.Reaction.Type,
		Score:     req.Reaction.Score,
		CreatedAt: now,
		UpdatedAt: now,
	}})
}

func (b *fakeBackend) handleEmpty(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{})
}

func (b *fakeBackend) handleReactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	b.mu.Lock()
	all := b.reactions
	b.mu.Unlock()

	page := []models.Reaction{}
	if offset < len(all) {
		page = all[offset:min(offset+limit, len(all))]
	}

	writeJSON(w, map[string]any{"reactions": page})
}

func (b *fakeBackend) handleQuery(w http.ResponseWriter, _ *http.Request) {
	b.queryCalls.Add(1)

	b.mu.Lock()
	channels := b.channels
	b.mu.Unlock()

	writeJSON(w, map[string]any{"channels": channels})
}

func (b *fakeBackend) handleWatch(w http.ResponseWriter, r *http.Request) {
	b.watchCalls.Add(1)
	cid := r.PathValue("type") + ":" + r.PathValue("id")

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.channels {
		if p.Channel.CID == cid {
			writeJSON(w, p)
			return
		}
	}

	writeJSON(w, models.ChannelPayload{Channel: models.Channel{CID: cid, Type: r.PathValue("type"), ID: r.PathValue("id")}})
}

func (b *fakeBackend) handleSync(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"events": []models.Event{}})
}

func (b *fakeBackend) setChannels(ps ...models.ChannelPayload) {
	b.mu.Lock()
	b.channels = ps
	b.mu.Unlock()
}

func (b *fakeBackend) setReactions(rs ...models.Reaction) {
	b.mu.Lock()
	b.reactions = rs
	b.mu.Unlock()
}

type clientOption func(*Options)

func passive() clientOption {
	return func(o *Options) { o.Active = false }
}

func newTestClient(t *testing.T, b *fakeBackend, opts ...clientOption) *Client {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	o := Options{
		APIKey:              "key-1",
		BaseURL:             b.srv.URL,
		WSURL:               config.DeriveWSURL(b.srv.URL),
		Store:               st,
		LocalStorageEnabled: true,
		Active:              true,
		WaitTimeout:         2 * time.Second,
	}
	for _, fn := range opts {
		fn(&o)
	}

	c, err := New(o)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return c
}

func staticProvider(calls *atomic.Int32) auth.TokenProvider {
	return func(context.Context) (auth.Token, error) {
		if calls != nil {
			calls.Add(1)
		}

		return auth.Token{Raw: "jwt-u1", UserID: "u1"}, nil
	}
}

func connect(t *testing.T, c *Client) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.ConnectUser(ctx, auth.UserInfo{ID: "u1", Name: "Ada"}, staticProvider(nil)))

	// Let the sync pass started by the connection finish.
	c.bg.Wait()
}

func channel(cid string, lastMessage time.Time) models.ChannelPayload {
	typ, id, _ := models.SplitCID(cid)

	return models.ChannelPayload{Channel: models.Channel{
		CID:           cid,
		Type:          typ,
		ID:            id,
		Name:          fmt.Sprintf("channel %s", id),
		CreatedAt:     lastMessage.Add(-time.Hour),
		LastMessageAt: lastMessage,
	}}
}
