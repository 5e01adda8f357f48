// Package transport maintains the real-time websocket connection to the
// chat backend and turns its frames into connection states and events.
package transport

//go:generate mockgen -destination=mock_wsconn_test.go -package=transport -mock_names=wsConn=MockWSConn . wsConn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alexjbarnes/chat-sync/internal/auth"
	"github.com/alexjbarnes/chat-sync/internal/connection"
	errs "github.com/alexjbarnes/chat-sync/internal/errors"
	"github.com/alexjbarnes/chat-sync/internal/logging"
	"github.com/alexjbarnes/chat-sync/internal/models"
	"github.com/alexjbarnes/chat-sync/internal/retry"
	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

const (
	pingAfter        = 25 * time.Second
	noPongAfter      = 55 * time.Second
	heartbeatCheckAt = 5 * time.Second
	readLimit        = 4 * 1024 * 1024
	tokenWaitTimeout = 10 * time.Second
)

var errNoPong = errors.New("no message received within heartbeat window")

// wsConn abstracts the websocket so the client can be tested without a
// server. *websocket.Conn satisfies this interface.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

// Dialer opens a websocket to url.
type Dialer func(ctx context.Context, url string) (wsConn, error)

// TokenSource supplies the token used to authenticate the connection.
type TokenSource interface {
	Token(ctx context.Context, timeout time.Duration) (auth.Token, error)
}

// inboundMsg wraps a message read by the reader goroutine.
type inboundMsg struct {
	typ  websocket.MessageType
	data []byte
	err  error
}

// Options configures a Client.
type Options struct {
	// URL is the websocket base, e.g. wss://chat.stream-io-api.com.
	URL      string
	APIKey   string
	UserName string
	Tokens   TokenSource
	Retry    retry.Strategy
	Dial     Dialer
	Logger   *slog.Logger
	// OnState receives every state transition, in order.
	OnState func(connection.State)
	// OnEvent receives every decoded event other than health checks.
	OnEvent func(models.Event)
}

// Client is the websocket transport. Connect starts a background loop
// that dials, waits for the connection id and reconnects with backoff
// until Disconnect is called or the server rejects the token.
//
// A reader goroutine feeds inbound frames to a single event loop that
// owns all writes to the connection.
type Client struct {
	baseURL  string
	apiKey   string
	userName string
	tokens   TokenSource
	retry    retry.Strategy
	dial     Dialer
	logger   *slog.Logger
	onState  func(connection.State)
	onEvent  func(models.Event)

	mu     sync.Mutex
	state  connection.State
	cancel context.CancelFunc
	done   chan struct{}

	// stateMu serializes OnState callbacks so they arrive in order.
	stateMu sync.Mutex

	lastMessage time.Time
	lastMsgMu   sync.Mutex
}

// New creates a transport Client in the initialized state.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	rs := opts.Retry
	if rs == nil {
		rs = retry.NewBackoff()
	}

	dial := opts.Dial
	if dial == nil {
		dial = dialWebsocket
	}

	return &Client{
		baseURL:  strings.TrimRight(opts.URL, "/"),
		apiKey:   opts.APIKey,
		userName: opts.UserName,
		tokens:   opts.Tokens,
		retry:    rs,
		dial:     dial,
		logger:   logger,
		onState:  opts.OnState,
		onEvent:  opts.OnEvent,
		state:    connection.InitializedState(),
	}
}

func dialWebsocket(ctx context.Context, u string) (wsConn, error) {
	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPHeader: http.Header{"User-Agent": []string{"chat-sync"}},
	})
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// SetUserName sets the display name sent on the next connect.
func (c *Client) SetUserName(name string) {
	c.mu.Lock()
	c.userName = name
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() connection.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Connect starts the connection loop unless it is already running. It
// does not wait for the connection to be established.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.setState(connection.ConnectingState())

	go func() {
		defer close(done)
		c.run(loopCtx)
	}()
}

// Disconnect stops the connection loop and reports the disconnection as
// caused by source.
func (c *Client) Disconnect(source connection.Source) {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if done == nil {
		return
	}

	c.setState(connection.DisconnectingState(source))
	cancel()
	<-done

	c.mu.Lock()
	if c.done == done {
		c.cancel, c.done = nil, nil
	}
	c.mu.Unlock()

	c.setState(connection.DisconnectedState(source))
}

func (c *Client) setState(s connection.State) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	c.mu.Lock()
	c.state = s
	c.mu.Unlock()

	if c.onState != nil {
		c.onState(s)
	}
}

// run dials and serves connections until ctx ends or the server rejects
// the token.
func (c *Client) run(ctx context.Context) {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}

		source := sourceFor(err)
		c.logger.Warn("connection lost",
			slog.String("source", source.Kind.String()),
			slog.String("error", err.Error()),
		)
		if errs.IsInvalidToken(err) {
			// A fresh token is needed; the session layer reconnects. The
			// loop is released before the state is published so that a
			// Connect made from the state callback starts a new loop.
			c.mu.Lock()
			cancel := c.cancel
			c.cancel, c.done = nil, nil
			c.mu.Unlock()

			c.setState(connection.DisconnectedState(source))

			if cancel != nil {
				cancel()
			}

			return
		}

		c.setState(connection.DisconnectedState(source))

		delay := c.retry.NextRetryDelay()
		c.logger.Info("reconnecting", slog.Duration("backoff", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		c.setState(connection.ConnectingState())
	}
}

// sourceFor classifies why a session ended.
func sourceFor(err error) connection.Source {
	if errors.Is(err, errNoPong) {
		return connection.Source{Kind: connection.NoPongReceived}
	}

	var apiErr *errs.APIError
	if errors.As(err, &apiErr) {
		return connection.Source{Kind: connection.ServerInitiated, Err: apiErr}
	}

	return connection.Source{Kind: connection.ServerInitiated, Err: err}
}

// connectURL builds the connect URL carrying the user payload, api key
// and token.
func (c *Client) connectURL(tok auth.Token) (string, error) {
	c.mu.Lock()
	name := c.userName
	c.mu.Unlock()

	payload, err := json.Marshal(map[string]any{
		"user_id":                         tok.UserID,
		"user_details":                    map[string]string{"id": tok.UserID, "name": name},
		"server_determines_connection_id": true,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling connect payload: %w", err)
	}

	q := url.Values{}
	q.Set("json", string(payload))
	q.Set("api_key", c.apiKey)

	if tok.IsAnonymous() {
		q.Set("stream-auth-type", "anonymous")
	} else {
		q.Set("stream-auth-type", "jwt")
		q.Set("authorization", tok.Raw)
	}

	return c.baseURL + "/connect?" + q.Encode(), nil
}

// session runs one connection from dial to failure.
func (c *Client) session(ctx context.Context) error {
	tok, err := c.tokens.Token(ctx, tokenWaitTimeout)
	if err != nil {
		return fmt.Errorf("waiting for token: %w", err)
	}

	u, err := c.connectURL(tok)
	if err != nil {
		return err
	}

	conn, err := c.dial(ctx, u)
	if err != nil {
		return &errs.ConnectivityError{Err: fmt.Errorf("dialing websocket: %w", err)}
	}

	conn.SetReadLimit(readLimit)
	c.touchLastMessage()
	c.setState(connection.WaitingForConnectionIDState())

	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()

	inbound := startReader(connCtx, conn)

	err = c.eventLoop(connCtx, conn, inbound)
	if ctx.Err() != nil {
		conn.Close(websocket.StatusNormalClosure, "bye")
	} else {
		conn.Close(websocket.StatusGoingAway, "reconnecting")
	}

	return err
}

// startReader reads frames into a fresh channel until an error occurs.
// The goroutine captures its own channel so a stale reader cannot feed
// the next connection.
func startReader(ctx context.Context, conn wsConn) <-chan inboundMsg {
	ch := make(chan inboundMsg, 64)

	go func() {
		for {
			typ, data, err := conn.Read(ctx)
			select {
			case ch <- inboundMsg{typ: typ, data: data, err: err}:
			case <-ctx.Done():
				return
			}

			if err != nil {
				return
			}
		}
	}()

	return ch
}

func (c *Client) eventLoop(ctx context.Context, conn wsConn, inbound <-chan inboundMsg) error {
	ticker := time.NewTicker(heartbeatCheckAt)
	defer ticker.Stop()

	connectionID := ""

	for {
		select {
		case msg := <-inbound:
			if msg.err != nil {
				return &errs.ConnectivityError{Err: fmt.Errorf("reading message: %w", msg.err)}
			}

			c.touchLastMessage()

			if msg.typ == websocket.MessageBinary {
				c.logger.Debug("unexpected binary frame", slog.Int("bytes", len(msg.data)))
				continue
			}

			id, err := c.handleInbound(msg.data, connectionID)
			if err != nil {
				return err
			}

			if connectionID == "" && id != "" {
				connectionID = id
				c.retry.ResetConsecutiveFailures()
				c.logger.Info("websocket connected", slog.String("connection_id", id))
				c.setState(connection.ConnectedState(id))
			}

		case <-ticker.C:
			c.lastMsgMu.Lock()
			elapsed := time.Since(c.lastMessage)
			c.lastMsgMu.Unlock()

			if elapsed > noPongAfter {
				return errNoPong
			}

			if elapsed > pingAfter && connectionID != "" {
				if err := writeJSON(ctx, conn, []map[string]string{{"type": "health.check", "client_id": connectionID}}); err != nil {
					return &errs.ConnectivityError{Err: fmt.Errorf("sending health check: %w", err)}
				}
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleInbound processes one text frame. It returns the connection id
// carried by a health check, or the server error carried by an error
// frame.
func (c *Client) handleInbound(data []byte, connectionID string) (string, error) {
	if !gjson.ValidBytes(data) {
		c.logger.Warn("dropping malformed frame", slog.Int("bytes", len(data)))
		return "", nil
	}

	if e := gjson.GetBytes(data, "error"); e.Exists() {
		apiErr := &errs.APIError{
			Code:       int(e.Get("code").Int()),
			StatusCode: int(e.Get("StatusCode").Int()),
			Message:    e.Get("message").String(),
		}

		return "", fmt.Errorf("server closed connection: %w", apiErr)
	}

	typ := gjson.GetBytes(data, "type").String()
	if typ == "health.check" {
		return gjson.GetBytes(data, "connection_id").String(), nil
	}

	if connectionID == "" {
		c.logger.Debug("event before connection id", slog.String("type", typ))
	}

	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		c.logger.Warn("dropping undecodable event",
			slog.String("type", typ),
			slog.String("error", err.Error()),
		)

		return "", nil
	}

	ev.Raw = append(json.RawMessage(nil), data...)

	if c.onEvent != nil {
		c.onEvent(ev)
	}

	return "", nil
}

func (c *Client) touchLastMessage() {
	c.lastMsgMu.Lock()
	c.lastMessage = time.Now()
	c.lastMsgMu.Unlock()
}

// writeJSON marshals v and writes it as a text frame. Only called from
// the event loop.
func writeJSON(ctx context.Context, conn wsConn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling message: %w", err)
	}

	return conn.Write(ctx, websocket.MessageText, data)
}
