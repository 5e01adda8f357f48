// Package chat assembles the sync runtime into a single client: session,
// transport, connection coordinator, reconnection sync, offline queue
// and the event bus all share one store.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alexjbarnes/chat-sync/internal/api"
	"github.com/alexjbarnes/chat-sync/internal/auth"
	"github.com/alexjbarnes/chat-sync/internal/connection"
	errs "github.com/alexjbarnes/chat-sync/internal/errors"
	"github.com/alexjbarnes/chat-sync/internal/events"
	"github.com/alexjbarnes/chat-sync/internal/logging"
	"github.com/alexjbarnes/chat-sync/internal/metrics"
	"github.com/alexjbarnes/chat-sync/internal/models"
	"github.com/alexjbarnes/chat-sync/internal/offline"
	"github.com/alexjbarnes/chat-sync/internal/store"
	"github.com/alexjbarnes/chat-sync/internal/syncer"
	"github.com/alexjbarnes/chat-sync/internal/transport"
)

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseURL string
	// WSURL is the websocket base. The connect path is appended.
	WSURL string
	// Store is required. Use an ephemeral store when local storage is
	// disabled.
	Store               *store.Store
	LocalStorageEnabled bool
	// Active clients own a websocket connection.
	Active      bool
	QueueMaxAge time.Duration
	WaitTimeout time.Duration
	HTTPClient  *http.Client
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Client is the chat sync runtime.
type Client struct {
	store        *store.Store
	logger       *slog.Logger
	metrics      *metrics.Metrics
	localStorage bool

	auth   *auth.Manager
	api    *api.Client
	ws     *transport.Client
	conn   *connection.Coordinator
	queue  *offline.Queue
	syncer *syncer.Synchronizer
	bus    *events.Bus

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// New builds a Client. It does not connect.
func New(opts Options) (*Client, error) {
	if opts.Store == nil {
		return nil, errors.New("chat: store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	var previousUserID string

	err := opts.Store.View(func(tx *store.Tx) error {
		u, err := tx.CurrentUser()
		if u != nil {
			previousUserID = u.ID
		}

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading current user: %w", err)
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())

	c := &Client{
		store:        opts.Store,
		logger:       logger,
		metrics:      opts.Metrics,
		localStorage: opts.LocalStorageEnabled,
		bgCtx:        bgCtx,
		bgCancel:     bgCancel,
	}

	c.auth = auth.NewManager(auth.Options{
		UserID:    previousUserID,
		Updater:   c,
		Guests:    c,
		Logger:    logger.With(slog.String("component", "auth")),
		OnRefresh: opts.Metrics.TokenRefresh,
	})

	c.api = api.NewClient(api.Options{
		BaseURL:     opts.BaseURL,
		APIKey:      opts.APIKey,
		HTTPClient:  opts.HTTPClient,
		Tokens:      c.auth,
		Connections: c,
		WaitTimeout: opts.WaitTimeout,
		Logger:      logger.With(slog.String("component", "api")),
		OnRequest:   opts.Metrics.APIRequest,
	})

	c.bus = events.New(opts.Store, logger.With(slog.String("component", "events")))

	c.ws = transport.New(transport.Options{
		URL:     opts.WSURL,
		APIKey:  opts.APIKey,
		Tokens:  c.auth,
		Logger:  logger.With(slog.String("component", "transport")),
		OnState: c.handleConnectionState,
		OnEvent: c.handleEvent,
	})

	c.queue = offline.New(offline.Options{
		Store:    opts.Store,
		Requests: c.api.Recovery(),
		MaxAge:   opts.QueueMaxAge,
		Logger:   logger.With(slog.String("component", "offline")),
		OnResult: opts.Metrics.QueueResult,
	})

	c.syncer = syncer.New(syncer.Options{
		Store:               opts.Store,
		Requests:            c.api,
		Recovery:            c.api.Recovery(),
		Gate:                c.api,
		Queue:               c.queue,
		LocalStorageEnabled: opts.LocalStorageEnabled,
		Logger:              logger.With(slog.String("component", "syncer")),
		OnPass:              opts.Metrics.SyncPass,
	})

	c.conn = connection.NewCoordinator(connection.Options{
		Transport:   c.ws,
		Requests:    c.api,
		Recovery:    c.syncer,
		Active:      opts.Active,
		Logger:      logger.With(slog.String("component", "connection")),
		OnStatus:    opts.Metrics.ConnectionStatus,
		WaitTimeout: opts.WaitTimeout,
	})

	return c, nil
}

// Close disconnects and waits for background work to stop. The store is
// left open.
func (c *Client) Close() {
	c.conn.Disconnect(connection.Source{Kind: connection.SystemInitiated})
	c.bgCancel()
	c.bg.Wait()
}

func (c *Client) goBackground(name string, fn func(ctx context.Context) error) {
	c.bg.Add(1)

	go func() {
		defer c.bg.Done()

		if err := fn(c.bgCtx); err != nil && c.bgCtx.Err() == nil {
			c.logger.Warn("background task failed",
				slog.String("task", name),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// ConnectUser connects info using tokens from provider.
func (c *Client) ConnectUser(ctx context.Context, info auth.UserInfo, provider auth.TokenProvider) error {
	c.ws.SetUserName(info.Name)
	return c.auth.ConnectUser(ctx, &info, provider)
}

// ConnectGuestUser connects a guest whose token comes from the backend.
func (c *Client) ConnectGuestUser(ctx context.Context, info auth.UserInfo) error {
	c.ws.SetUserName(info.Name)
	return c.auth.ConnectGuestUser(ctx, info)
}

// ConnectAnonymousUser connects without a user.
func (c *Client) ConnectAnonymousUser(ctx context.Context) error {
	c.ws.SetUserName("")
	return c.auth.ConnectAnonymousUser(ctx)
}

// Disconnect closes the connection but keeps the session.
func (c *Client) Disconnect() {
	c.conn.Disconnect(connection.Source{Kind: connection.UserInitiated})
}

// LogOutUser disconnects, forgets the session and wipes local data.
func (c *Client) LogOutUser(ctx context.Context) {
	c.auth.LogOutUser(ctx)
	c.LogOut(ctx)
}

// CurrentUserID returns the connected user's id.
func (c *Client) CurrentUserID() string {
	return c.auth.CurrentUserID()
}

// ConnectionStatus returns the consumer-facing connection status.
func (c *Client) ConnectionStatus() connection.Status {
	return c.conn.Status()
}

// ConnectionID returns the live connection id, or "".
func (c *Client) ConnectionID() string {
	return c.conn.ConnectionID()
}

// WaitConnectionID blocks until a connection id is available.
func (c *Client) WaitConnectionID(ctx context.Context, timeout time.Duration) (string, error) {
	return c.conn.WaitConnectionID(ctx, timeout)
}

// GuestToken fetches a guest token from the backend.
func (c *Client) GuestToken(ctx context.Context, info auth.UserInfo) (auth.Token, error) {
	return c.api.GuestToken(ctx, info)
}

// SetToken replaces the current token, e.g. when a token file changes.
func (c *Client) SetToken(tok auth.Token) error {
	return c.auth.SetToken(tok)
}

// Subscribe registers fn for every applied real-time event.
func (c *Client) Subscribe(fn func(models.Event)) func() {
	return c.bus.Subscribe(fn)
}

// SyncMissingEvents fetches events missed while the app was in the
// background. It is rate limited.
func (c *Client) SyncMissingEvents(ctx context.Context) ([]string, error) {
	return c.syncer.SyncMissingEvents(ctx)
}

// SyncLocalState runs a full reconnection sync pass.
func (c *Client) SyncLocalState(ctx context.Context) error {
	return c.syncer.SyncLocalState(ctx)
}

// QueuedRequests returns the number of requests waiting for
// connectivity.
func (c *Client) QueuedRequests() int {
	return c.queue.Len()
}

// Store returns the local mirror.
func (c *Client) Store() *store.Store {
	return c.store
}

// LogOut tears down the previous user's session.
func (c *Client) LogOut(_ context.Context) {
	c.conn.Disconnect(connection.Source{Kind: connection.UserInitiated})
	c.syncer.LogOut()

	if err := c.store.WipeUserData(); err != nil {
		c.logger.Error("wiping local data", slog.String("error", err.Error()))
	}
}

// Prepare records the user about to connect.
func (c *Client) Prepare(_ context.Context, env auth.Environment, tok auth.Token, info *auth.UserInfo) error {
	if env == auth.NewToken {
		return nil
	}

	user := models.CurrentUser{ID: tok.UserID}
	if info != nil {
		user.Name = info.Name
	}

	err := c.store.Write(func(tx *store.Tx) error {
		if existing, err := tx.CurrentUser(); err != nil {
			return err
		} else if existing != nil && existing.ID == user.ID {
			user.LastSyncAt = existing.LastSyncAt
		}

		return tx.SaveCurrentUser(user)
	})
	if err != nil {
		return fmt.Errorf("saving current user: %w", err)
	}

	return nil
}

// Connect opens the websocket and waits for a connection id. Passive
// clients report disconnected instead.
func (c *Client) Connect(ctx context.Context) error {
	err := c.conn.Connect(ctx)
	if errors.Is(err, errs.ErrClientInactive) {
		c.conn.ForceInactiveStatus()
		return nil
	}

	return err
}

func (c *Client) handleConnectionState(state connection.State) {
	// The pass is started before connection-id waiters are released.
	// Its requests wait for the id like any other.
	if state.Kind == connection.Connected {
		c.goBackground("sync local state", c.syncer.SyncLocalState)
	}

	c.conn.HandleConnectionUpdate(state, func() {
		c.goBackground("token refresh", func(ctx context.Context) error {
			if err := c.auth.RefreshToken(ctx); err != nil {
				return fmt.Errorf("refreshing token: %w", err)
			}

			c.ws.Connect(ctx)

			return nil
		})
	})
}

func (c *Client) handleEvent(ev models.Event) {
	c.metrics.Event(ev.Type)

	if err := c.bus.Publish(ev); err != nil {
		c.logger.Warn("applying event",
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}
