// Package connection coordinates the real-time transport lifecycle with
// everything that depends on having a live connection id.
package connection

//go:generate mockgen -destination=mock_connection_test.go -package=connection . Transport,RequestFlusher,RecoveryCanceller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	errs "github.com/alexjbarnes/chat-sync/internal/errors"
	"github.com/alexjbarnes/chat-sync/internal/logging"
	"github.com/alexjbarnes/chat-sync/internal/waiter"
)

// Transport is the real-time connection the coordinator drives.
type Transport interface {
	Connect(ctx context.Context)
	Disconnect(source Source)
	State() State
}

// RequestFlusher fails requests waiting on the connection.
type RequestFlusher interface {
	FlushRequestsQueue()
}

// RecoveryCanceller aborts an in-flight reconnection sync.
type RecoveryCanceller interface {
	CancelRecoveryFlow()
}

// Options configures a Coordinator.
type Options struct {
	Transport Transport
	Requests  RequestFlusher
	Recovery  RecoveryCanceller
	// Active clients own a real-time connection. Passive clients never
	// connect and always report disconnected.
	Active bool
	Logger *slog.Logger
	// OnStatus observes every status change.
	OnStatus func(Status)
	// WaitTimeout bounds Connect. Defaults to DefaultWaitTimeout.
	WaitTimeout time.Duration
}

// DefaultWaitTimeout bounds Connect when Options.WaitTimeout is unset.
const DefaultWaitTimeout = 10 * time.Second

// Coordinator tracks the connection status and id and resolves callers
// waiting for an id. All methods are safe for concurrent use.
type Coordinator struct {
	transport Transport
	requests  RequestFlusher
	recovery  RecoveryCanceller
	active    bool
	logger    *slog.Logger
	onStatus  func(Status)
	timeout   time.Duration

	mu           sync.RWMutex
	connectionID string
	status       Status

	waiters *waiter.Queue[string]
	// connects holds Connect callers. Unlike waiters they are also
	// released by a token rejection that no refresh will fix.
	connects *waiter.Queue[string]
}

// NewCoordinator creates a Coordinator in the initialized status.
func NewCoordinator(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	timeout := opts.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	return &Coordinator{
		transport: opts.Transport,
		requests:  opts.Requests,
		recovery:  opts.Recovery,
		active:    opts.Active,
		logger:    logger,
		onStatus:  opts.OnStatus,
		timeout:   timeout,
		status:    Status{Kind: StatusInitialized},
		waiters:   waiter.New[string](),
		connects:  waiter.New[string](),
	}
}

// ConnectionID returns the current id, or "".
func (c *Coordinator) ConnectionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.connectionID
}

// Status returns the current connection status.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.status
}

// IsActive reports whether the client owns a real-time connection.
func (c *Coordinator) IsActive() bool {
	return c.active
}

// Connect starts the transport and waits for a connection id. It returns
// immediately when an id already exists. A connection that does not
// produce an id within the wait timeout, or that the server rejects for
// a token it will not accept, fails with ConnectionNotSuccessfulError.
func (c *Coordinator) Connect(ctx context.Context) error {
	if !c.active {
		return errs.ErrClientInactive
	}

	done := make(chan error, 1)

	c.mu.Lock()
	if c.connectionID != "" {
		c.mu.Unlock()
		return nil
	}

	c.connects.Add(c.timeout, func(id string, err error) {
		done <- c.connectResult(id, err)
	})
	c.mu.Unlock()

	c.transport.Connect(ctx)

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) connectResult(id string, err error) error {
	var cne *errs.ConnectionNotSuccessfulError

	switch {
	case err == nil && id != "":
		return nil
	case errors.As(err, &cne):
		return cne
	case errors.Is(err, errs.ErrWaiterTimeout):
		return &errs.ConnectionNotSuccessfulError{Err: err}
	}

	return &errs.ConnectionNotSuccessfulError{Err: c.transport.State().Source.ServerError()}
}

// Disconnect stops the transport. Requests waiting for a connection are
// failed and any reconnection sync is cancelled, even when there was no
// connection to close.
func (c *Coordinator) Disconnect(source Source) {
	c.requests.FlushRequestsQueue()
	c.recovery.CancelRecoveryFlow()

	if c.ConnectionID() == "" || !c.active {
		return
	}

	c.transport.Disconnect(source)
}

// ProvideConnectionID calls completion with the connection id,
// immediately if one exists, otherwise when the transport reaches a
// state that settles it. Waiters resolved without an id receive
// ErrMissingConnectionID.
func (c *Coordinator) ProvideConnectionID(timeout time.Duration, completion waiter.Completion[string]) {
	c.mu.Lock()
	if id := c.connectionID; id != "" {
		c.mu.Unlock()
		completion(id, nil)

		return
	}

	c.waiters.Add(timeout, completion)
	c.mu.Unlock()
}

// WaitConnectionID is the blocking form of ProvideConnectionID.
func (c *Coordinator) WaitConnectionID(ctx context.Context, timeout time.Duration) (string, error) {
	return waiter.Await(ctx, func(done waiter.Completion[string]) {
		c.ProvideConnectionID(timeout, done)
	})
}

// HandleConnectionUpdate applies a transport state change. onExpiredToken
// runs when the server dropped the connection because the token expired.
func (c *Coordinator) HandleConnectionUpdate(state State, onExpiredToken func()) {
	status := StatusFor(state)

	c.mu.Lock()
	changed := c.status.Kind != status.Kind || c.status.Err != status.Err
	c.status = status
	c.mu.Unlock()

	c.logger.Debug("connection state changed",
		slog.String("state", state.String()),
		slog.String("status", status.String()),
	)

	if changed && c.onStatus != nil {
		c.onStatus(status)
	}

	if state.Kind == Disconnected && errs.IsExpiredToken(state.Source.ServerError()) && onExpiredToken != nil {
		c.logger.Info("token expired, refreshing")
		onExpiredToken()
	}

	switch {
	case state.Kind == Connected:
		c.CompleteConnectionIDWaiters(state.ConnectionID)
	case notifiesWaiters(state):
		c.CompleteConnectionIDWaiters("")
	default:
		c.mu.Lock()
		c.connectionID = ""
		c.mu.Unlock()

		// Only an expired token gets refreshed and reconnected. Connect
		// callers must not wait out any other token rejection.
		if err := state.Source.ServerError(); state.Kind == Disconnected && !errs.IsExpiredToken(err) {
			c.connects.Cancel(&errs.ConnectionNotSuccessfulError{Err: err})
		}
	}
}

// CompleteConnectionIDWaiters records id, which may be empty, and
// resolves every pending waiter with it.
func (c *Coordinator) CompleteConnectionIDWaiters(id string) {
	c.mu.Lock()
	c.connectionID = id
	c.mu.Unlock()

	if id == "" {
		c.waiters.Cancel(errs.ErrMissingConnectionID)
		c.connects.Cancel(errs.ErrMissingConnectionID)

		return
	}

	c.waiters.Complete(id, nil)
	c.connects.Complete(id, nil)
}

// ForceInactiveStatus reports disconnected for passive clients, which
// never receive transport updates.
func (c *Coordinator) ForceInactiveStatus() {
	if c.active {
		return
	}

	c.mu.Lock()
	c.status = Status{Kind: StatusDisconnected}
	c.mu.Unlock()

	if c.onStatus != nil {
		c.onStatus(Status{Kind: StatusDisconnected})
	}
}
