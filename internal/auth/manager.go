// Package auth owns the session of the current chat user: who is logged
// in, which token is in use, and how a new token is obtained.
package auth

//go:generate mockgen -destination=mock_updater_test.go -package=auth . ClientUpdater,GuestTokenFetcher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	errs "github.com/alexjbarnes/chat-sync/internal/errors"
	"github.com/alexjbarnes/chat-sync/internal/logging"
	"github.com/alexjbarnes/chat-sync/internal/retry"
	"github.com/alexjbarnes/chat-sync/internal/waiter"
	"golang.org/x/sync/singleflight"
)

const (
	// MaxTokenRetries is how many times a failing token provider is
	// retried before the failure is surfaced. The provider is therefore
	// called at most MaxTokenRetries+1 times per acquisition.
	MaxTokenRetries = 9

	// refreshLeeway is how long before expiry a token is refreshed.
	refreshLeeway = 30 * time.Second
)

// TokenProvider fetches a fresh token for the current user.
type TokenProvider func(ctx context.Context) (Token, error)

// UserInfo describes the user being connected.
type UserInfo struct {
	ID   string
	Name string
}

// Environment classifies a connection relative to the previous session.
type Environment int

const (
	FirstConnection Environment = iota
	NewUser
	NewToken
)

func (e Environment) String() string {
	switch e {
	case FirstConnection:
		return "first_connection"
	case NewUser:
		return "new_user"
	case NewToken:
		return "new_token"
	}

	return "unknown"
}

// EnvironmentFor derives the Environment from the previous and new user.
func EnvironmentFor(previousUserID, newUserID string) Environment {
	switch {
	case previousUserID == "":
		return FirstConnection
	case previousUserID != newUserID:
		return NewUser
	default:
		return NewToken
	}
}

// ClientUpdater applies session changes to the rest of the client.
type ClientUpdater interface {
	// LogOut tears down the previous user's session.
	LogOut(ctx context.Context)
	// Prepare readies the client for token before connecting.
	Prepare(ctx context.Context, env Environment, token Token, info *UserInfo) error
	// Connect opens the real-time connection.
	Connect(ctx context.Context) error
}

// GuestTokenFetcher obtains tokens for guest users from the backend.
type GuestTokenFetcher interface {
	GuestToken(ctx context.Context, info UserInfo) (Token, error)
}

// Options configures a Manager.
type Options struct {
	// UserID is the user persisted from a previous session, if any.
	UserID  string
	Updater ClientUpdater
	Guests  GuestTokenFetcher
	Retry   retry.Strategy
	Logger  *slog.Logger
	// OnRefresh observes the outcome of every token acquisition.
	OnRefresh func(error)
}

type connectCall struct {
	done chan struct{}
	err  error
}

// Manager is the session and token manager. All methods are safe for
// concurrent use.
type Manager struct {
	updater   ClientUpdater
	guests    GuestTokenFetcher
	retry     retry.Strategy
	logger    *slog.Logger
	onRefresh func(error)

	mu            sync.Mutex
	userID        string
	token         *Token
	provider      TokenProvider
	refreshing    bool
	generation    uint64
	connecting    *connectCall
	refreshCancel context.CancelFunc
	expiryTimer   *time.Timer

	waiters *waiter.Queue[Token]
	flights singleflight.Group
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	rs := opts.Retry
	if rs == nil {
		rs = retry.NewBackoff()
	}

	return &Manager{
		updater:   opts.Updater,
		guests:    opts.Guests,
		retry:     rs,
		logger:    logger,
		onRefresh: opts.OnRefresh,
		userID:    opts.UserID,
		waiters:   waiter.New[Token](),
	}
}

// CurrentUserID returns the logged-in user id, or "".
func (m *Manager) CurrentUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.userID
}

// CurrentToken returns the token in use, if any.
func (m *Manager) CurrentToken() (Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil {
		return Token{}, false
	}

	return *m.token, true
}

// HasTokenProvider reports whether a provider is set.
func (m *Manager) HasTokenProvider() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.provider != nil
}

// ConnectUser stores provider, acquires a token with it, prepares the
// client for the resulting environment and connects. Concurrent calls
// share one attempt; the newest provider is kept for later acquisitions.
func (m *Manager) ConnectUser(ctx context.Context, info *UserInfo, provider TokenProvider) error {
	m.mu.Lock()
	m.provider = provider

	if c := m.connecting; c != nil {
		m.mu.Unlock()

		select {
		case <-c.done:
			return c.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c := &connectCall{done: make(chan struct{})}
	m.connecting = c
	generation := m.generation
	m.mu.Unlock()

	c.err = m.connect(ctx, info, generation)

	m.mu.Lock()
	m.connecting = nil
	m.mu.Unlock()
	close(c.done)

	return c.err
}

// ConnectGuestUser logs out any previous session and connects a guest
// whose tokens come from the backend.
func (m *Manager) ConnectGuestUser(ctx context.Context, info UserInfo) error {
	if m.guests == nil {
		return fmt.Errorf("connecting guest: %w", errs.ErrMissingTokenProvider)
	}

	m.LogOutUser(ctx)

	return m.ConnectUser(ctx, &info, func(ctx context.Context) (Token, error) {
		return m.guests.GuestToken(ctx, info)
	})
}

// ConnectAnonymousUser logs out any previous session and connects an
// anonymous user.
func (m *Manager) ConnectAnonymousUser(ctx context.Context) error {
	m.LogOutUser(ctx)

	tok := AnonymousToken()

	return m.ConnectUser(ctx, nil, func(context.Context) (Token, error) {
		return tok, nil
	})
}

// connect runs one connection attempt for the session identified by
// generation. A logout while it runs wins: the attempt returns
// ErrLoggedOut without installing its user or token.
func (m *Manager) connect(ctx context.Context, info *UserInfo, generation uint64) error {
	tok, err := m.acquire(ctx, "")

	m.mu.Lock()
	previous := m.userID
	stale := m.generation != generation
	m.mu.Unlock()

	if stale {
		return errs.ErrLoggedOut
	}

	if err != nil {
		m.waiters.Cancel(fmt.Errorf("%w: %v", errs.ErrMissingToken, err))
		return fmt.Errorf("getting token: %w", err)
	}

	env := EnvironmentFor(previous, tok.UserID)

	m.logger.Info("preparing session",
		slog.String("user_id", tok.UserID),
		slog.String("environment", env.String()),
	)

	if env == NewUser {
		m.updater.LogOut(ctx)
	}

	if err := m.updater.Prepare(ctx, env, tok, info); err != nil {
		m.waiters.Cancel(fmt.Errorf("%w: %v", errs.ErrMissingToken, err))
		return fmt.Errorf("preparing environment: %w", err)
	}

	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		return errs.ErrLoggedOut
	}

	m.userID = tok.UserID
	m.installLocked(tok)
	m.mu.Unlock()

	m.waiters.Complete(tok, nil)

	if err := m.updater.Connect(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	return nil
}

// acquire calls the current provider until it succeeds or the retry
// budget is spent. A non-empty expectUserID rejects tokens for any other
// user without retrying.
func (m *Manager) acquire(ctx context.Context, expectUserID string) (Token, error) {
	for {
		m.mu.Lock()
		provider := m.provider
		m.mu.Unlock()

		if provider == nil {
			return Token{}, errs.ErrMissingTokenProvider
		}

		tok, err := provider(ctx)
		if err == nil && expectUserID != "" && tok.UserID != expectUserID {
			m.retry.ResetConsecutiveFailures()
			m.report(errs.ErrUserDoesNotExist)

			return Token{}, errs.ErrUserDoesNotExist
		}

		if err == nil {
			m.retry.ResetConsecutiveFailures()
			m.report(nil)

			return tok, nil
		}

		m.report(err)

		if m.retry.ConsecutiveFailures() >= MaxTokenRetries {
			m.retry.ResetConsecutiveFailures()
			return Token{}, err
		}

		delay := m.retry.NextRetryDelay()

		m.logger.Warn("token provider failed, retrying",
			slog.String("error", err.Error()),
			slog.Duration("backoff", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Token{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func (m *Manager) report(err error) {
	if m.onRefresh != nil {
		m.onRefresh(err)
	}
}

// RefreshToken obtains a new token from the provider. Concurrent calls
// within one session share a single acquisition and its result.
func (m *Manager) RefreshToken(ctx context.Context) error {
	m.mu.Lock()
	if m.provider == nil {
		m.mu.Unlock()
		return errs.ErrMissingTokenProvider
	}

	key := strconv.FormatUint(m.generation, 10)
	m.mu.Unlock()

	_, err, _ := m.flights.Do(key, func() (any, error) {
		return nil, m.refresh(ctx)
	})

	return err
}

func (m *Manager) refresh(ctx context.Context) error {
	flightCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	m.mu.Lock()
	m.refreshing = true
	m.refreshCancel = cancel
	expect := m.userID
	generation := m.generation
	m.mu.Unlock()

	m.logger.Info("refreshing token", slog.String("user_id", expect))

	tok, err := m.acquire(flightCtx, expect)

	m.mu.Lock()
	m.refreshing = false
	m.refreshCancel = nil
	stale := m.generation != generation
	m.mu.Unlock()

	if stale {
		return errs.ErrLoggedOut
	}

	if err != nil {
		m.waiters.Cancel(fmt.Errorf("%w: %v", errs.ErrMissingToken, err))
		return fmt.Errorf("refreshing token: %w", err)
	}

	m.setToken(tok)

	return nil
}

// SetToken installs tok directly. A token for a different user than the
// logged-in one is rejected and fails pending waiters.
func (m *Manager) SetToken(tok Token) error {
	m.mu.Lock()
	if m.userID != "" && tok.UserID != m.userID {
		m.mu.Unlock()
		m.waiters.Cancel(errs.ErrUserDoesNotExist)

		return errs.ErrUserDoesNotExist
	}

	m.userID = tok.UserID
	cancel := m.refreshCancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	m.setToken(tok)

	return nil
}

func (m *Manager) setToken(tok Token) {
	m.mu.Lock()
	m.installLocked(tok)
	m.mu.Unlock()

	m.waiters.Complete(tok, nil)
}

func (m *Manager) installLocked(tok Token) {
	m.token = &tok
	m.refreshing = false
	m.scheduleExpiryLocked(tok)
}

func (m *Manager) scheduleExpiryLocked(tok Token) {
	if m.expiryTimer != nil {
		m.expiryTimer.Stop()
		m.expiryTimer = nil
	}

	if tok.ExpiresAt.IsZero() {
		return
	}

	d := max(time.Until(tok.ExpiresAt)-refreshLeeway, 0)
	m.expiryTimer = time.AfterFunc(d, func() {
		if err := m.RefreshToken(context.Background()); err != nil {
			m.logger.Warn("scheduled token refresh failed", slog.String("error", err.Error()))
		}
	})
}

// ProvideToken calls completion with the current token, immediately if
// one is available and not being refreshed, otherwise once a token is
// set. It fails with ErrWaiterTimeout after timeout.
func (m *Manager) ProvideToken(timeout time.Duration, completion waiter.Completion[Token]) {
	m.mu.Lock()
	if m.token != nil && !m.refreshing {
		tok := *m.token
		m.mu.Unlock()
		completion(tok, nil)

		return
	}

	m.waiters.Add(timeout, completion)
	m.mu.Unlock()
}

// Token is the blocking form of ProvideToken.
func (m *Manager) Token(ctx context.Context, timeout time.Duration) (Token, error) {
	return waiter.Await(ctx, func(c waiter.Completion[Token]) {
		m.ProvideToken(timeout, c)
	})
}

// ClearTokenProvider forgets the provider. The current token is kept.
func (m *Manager) ClearTokenProvider() {
	m.mu.Lock()
	m.provider = nil
	m.mu.Unlock()
}

// LogOutUser clears the session. Pending token waiters fail with
// ErrLoggedOut and any refresh in flight is abandoned.
func (m *Manager) LogOutUser(_ context.Context) {
	m.mu.Lock()
	m.userID = ""
	m.token = nil
	m.provider = nil
	m.refreshing = false
	m.generation++

	if m.expiryTimer != nil {
		m.expiryTimer.Stop()
		m.expiryTimer = nil
	}

	cancel := m.refreshCancel
	m.refreshCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	m.waiters.Cancel(errs.ErrLoggedOut)
}
