// Package api is the REST client for the chat backend.
package api

//go:generate mockgen -destination=mock_api_test.go -package=api . TokenSource,ConnectionIDSource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/alexjbarnes/chat-sync/internal/auth"
	errs "github.com/alexjbarnes/chat-sync/internal/errors"
	"github.com/alexjbarnes/chat-sync/internal/logging"
	"github.com/tidwall/gjson"
)

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout applies to the default HTTP client.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads.
	maxAPIResponseBytes = 1024 * 1024

	// DefaultWaitTimeout bounds how long a request waits for a token or
	// a connection id.
	DefaultWaitTimeout = 10 * time.Second
)

// TokenSource supplies tokens for authenticated requests.
type TokenSource interface {
	Token(ctx context.Context, timeout time.Duration) (auth.Token, error)
	RefreshToken(ctx context.Context) error
}

// ConnectionIDSource supplies the id of the live websocket connection.
type ConnectionIDSource interface {
	WaitConnectionID(ctx context.Context, timeout time.Duration) (string, error)
}

// Doer sends one endpoint and decodes the response into result.
type Doer interface {
	Do(ctx context.Context, ep Endpoint, result any) error
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	APIKey      string
	HTTPClient  *http.Client
	Tokens      TokenSource
	Connections ConnectionIDSource
	WaitTimeout time.Duration
	Logger      *slog.Logger
	// OnRequest is called after every attempt with the endpoint kind and
	// the resulting error.
	OnRequest func(kind Kind, err error)
}

// Client talks to the chat REST API. Ordinary requests are held while the
// client is in recovery mode; recovery requests always go through.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	tokens      TokenSource
	conns       ConnectionIDSource
	waitTimeout time.Duration
	logger      *slog.Logger
	onRequest   func(Kind, error)

	mu       sync.Mutex
	recovery bool
	resume   chan struct{}
	flushed  chan struct{}
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host, so the auth header never leaks to a
// third-party domain.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewClient creates an API client. If opts.HTTPClient is nil, a client
// with a 30-second timeout and same-host redirect policy is used.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	waitTimeout := opts.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		tokens:      opts.Tokens,
		conns:       opts.Connections,
		waitTimeout: waitTimeout,
		logger:      logger,
		onRequest:   opts.OnRequest,
		flushed:     make(chan struct{}),
	}
}

// EnterRecoveryMode holds ordinary requests until ExitRecoveryMode.
func (c *Client) EnterRecoveryMode() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recovery {
		return
	}

	c.recovery = true
	c.resume = make(chan struct{})
	c.logger.Debug("api entered recovery mode")
}

// ExitRecoveryMode releases held requests.
func (c *Client) ExitRecoveryMode() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.recovery {
		return
	}

	c.recovery = false
	close(c.resume)
	c.resume = nil
	c.logger.Debug("api exited recovery mode")
}

// InRecoveryMode reports whether ordinary requests are being held.
func (c *Client) InRecoveryMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.recovery
}

// FlushRequestsQueue fails every request currently held by recovery mode
// with a connectivity error.
func (c *Client) FlushRequestsQueue() {
	c.mu.Lock()
	close(c.flushed)
	c.flushed = make(chan struct{})
	c.mu.Unlock()
}

// Do sends ep, waiting first if the client is in recovery mode.
func (c *Client) Do(ctx context.Context, ep Endpoint, result any) error {
	c.mu.Lock()
	resume, flushed := c.resume, c.flushed
	c.mu.Unlock()

	if resume != nil {
		select {
		case <-resume:
		case <-flushed:
			return &errs.ConnectivityError{Err: fmt.Errorf("%s: request queue flushed", ep.Kind)}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return c.send(ctx, ep, result)
}

// Recovery returns a Doer that bypasses the recovery gate.
func (c *Client) Recovery() Doer {
	return recoveryDoer{c: c}
}

type recoveryDoer struct {
	c *Client
}

func (r recoveryDoer) Do(ctx context.Context, ep Endpoint, result any) error {
	return r.c.send(ctx, ep, result)
}

// send performs ep. An expired token is refreshed and the request is
// retried once.
func (c *Client) send(ctx context.Context, ep Endpoint, result any) error {
	err := c.attempt(ctx, ep, result)
	if err != nil && errs.IsExpiredToken(err) && ep.RequiresToken && c.tokens != nil {
		c.logger.Info("token expired, refreshing before retry", slog.String("endpoint", string(ep.Kind)))

		if rerr := c.tokens.RefreshToken(ctx); rerr != nil {
			return fmt.Errorf("refreshing token for %s: %w", ep.Kind, rerr)
		}

		err = c.attempt(ctx, ep, result)
	}

	return err
}

func (c *Client) attempt(ctx context.Context, ep Endpoint, result any) error {
	err := c.roundTrip(ctx, ep, result)
	if c.onRequest != nil {
		c.onRequest(ep.Kind, err)
	}

	return err
}

func (c *Client) roundTrip(ctx context.Context, ep Endpoint, result any) error {
	query := url.Values{}
	query.Set("api_key", c.apiKey)

	for k, v := range ep.Query {
		query.Set(k, v)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Stream-Auth-Type", "jwt")

	if ep.RequiresToken {
		if c.tokens == nil {
			return fmt.Errorf("%s: %w", ep.Kind, errs.ErrMissingTokenProvider)
		}

		tok, err := c.tokens.Token(ctx, c.waitTimeout)
		if err != nil {
			return fmt.Errorf("%s: waiting for token: %w", ep.Kind, err)
		}

		if tok.IsAnonymous() {
			header.Set("Stream-Auth-Type", "anonymous")
		} else {
			header.Set("Authorization", tok.Raw)
		}
	}

	if ep.RequiresConnectionID {
		if c.conns == nil {
			return fmt.Errorf("%s: %w", ep.Kind, errs.ErrMissingConnectionID)
		}

		id, err := c.conns.WaitConnectionID(ctx, c.waitTimeout)
		if err != nil {
			return fmt.Errorf("%s: waiting for connection id: %w", ep.Kind, err)
		}

		query.Set("connection_id", id)
	}

	var body io.Reader
	if len(ep.Body) > 0 {
		body = bytes.NewReader(ep.Body)
	}

	req, err := http.NewRequestWithContext(ctx, ep.Method, c.baseURL+ep.Path+"?"+query.Encode(), body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header = header

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return &errs.ConnectivityError{Err: fmt.Errorf("sending request to %s: %w", ep.Path, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return &errs.ConnectivityError{Err: fmt.Errorf("reading response from %s: %w", ep.Path, err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(ep, resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response from %s: %w: %w", ep.Path, errs.ErrAPIResponse, err)
		}
	}

	return nil
}

// decodeAPIError builds an APIError from a failed response. Bodies that
// are not structured errors are kept, sanitized, as the message.
func decodeAPIError(ep Endpoint, status int, body []byte) error {
	apiErr := &errs.APIError{StatusCode: status}

	if gjson.ValidBytes(body) {
		apiErr.Code = int(gjson.GetBytes(body, "code").Int())
		apiErr.Message = gjson.GetBytes(body, "message").String()
	}

	if apiErr.Message == "" {
		apiErr.Message = sanitizeResponseBody(body)
	}

	if ep.Kind == KindMissingEvents && strings.Contains(apiErr.Message, "Too many events") {
		return fmt.Errorf("%s: %w: %w", ep.Kind, errs.ErrTooManyEvents, apiErr)
	}

	return fmt.Errorf("%s: %w: %w", ep.Kind, errs.ErrAPIRequest, apiErr)
}

// sanitizeResponseBody truncates a response body to 256 bytes and
// replaces non-printable characters.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// GuestToken requests a token for a guest user.
func (c *Client) GuestToken(ctx context.Context, info auth.UserInfo) (auth.Token, error) {
	var resp GuestTokenResponse
	if err := c.Recovery().Do(ctx, GuestTokenEndpoint(info.ID, info.Name), &resp); err != nil {
		return auth.Token{}, err
	}

	if resp.AccessToken == "" {
		return auth.Token{}, fmt.Errorf("guest token: %w: empty access_token", errs.ErrAPIResponse)
	}

	tok, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		return auth.Token{Raw: resp.AccessToken, UserID: resp.User.ID}, nil
	}

	return tok, nil
}
