package errors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Waiter and session errors.
var (
	ErrWaiterTimeout           = errors.New("timed out waiting for value")
	ErrMissingToken            = errors.New("token not available")
	ErrMissingConnectionID     = errors.New("connection id not available")
	ErrMissingTokenProvider    = errors.New("token provider not set")
	ErrUserDoesNotExist        = errors.New("token issued for a different user")
	ErrLoggedOut               = errors.New("user logged out")
	ErrClientInactive          = errors.New("client is not in active mode")
	ErrConnectionNotSuccessful = errors.New("connection was not successful")
)

// Local state errors.
var (
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidCID      = errors.New("channel id must look like <type>:<id>")
)

// Server/transport errors.
var (
	ErrAPIRequest    = errors.New("API request failed")
	ErrAPIResponse   = errors.New("unexpected API response")
	ErrTooManyEvents = errors.New("too many events to sync")
)

// Token error codes returned by the chat backend.
const (
	CodeTokenExpired        = 40
	CodeTokenNotValidYet    = 41
	CodeTokenInvalidDate    = 42
	CodeTokenSignatureError = 43
)

// APIError is a structured error returned by the chat backend.
type APIError struct {
	Code       int    `json:"code"`
	StatusCode int    `json:"StatusCode"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// IsExpiredToken reports whether the server rejected an expired token.
func (e *APIError) IsExpiredToken() bool {
	return e.Code == CodeTokenExpired
}

// IsInvalidToken reports whether the server rejected the token for any
// token-related reason, expiry included.
func (e *APIError) IsInvalidToken() bool {
	return e.Code >= CodeTokenExpired && e.Code <= CodeTokenSignatureError
}

// ConnectivityError marks a failure caused by the network rather than by
// the server's judgement of the request. Requests failing this way are
// safe to retry once connectivity returns.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// IsConnectivity reports whether err is, or wraps, a network failure.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}

	var ce *ConnectivityError
	if errors.As(err, &ce) {
		return true
	}

	var ne net.Error

	return errors.As(err, &ne)
}

// IsExpiredToken reports whether err wraps an expired-token APIError.
func IsExpiredToken(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.IsExpiredToken()
}

// IsInvalidToken reports whether err wraps any token APIError.
func IsInvalidToken(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.IsInvalidToken()
}

// IsTransientStatus reports whether an HTTP status code indicates a
// server-side problem worth retrying.
func IsTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return code >= http.StatusInternalServerError
}

// ConnectionNotSuccessfulError is returned by connect when the transport
// stopped without ever producing a connection id.
type ConnectionNotSuccessfulError struct {
	Err error
}

func (e *ConnectionNotSuccessfulError) Error() string {
	if e.Err == nil {
		return ErrConnectionNotSuccessful.Error()
	}

	return fmt.Sprintf("%s: %v", ErrConnectionNotSuccessful, e.Err)
}

func (e *ConnectionNotSuccessfulError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConnectionNotSuccessful}
	}

	return []error{ErrConnectionNotSuccessful, e.Err}
}
