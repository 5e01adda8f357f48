package server

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/alexjbarnes/chat-sync/internal/config"
	"golang.org/x/crypto/bcrypt"
)

type contextKey int

const (
	ctxUserID contextKey = iota
	ctxRemoteIP
)

// RequestUserID returns the authenticated user ID from the context, or "".
func RequestUserID(ctx context.Context) string {
	v, _ := ctx.Value(ctxUserID).(string)
	return v
}

// RequestRemoteIP returns the client IP from the context, or "".
func RequestRemoteIP(ctx context.Context) string {
	v, _ := ctx.Value(ctxRemoteIP).(string)
	return v
}

// keyChecker verifies API keys against bcrypt hashes. Keys that passed
// once are remembered by their SHA-256 so later requests skip bcrypt.
type keyChecker struct {
	entries []config.APIKeyEntry

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]string
}

func newKeyChecker(entries []config.APIKeyEntry) *keyChecker {
	return &keyChecker{
		entries:  entries,
		verified: make(map[[sha256.Size]byte]string),
	}
}

// check returns the user the key belongs to.
func (k *keyChecker) check(key string) (string, bool) {
	sum := sha256.Sum256([]byte(key))

	k.mu.RLock()
	userID, ok := k.verified[sum]
	k.mu.RUnlock()

	if ok {
		return userID, true
	}

	for _, e := range k.entries {
		if bcrypt.CompareHashAndPassword([]byte(e.Hash), []byte(key)) == nil {
			k.mu.Lock()
			k.verified[sum] = e.UserID
			k.mu.Unlock()

			return e.UserID, true
		}
	}

	return "", false
}

// Middleware returns HTTP middleware that requires a Bearer API key
// matching one of entries.
func Middleware(entries []config.APIKeyEntry, logger *slog.Logger) func(http.Handler) http.Handler {
	keys := newKeyChecker(entries)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")

			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				logger.Debug("middleware: no bearer token",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("WWW-Authenticate", "Bearer")
				w.WriteHeader(http.StatusUnauthorized)

				return
			}

			userID, ok := keys.check(strings.TrimPrefix(authHeader, "Bearer "))
			if !ok {
				logger.Debug("middleware: invalid API key",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				w.WriteHeader(http.StatusUnauthorized)

				return
			}

			logger.Debug("middleware: authenticated via API key",
				slog.String("user_id", userID),
				slog.String("ip", ip),
			)

			ctx := r.Context()
			ctx = context.WithValue(ctx, ctxUserID, userID)
			ctx = context.WithValue(ctx, ctxRemoteIP, ip)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
