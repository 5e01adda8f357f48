package auth

import (
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// anonymousPrefix marks user ids minted for anonymous sessions.
const anonymousPrefix = "!anon-"

// Token is a chat user token. The claims are read without verifying
// the signature: the server is the only party that validates it.
type Token struct {
	Raw       string
	UserID    string
	ExpiresAt time.Time
}

// IsAnonymous reports whether the token belongs to an anonymous session.
func (t Token) IsAnonymous() bool {
	return len(t.UserID) >= len(anonymousPrefix) && t.UserID[:len(anonymousPrefix)] == anonymousPrefix
}

// Expired reports whether the token carries an expiry that has passed.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// ParseToken reads user_id and exp out of a JWT.
func ParseToken(raw string) (Token, error) {
	parser := gojwt.NewParser()

	parsed, _, err := parser.ParseUnverified(raw, gojwt.MapClaims{})
	if err != nil {
		return Token{}, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := parsed.Claims.(gojwt.MapClaims)
	if !ok {
		return Token{}, fmt.Errorf("parsing token: unexpected claims type %T", parsed.Claims)
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return Token{}, fmt.Errorf("parsing token: missing user_id claim")
	}

	tok := Token{Raw: raw, UserID: userID}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return Token{}, fmt.Errorf("parsing token: %w", err)
	}

	if exp != nil {
		tok.ExpiresAt = exp.Time
	}

	return tok, nil
}

// AnonymousToken returns a token for a fresh anonymous user.
func AnonymousToken() Token {
	return Token{UserID: anonymousPrefix + uuid.NewString()}
}
