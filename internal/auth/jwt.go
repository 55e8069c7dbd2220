package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// CookieName is the cookie carrying the identity token.
const CookieName = "auth"

// TokenTTL is how long issued tokens stay valid.
const TokenTTL = 30 * 24 * time.Hour

var ErrInvalidToken = errors.New("auth: invalid token")

// Tokens signs and verifies HS256 identity tokens. The subject claim is
// the user id.
type Tokens struct {
	secret []byte
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret)}
}

// Sign issues a token for the given user id.
func (t *Tokens) Sign(userID string) (string, error) {
	now := time.Now()
	claims := gojwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  gojwt.NewNumericDate(now),
		ExpiresAt: gojwt.NewNumericDate(now.Add(TokenTTL)),
	}
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and expiry and returns the subject
// user id.
func (t *Tokens) Verify(token string) (string, error) {
	parsed, err := gojwt.Parse(token, func(tok *gojwt.Token) (any, error) {
		if _, ok := tok.Method.(*gojwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// TokenFromRequest extracts the identity token from the auth cookie, or
// from a bearer Authorization header for non-browser clients. Returns ""
// when no credential is present.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
