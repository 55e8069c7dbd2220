package auth

import (
	"net/http"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret")

	signed, err := tokens.Sign("user-1")
	assert.Equal(t, nil, err)

	userID, err := tokens.Verify(signed)
	assert.Equal(t, nil, err)
	assert.Equal(t, "user-1", userID)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	tokens := NewTokens("test-secret")
	other := NewTokens("other-secret")

	signed, err := other.Sign("user-1")
	assert.Equal(t, nil, err)

	_, err = tokens.Verify(signed)
	assert.NotEqual(t, nil, err)

	_, err = tokens.Verify("not-a-token")
	assert.NotEqual(t, nil, err)

	_, err = tokens.Verify("")
	assert.NotEqual(t, nil, err)
}

func TestTokenFromRequest(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", TokenFromRequest(r))

	// Cookie takes precedence over the header.
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie-token"})
	assert.Equal(t, "cookie-token", TokenFromRequest(r))
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	assert.Equal(t, nil, err)
	assert.NotEqual(t, "hunter22", hash)

	assert.Equal(t, true, CheckPassword(hash, "hunter22"))
	assert.Equal(t, false, CheckPassword(hash, "wrong"))
}
