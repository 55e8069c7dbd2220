package collab

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"

	"artboard/internal/auth"
)

func newGate(t *testing.T) (*Gate, *auth.Tokens, *fakeCanvasStore) {
	t.Helper()
	canvases, _ := newStores()
	tokens := auth.NewTokens("gate-test-secret")
	return NewGate(tokens, canvases), tokens, canvases
}

func signFor(t *testing.T, tokens *auth.Tokens, userID string) string {
	t.Helper()
	signed, err := tokens.Sign(userID)
	assert.Equal(t, nil, err)
	return signed
}

func TestAuthorizeOwnerAndCollaborator(t *testing.T) {
	gate, tokens, _ := newGate(t)

	userID, err := gate.Authorize(context.Background(), signFor(t, tokens, "owner-1"), testCanvasID)
	assert.Equal(t, nil, err)
	assert.Equal(t, "owner-1", userID)

	userID, err = gate.Authorize(context.Background(), signFor(t, tokens, "collab-1"), testCanvasID)
	assert.Equal(t, nil, err)
	assert.Equal(t, "collab-1", userID)
}

func TestAuthorizeRejectsStranger(t *testing.T) {
	gate, tokens, _ := newGate(t)

	_, err := gate.Authorize(context.Background(), signFor(t, tokens, "stranger"), testCanvasID)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestAuthorizeRejectsMissingOrInvalidToken(t *testing.T) {
	gate, _, _ := newGate(t)

	_, err := gate.Authorize(context.Background(), "", testCanvasID)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	_, err = gate.Authorize(context.Background(), "garbage-token", testCanvasID)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	// A token signed with a different secret fails verification.
	other := auth.NewTokens("other-secret")
	foreign, _ := other.Sign("owner-1")
	_, err = gate.Authorize(context.Background(), foreign, testCanvasID)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestAuthorizeRejectsInvalidIDBeforeLookup(t *testing.T) {
	gate, tokens, canvases := newGate(t)

	_, err := gate.Authorize(context.Background(), signFor(t, tokens, "owner-1"), "not-a-canvas-id")
	if !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
	assert.Equal(t, 0, canvases.getCalls)
}

func TestAuthorizeMissingCanvas(t *testing.T) {
	gate, tokens, _ := newGate(t)

	_, err := gate.Authorize(context.Background(), signFor(t, tokens, "owner-1"), "aaaaaaaaaaaaaaaaaaaaaaaa")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAuthorizeNormalizesStoreFailure(t *testing.T) {
	gate, tokens, canvases := newGate(t)
	canvases.getErr = errors.New("connection reset")

	_, err := gate.Authorize(context.Background(), signFor(t, tokens, "owner-1"), testCanvasID)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
