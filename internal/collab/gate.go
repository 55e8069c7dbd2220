package collab

import (
	"context"
	"fmt"

	"artboard/internal/models"
)

// TokenVerifier verifies an identity token and returns the subject user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Gate authorizes inbound sync connections. It runs once per connection
// attempt, before the connection is admitted to a session; callers must
// normalize every returned error to a generic authentication-failure signal
// so nothing leaks to a rejected client.
type Gate struct {
	tokens   TokenVerifier
	canvases CanvasStore
}

func NewGate(tokens TokenVerifier, canvases CanvasStore) *Gate {
	return &Gate{tokens: tokens, canvases: canvases}
}

// Authorize verifies the identity token and checks the user against the
// canvas's access-control fields. Returns the authenticated user id.
func (g *Gate) Authorize(ctx context.Context, token, canvasID string) (string, error) {
	if !models.IsValidCanvasID(canvasID) {
		return "", ErrInvalidID
	}
	if token == "" {
		return "", ErrUnauthorized
	}
	userID, err := g.tokens.Verify(token)
	if err != nil {
		return "", ErrUnauthorized
	}

	canvas, err := g.canvases.GetByID(ctx, canvasID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if canvas == nil {
		return "", ErrNotFound
	}
	if !canvas.HasAccess(userID) {
		return "", ErrUnauthorized
	}
	return userID, nil
}
