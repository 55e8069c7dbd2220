package collab

import "errors"

// Error taxonomy of the sync core. Authorization and id-format failures are
// normalized to a single generic signal at the connection boundary; load
// failures are the one rejection a client should retry.
var (
	ErrInvalidID     = errors.New("collab: invalid canvas id format")
	ErrNotFound      = errors.New("collab: canvas not found")
	ErrUnauthorized  = errors.New("collab: unauthorized")
	ErrLoad          = errors.New("collab: failed to load canvas document")
	ErrSessionClosed = errors.New("collab: session closed")
)
