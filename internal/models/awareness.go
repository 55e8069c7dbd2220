package models

// AwarenessStaleAfterMillis is how long a record may go without an update
// before readers treat it as inactive. Stale records are only actively
// removed when their owning connection disconnects; readers must apply
// this filter themselves.
const AwarenessStaleAfterMillis = 30_000

// SelectionAction describes what a user is doing with their selection.
type SelectionAction string

const (
	ActionSelecting    SelectionAction = "selecting"
	ActionEditing      SelectionAction = "editing"
	ActionTransforming SelectionAction = "transforming"
)

// UserInfo identifies a connected user for presence display.
type UserInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Color  string `json:"color"`
}

// Cursor is a user's pointer position on the canvas.
type Cursor struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Visible bool    `json:"visible"`
}

// Selection is the set of elements a user currently has selected.
type Selection struct {
	ElementIDs []string        `json:"elementIds"`
	Action     SelectionAction `json:"action"`
}

// AwarenessState is the ephemeral presence record for one connected client.
// It is never persisted. Each ClientID is owned by exactly one connection,
// so the last write for an id always wins.
type AwarenessState struct {
	ClientID  uint64     `json:"client_id"`
	User      *UserInfo  `json:"user,omitempty"`
	Cursor    *Cursor    `json:"cursor,omitempty"`
	Selection *Selection `json:"selection,omitempty"`
	LastSeen  int64      `json:"last_seen"`
}
