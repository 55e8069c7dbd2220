package collab

import (
	"encoding/json"
	"fmt"

	"artboard/internal/models"
)

// Frame kinds of the sync channel. Every websocket message is one frame:
// a type byte followed by an opaque payload.
const (
	FrameDocument  byte = 0x00 // canvasdoc update frame
	FrameAwareness byte = 0x01 // JSON AwarenessUpdate
	FrameControl   byte = 0x02 // JSON ControlMessage
)

// Control events sent on the control frame. Authorization failures are
// rejected before the websocket upgrade, so there is no failure event here.
const (
	EventAuthOK     = "auth_ok"
	EventRetry      = "retry"
	EventDisconnect = "disconnect"
)

// ControlMessage is the connection-control payload.
type ControlMessage struct {
	Event  string `json:"event"`
	Reason string `json:"reason,omitempty"`
}

// AwarenessUpdate carries one client's presence record. A nil State means
// the record was removed because its owning connection closed.
type AwarenessUpdate struct {
	ClientID uint64                 `json:"client_id"`
	State    *models.AwarenessState `json:"state"`
}

// EncodeFrame prefixes a payload with its frame type byte.
func EncodeFrame(kind byte, payload []byte) []byte {
	frame := make([]byte, 0, 1+len(payload))
	frame = append(frame, kind)
	return append(frame, payload...)
}

// DecodeFrame splits a websocket message into frame type and payload.
func DecodeFrame(data []byte) (byte, []byte, error) {
	if len(data) < 1 {
		return 0, nil, fmt.Errorf("empty frame")
	}
	kind := data[0]
	if kind != FrameDocument && kind != FrameAwareness && kind != FrameControl {
		return 0, nil, fmt.Errorf("unknown frame kind %d", kind)
	}
	return kind, data[1:], nil
}

func controlFrame(event, reason string) []byte {
	payload, _ := json.Marshal(ControlMessage{Event: event, Reason: reason})
	return EncodeFrame(FrameControl, payload)
}

func awarenessFrame(update AwarenessUpdate) []byte {
	payload, _ := json.Marshal(update)
	return EncodeFrame(FrameAwareness, payload)
}
