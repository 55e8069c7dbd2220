package collab

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Conn is one client connection multiplexed onto a document session.
type Conn struct {
	ID       string // ksuid, for log correlation
	UserID   string
	ClientID uint64 // transport-assigned awareness client id

	session *DocSession
	ws      *websocket.Conn
	Send    chan []byte

	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, userID string, clientID uint64) *Conn {
	return &Conn{
		ID:       ksuid.New().String(),
		UserID:   userID,
		ClientID: clientID,
		ws:       ws,
		Send:     make(chan []byte, sendBuffer),
	}
}

// queue enqueues a frame without blocking. A full buffer means the client
// is slow or dead; the frame is dropped and the connection closed so the
// client resyncs from full state on reconnect.
func (c *Conn) queue(frame []byte) {
	select {
	case c.Send <- frame:
	default:
		log.Printf("conn %s: send buffer full, closing", c.ID)
		go c.close()
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		if c.ws != nil {
			c.ws.Close()
		}
	})
}

// readPump reads frames from the websocket and dispatches them to the
// session. Runs in its own goroutine per connection; exiting detaches the
// connection.
func (c *Conn) readPump() {
	defer func() {
		c.session.Detach(c)
		c.close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("conn %s: read error: %v", c.ID, err)
			}
			return
		}

		kind, payload, err := DecodeFrame(message)
		if err != nil {
			log.Printf("conn %s: dropping frame: %v", c.ID, err)
			continue
		}

		switch kind {
		case FrameDocument:
			if err := c.session.ApplyDelta(c, payload); err != nil {
				// Malformed deltas are rejected without corrupting the
				// document; the connection stays up.
				log.Printf("conn %s: rejected delta: %v", c.ID, err)
			}
		case FrameAwareness:
			if err := c.session.ApplyAwareness(c, payload); err != nil {
				log.Printf("conn %s: rejected awareness update: %v", c.ID, err)
			}
		case FrameControl:
			// Clients only send disconnect notices; the close handshake
			// covers those.
		}
	}
}

// writePump writes queued frames to the websocket, batching whatever has
// accumulated, and keeps the connection alive with pings. A separate write
// goroutine keeps a slow client from blocking reads.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
			// Drain whatever else is queued.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				frame, ok := <-c.Send
				if !ok {
					return
				}
				if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
