package client

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"artboard/internal/collab"
)

// Conn is a websocket transport bound to one canvas session. It implements
// Transport and pumps inbound frames into the adapter until closed.
type Conn struct {
	ws      *websocket.Conn
	adapter *Adapter

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to a canvas sync endpoint (ws://host/ws/canvas/{id}),
// authenticating with a bearer token, and binds the connection to the
// adapter. The caller owns the returned Conn and must Close it.
func Dial(ctx context.Context, url, token string, adapter *Adapter) (*Conn, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial canvas session: %w", err)
	}

	c := &Conn{ws: ws, adapter: adapter, done: make(chan struct{})}
	adapter.BindTransport(c)
	go c.readLoop()
	return c, nil
}

// SendDocument ships a document delta frame.
func (c *Conn) SendDocument(delta []byte) error {
	return c.write(collab.EncodeFrame(collab.FrameDocument, delta))
}

// SendAwareness ships a presence frame.
func (c *Conn) SendAwareness(payload []byte) error {
	return c.write(collab.EncodeFrame(collab.FrameAwareness, payload))
}

func (c *Conn) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, frame)
}

// Close tears the connection down. The server drops the session attachment
// and broadcasts the presence removal.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// Done is closed when the read loop exits.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) readLoop() {
	defer c.Close()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		kind, payload, err := collab.DecodeFrame(data)
		if err != nil {
			log.Printf("client: dropping bad frame: %v", err)
			continue
		}
		switch kind {
		case collab.FrameDocument:
			if err := c.adapter.HandleDocumentFrame(payload); err != nil {
				log.Printf("client: %v", err)
			}
		case collab.FrameAwareness:
			if err := c.adapter.HandleAwarenessFrame(payload); err != nil {
				log.Printf("client: %v", err)
			}
		case collab.FrameControl:
			if err := c.adapter.HandleControlFrame(payload); err != nil {
				log.Printf("client: %v", err)
			}
		}
	}
}
