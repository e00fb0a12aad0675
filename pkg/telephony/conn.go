package telephony

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/reliefline/pkg/errorsx"
)

// Conn is the server side of one media stream.
// Send is safe for concurrent use; Recv must be called from a single goroutine.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, writeTimeout: 5 * time.Second}
}

// Recv blocks for the next inbound frame. A message that fails to decode is
// returned with reason telephony_decode and the stream remains usable; any
// other error means the socket is gone.
func (c *Conn) Recv() (Frame, error) {
	_, msg, err := c.ws.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	f, err := DecodeFrame(msg)
	if err != nil {
		return Frame{}, errorsx.Wrap(fmt.Errorf("telephony: decode: %w", err), errorsx.ReasonTelephonyDecode)
	}
	return f, nil
}

func (c *Conn) Send(f OutboundFrame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTelephonySend)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		return errorsx.Wrap(fmt.Errorf("telephony: send %s: %w", f.Event, err), errorsx.ReasonTelephonySend)
	}
	return nil
}

// Close is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close()
	})
	return err
}
