package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/reliefline/pkg/errorsx"
	"github.com/harunnryd/reliefline/pkg/logging"
)

const (
	DefaultURL   = "wss://api.openai.com/v1/realtime"
	DefaultModel = "gpt-4o-realtime-preview"
	betaHeader   = "realtime=v1"
)

// Config configures a realtime connection.
type Config struct {
	URL              string
	APIKey           string
	Model            string
	Organization     string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	return c
}

// Endpoint returns the websocket URL with the model query parameter applied.
func (c Config) Endpoint() (string, error) {
	c = c.withDefaults()
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", c.Model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Conn is one realtime session over a websocket.
// Send is safe for concurrent use; Recv must be called from a single goroutine.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger

	mu        sync.Mutex
	closeOnce sync.Once
}

// Dial opens a realtime session.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errorsx.Errorf(errorsx.ReasonRealtimeConnect, "realtime: api key required")
	}
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("realtime: endpoint: %w", err), errorsx.ReasonRealtimeConnect)
	}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cfg.APIKey)
	headers.Set("OpenAI-Beta", betaHeader)
	if cfg.Organization != "" {
		headers.Set("OpenAI-Organization", cfg.Organization)
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("realtime: dial: %w (status %d)", err, resp.StatusCode)
		} else {
			err = fmt.Errorf("realtime: dial: %w", err)
		}
		return nil, errorsx.Wrap(err, errorsx.ReasonRealtimeConnect)
	}
	return NewConn(ws, cfg.WriteTimeout), nil
}

// NewConn wraps an established websocket.
func NewConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Conn{
		ws:           ws,
		writeTimeout: writeTimeout,
		logger:       logging.NewComponentLogger(slog.Default(), "realtime"),
	}
}

// Send writes one client event as a JSON text message.
func (c *Conn) Send(ev ClientEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("realtime: encode %s: %w", ev.EventType(), err), errorsx.ReasonRealtimeSend)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		return errorsx.Wrap(fmt.Errorf("realtime: send %s: %w", ev.EventType(), err), errorsx.ReasonRealtimeSend)
	}
	return nil
}

// Recv blocks for the next server event. A message that is not a JSON event
// yields an error with reason realtime_decode; any other error means the
// connection is gone.
func (c *Conn) Recv() (ServerEvent, error) {
	_, msg, err := c.ws.ReadMessage()
	if err != nil {
		return ServerEvent{}, err
	}
	return Decode(msg)
}

// Close closes the underlying websocket. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.mu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// Decode parses one raw server message.
func Decode(msg []byte) (ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return ServerEvent{}, errorsx.Wrap(fmt.Errorf("realtime: decode: %w", err), errorsx.ReasonRealtimeDecode)
	}
	if ev.Type == "" {
		return ServerEvent{}, errorsx.Errorf(errorsx.ReasonRealtimeDecode, "realtime: event without type")
	}
	ev.Raw = msg
	return ev, nil
}
