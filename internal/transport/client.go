// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/wingedpig/convo/internal/session"
)

var (
	// ErrMalformedFrame is reported through OnError for frames that are not JSON.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrNotConnected is returned by Send before Connect succeeds.
	ErrNotConnected = errors.New("not connected")

	// ErrClosed is returned by a Connect that Close interrupted.
	ErrClosed = errors.New("transport closed")
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Callbacks receive transport signals. All are optional. They run on the
// client's read goroutine, or on the caller's goroutine for Connect and Close.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(raw []byte)
	OnError   func(err error)
	// OnClose gets nil for a requested close and the read error otherwise.
	OnClose  func(err error)
	OnStatus func(status session.Status)
}

// Dialer opens WebSocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the default dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithHeader adds request headers to the handshake.
func WithHeader(h http.Header) Option {
	return func(c *Client) {
		c.header = h.Clone()
	}
}

// Client is a single WebSocket connection.
type Client struct {
	url    string
	cb     Callbacks
	dialer Dialer
	header http.Header
	logger zerolog.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	connecting   bool
	cancelDial   context.CancelFunc
	closedDuring bool // Close ran while the dial was in flight
	status       session.Status
	done         chan struct{}

	writeMu sync.Mutex
}

// NewClient creates a client for the given ws:// or wss:// URL.
func NewClient(url string, cb Callbacks, opts ...Option) *Client {
	c := &Client{
		url:    url,
		cb:     cb,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		logger: zerolog.Nop(),
		status: session.StatusIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint the client dials.
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status.
func (c *Client) Status() session.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) setStatus(s session.Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	c.safe(func() {
		if c.cb.OnStatus != nil {
			c.cb.OnStatus(s)
		}
	})
}

// safe runs a callback, logging instead of propagating a panic.
func (c *Client) safe(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("url", c.url).Msg("transport callback panic")
		}
	}()
	fn()
}

// Connect dials the server. Calling it while connected or connecting is a
// no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil || c.connecting {
		c.mu.Unlock()
		return nil
	}
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.connecting = true
	c.cancelDial = cancel
	c.closedDuring = false
	c.mu.Unlock()

	c.setStatus(session.StatusConnecting)

	conn, resp, err := c.dialer.DialContext(dialCtx, c.url, c.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	c.connecting = false
	c.cancelDial = nil
	if c.closedDuring {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		if c.Status() != session.StatusClosed {
			c.setStatus(session.StatusClosed)
		}
		c.logger.Debug().Str("url", c.url).Msg("dial abandoned after close")
		return ErrClosed
	}
	if err != nil {
		c.mu.Unlock()
		err = fmt.Errorf("dial %s: %w", c.url, err)
		c.setStatus(session.StatusError)
		c.safe(func() {
			if c.cb.OnError != nil {
				c.cb.OnError(err)
			}
		})
		return err
	}

	done := make(chan struct{})
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.logger.Debug().Str("url", c.url).Msg("websocket open")
	c.setStatus(session.StatusConnected)
	c.safe(func() {
		if c.cb.OnOpen != nil {
			c.cb.OnOpen()
		}
	})

	go c.pingLoop(conn, done)
	go c.readLoop(conn, done)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.finish(conn, done, err)
			return
		}
		if !json.Valid(data) {
			c.logger.Debug().Str("url", c.url).Int("bytes", len(data)).Msg("skipping malformed frame")
			c.safe(func() {
				if c.cb.OnError != nil {
					c.cb.OnError(ErrMalformedFrame)
				}
			})
			continue
		}
		c.safe(func() {
			if c.cb.OnMessage != nil {
				c.cb.OnMessage(data)
			}
		})
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// finish handles the read loop ending. A loop ending after Close is silent.
func (c *Client) finish(conn *websocket.Conn, done chan struct{}, readErr error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()
	close(done)
	conn.Close()

	if websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Debug().Str("url", c.url).Msg("websocket closed by server")
		c.setStatus(session.StatusClosed)
	} else {
		c.logger.Warn().Err(readErr).Str("url", c.url).Msg("websocket read failed")
		c.setStatus(session.StatusError)
		c.safe(func() {
			if c.cb.OnError != nil {
				c.cb.OnError(readErr)
			}
		})
	}
	c.safe(func() {
		if c.cb.OnClose != nil {
			c.cb.OnClose(readErr)
		}
	})
}

// Send writes a text frame.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the connection, abandoning a dial in flight. It is safe to
// call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.connecting {
		if c.closedDuring {
			c.mu.Unlock()
			return nil
		}
		c.closedDuring = true
		if c.cancelDial != nil {
			c.cancelDial()
		}
		c.mu.Unlock()
		c.setStatus(session.StatusClosed)
		c.safe(func() {
			if c.cb.OnClose != nil {
				c.cb.OnClose(nil)
			}
		})
		return nil
	}
	conn := c.conn
	done := c.done
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	close(done)
	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	err := conn.Close()

	c.setStatus(session.StatusClosed)
	c.safe(func() {
		if c.cb.OnClose != nil {
			c.cb.OnClose(nil)
		}
	})
	return err
}
