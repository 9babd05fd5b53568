// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/convo/internal/session"
)

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name string
		loc  Location
		conv string
		sel  Selection
		want string
	}{
		{
			name: "https with profile selection",
			loc:  Location{Scheme: "https", Host: "chat.local"},
			conv: "conv-profile",
			sel:  Selection{Profile: "agent", Registry: "default"},
			want: "wss://chat.local/ws?conv_id=conv-profile&profile=agent&registry=default",
		},
		{
			name: "http without selection",
			loc:  Location{Scheme: "http", Host: "localhost:8080"},
			conv: "c1",
			want: "ws://localhost:8080/ws?conv_id=c1",
		},
		{
			name: "page-style scheme with prefix",
			loc:  Location{Scheme: "https:", Host: "example.com", BasePrefix: "/apps/chat/"},
			conv: "a b",
			sel:  Selection{Registry: "team"},
			want: "wss://example.com/apps/chat/ws?conv_id=a+b&registry=team",
		},
		{
			name: "blank profile omitted",
			loc:  Location{Host: "h"},
			conv: "c",
			sel:  Selection{Profile: "  "},
			want: "ws://h/ws?conv_id=c",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildURL(tt.loc, tt.conv, tt.sel))
		})
	}
}

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation("https://chat.local/app/")
	require.NoError(t, err)
	assert.Equal(t, Location{Scheme: "https", Host: "chat.local", BasePrefix: "/app"}, loc)
	assert.Equal(t, "https://chat.local/app", loc.HTTPBase())

	loc, err = ParseLocation("ws://localhost:9000")
	require.NoError(t, err)
	assert.Equal(t, "http", loc.Scheme)
	assert.Equal(t, "http://localhost:9000", loc.HTTPBase())

	_, err = ParseLocation("ftp://x")
	assert.Error(t, err)
	_, err = ParseLocation("/relative")
	assert.Error(t, err)
}

// testServer upgrades every request and writes frames sent on its channel.
type testServer struct {
	*httptest.Server
	conns  atomic.Int32
	frames chan []byte
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{frames: make(chan []byte, 16)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ts.conns.Add(1)

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		for {
			select {
			case f := <-ts.frames:
				if err := conn.WriteMessage(websocket.TextMessage, f); err != nil {
					return
				}
			case <-closed:
				return
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?conv_id=c1"
}

type recorder struct {
	mu       sync.Mutex
	messages []string
	errs     []error
	statuses []session.Status
	closes   []error
	opens    int
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnOpen: func() { r.mu.Lock(); r.opens++; r.mu.Unlock() },
		OnMessage: func(raw []byte) {
			r.mu.Lock()
			r.messages = append(r.messages, string(raw))
			r.mu.Unlock()
		},
		OnError:  func(err error) { r.mu.Lock(); r.errs = append(r.errs, err); r.mu.Unlock() },
		OnClose:  func(err error) { r.mu.Lock(); r.closes = append(r.closes, err); r.mu.Unlock() },
		OnStatus: func(s session.Status) { r.mu.Lock(); r.statuses = append(r.statuses, s); r.mu.Unlock() },
	}
}

func (r *recorder) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func TestClient_ConnectIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	rec := &recorder{}
	c := NewClient(ts.wsURL(), rec.callbacks())

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, session.StatusConnected, c.Status())

	assert.Eventually(t, func() bool { return ts.conns.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), ts.conns.Load())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.opens)
	assert.Equal(t, []session.Status{session.StatusConnecting, session.StatusConnected, session.StatusClosed}, rec.statuses)
	assert.Equal(t, []error{nil}, rec.closes)
}

func TestClient_MalformedFrameIsSkipped(t *testing.T) {
	ts := newTestServer(t)
	rec := &recorder{}
	c := NewClient(ts.wsURL(), rec.callbacks())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	ts.frames <- []byte(`{"sem":true,"event":{"type":"log","id":"1"}}`)
	ts.frames <- []byte(`{not json`)
	ts.frames <- []byte(`{"sem":true,"event":{"type":"log","id":"2"}}`)

	require.Eventually(t, func() bool { return rec.messageCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], ErrMalformedFrame)
	assert.Contains(t, rec.messages[1], `"id":"2"`)
	assert.Equal(t, session.StatusConnected, c.Status())
}

func TestClient_DialFailureReportsError(t *testing.T) {
	rec := &recorder{}
	c := NewClient("ws://127.0.0.1:1/ws?conv_id=c1", rec.callbacks())

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, session.StatusError, c.Status())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.errs, 1)
	assert.Zero(t, rec.opens)
}

func TestClient_ServerCloseReportsClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		conn.Close()
	}))
	defer srv.Close()

	rec := &recorder{}
	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), rec.callbacks())
	require.NoError(t, c.Connect(context.Background()))

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.closes) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, session.StatusClosed, c.Status())
	assert.ErrorIs(t, c.Send([]byte("{}")), ErrNotConnected)
}

func TestClient_PanickingCallbackDoesNotEscape(t *testing.T) {
	ts := newTestServer(t)
	got := make(chan struct{}, 2)
	c := NewClient(ts.wsURL(), Callbacks{
		OnMessage: func(raw []byte) {
			got <- struct{}{}
			panic("consumer bug")
		},
	})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	ts.frames <- []byte(`{}`)
	ts.frames <- []byte(`{}`)
	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("frame not delivered")
		}
	}
}

// gatedDialer holds every dial until release is closed, ignoring ctx the
// way a slow handshake would.
type gatedDialer struct {
	entered chan struct{}
	release chan struct{}
}

func (d *gatedDialer) DialContext(ctx context.Context, url string, h http.Header) (*websocket.Conn, *http.Response, error) {
	close(d.entered)
	<-d.release
	return websocket.DefaultDialer.Dial(url, h)
}

func TestClient_CloseDuringDial(t *testing.T) {
	ts := newTestServer(t)
	rec := &recorder{}
	d := &gatedDialer{entered: make(chan struct{}), release: make(chan struct{})}
	c := NewClient(ts.wsURL(), rec.callbacks(), WithDialer(d))

	connectErr := make(chan error, 1)
	go func() { connectErr <- c.Connect(context.Background()) }()
	<-d.entered

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	close(d.release)

	select {
	case err := <-connectErr:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return")
	}

	assert.Equal(t, session.StatusClosed, c.Status())
	assert.ErrorIs(t, c.Send([]byte("{}")), ErrNotConnected)

	ts.frames <- []byte(`{"sem":true,"event":{"type":"log","id":"1"}}`)
	time.Sleep(50 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Zero(t, rec.opens)
	assert.Empty(t, rec.messages)
	assert.Empty(t, rec.errs)
	assert.Equal(t, []error{nil}, rec.closes)
}

func TestClient_CloseCancelsDialContext(t *testing.T) {
	rec := &recorder{}
	entered := make(chan struct{})
	c := NewClient("ws://chat.local/ws", rec.callbacks(), WithDialer(dialFunc(
		func(ctx context.Context, url string, h http.Header) (*websocket.Conn, *http.Response, error) {
			close(entered)
			<-ctx.Done()
			return nil, nil, ctx.Err()
		})))

	connectErr := make(chan error, 1)
	go func() { connectErr <- c.Connect(context.Background()) }()
	<-entered
	require.NoError(t, c.Close())

	select {
	case err := <-connectErr:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("dial was not cancelled")
	}
	assert.Equal(t, session.StatusClosed, c.Status())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.errs)
}

type dialFunc func(ctx context.Context, url string, h http.Header) (*websocket.Conn, *http.Response, error)

func (f dialFunc) DialContext(ctx context.Context, url string, h http.Header) (*websocket.Conn, *http.Response, error) {
	return f(ctx, url, h)
}
