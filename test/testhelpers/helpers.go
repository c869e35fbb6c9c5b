// Package testhelpers provides utilities shared by the integration tests:
// starting a hub behind an httptest server, dialing WebSocket clients, and
// speaking the event envelope protocol.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/server"
)

// TestOrigin is the origin every helper-dialed client presents. It is on the
// default allow-list.
const TestOrigin = "http://localhost:8080"

// Envelope mirrors the wire envelope with the payload decoded into a map.
type Envelope struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// StartServer applies cfg (nil for defaults), starts a hub and serves the
// application routes on an httptest server. Both are torn down on cleanup.
func StartServer(t *testing.T, customize func(cfg *server.Config)) (*server.Hub, *httptest.Server) {
	t.Helper()

	cfg := server.NewConfig()
	if customize != nil {
		customize(cfg)
	}
	server.SetConfig(cfg)

	hub := server.NewHub()
	go hub.Run()

	ts := httptest.NewServer(server.SetupRoutes(hub))
	t.Cleanup(func() {
		_ = hub.Shutdown(2 * time.Second)
		ts.Close()
		server.SetConfig(nil)
	})
	return hub, ts
}

// WebSocketURL converts an http:// base URL into the /ws endpoint URL.
func WebSocketURL(baseURL string) string {
	return "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
}

// Dial opens a WebSocket connection presenting origin. An empty origin sends
// no Origin header.
func Dial(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Client is a test WebSocket client that understands batched frames.
type Client struct {
	t       *testing.T
	Conn    *websocket.Conn
	pending []Envelope
}

// Connect dials the server's /ws endpoint and closes the connection on
// cleanup.
func Connect(t *testing.T, baseURL string) *Client {
	t.Helper()

	conn, _, err := Dial(WebSocketURL(baseURL), TestOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &Client{t: t, Conn: conn}
}

// Send writes one event envelope.
func (c *Client) Send(event string, data any) {
	c.t.Helper()
	require.NoError(c.t, c.Conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

// Join sends join_room.
func (c *Client) Join(user, room string) {
	c.t.Helper()
	c.Send("join_room", map[string]string{"user": user, "room": room})
}

// Say sends a chat message.
func (c *Client) Say(user, room, text string) {
	c.t.Helper()
	c.Send("message", map[string]string{
		"type":      "message",
		"text":      text,
		"user":      user,
		"room":      room,
		"timestamp": "12:00:00",
	})
}

// Type sends a typing signal.
func (c *Client) Type(user, room string, isTyping bool) {
	c.t.Helper()
	c.Send("typing", map[string]any{"user": user, "room": room, "isTyping": isTyping})
}

// Next returns the next envelope, waiting up to timeout.
func (c *Client) Next(timeout time.Duration) (Envelope, error) {
	if len(c.pending) == 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return Envelope{}, err
		}
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			return Envelope{}, err
		}
		for _, line := range bytes.Split(frame, []byte{'\n'}) {
			var env Envelope
			if err := json.Unmarshal(line, &env); err != nil {
				return Envelope{}, err
			}
			c.pending = append(c.pending, env)
		}
	}

	env := c.pending[0]
	c.pending = c.pending[1:]
	return env, nil
}

// Expect reads the next envelope and requires it to carry event.
func (c *Client) Expect(event string) Envelope {
	c.t.Helper()

	env, err := c.Next(2 * time.Second)
	require.NoError(c.t, err, "waiting for %q", event)
	require.Equal(c.t, event, env.Event, "unexpected envelope %+v", env)
	return env
}

// ExpectMessage reads up to the next chat message, skipping the typing
// clears every message is preceded by.
func (c *Client) ExpectMessage() Envelope {
	c.t.Helper()

	for {
		env, err := c.Next(2 * time.Second)
		require.NoError(c.t, err, "waiting for message")
		if env.Event == "typing" && env.Data["isTyping"] == false {
			continue
		}
		require.Equal(c.t, "message", env.Event, "unexpected envelope %+v", env)
		return env
	}
}

// ExpectNone requires that nothing arrives within d.
func (c *Client) ExpectNone(d time.Duration) {
	c.t.Helper()

	env, err := c.Next(d)
	if err == nil {
		c.t.Fatalf("expected no envelope, got %+v", env)
	}
	var netErr net.Error
	require.True(c.t, errors.As(err, &netErr) && netErr.Timeout(), "unexpected read error: %v", err)
	// A timed-out gorilla connection cannot be read again.
	c.pending = nil
}

// ExpectClosed requires that the server closes the connection within d.
func (c *Client) ExpectClosed(d time.Duration) {
	c.t.Helper()

	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if _, err := c.Next(time.Until(deadline)); err != nil {
			var netErr net.Error
			require.False(c.t, errors.As(err, &netErr) && netErr.Timeout(), "connection still open")
			return
		}
	}
	c.t.Fatal("connection still open")
}

// Get issues an HTTP GET with a 5 second timeout.
func Get(t *testing.T, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
