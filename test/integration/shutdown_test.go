package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/test/testhelpers"
)

func TestHubShutdownWithoutClients(t *testing.T) {
	server.SetConfig(nil)
	hub := server.NewHub()
	go hub.Run()

	assert.NoError(t, hub.Shutdown(2*time.Second))
}

func TestHubShutdownBeforeRunTimesOut(t *testing.T) {
	server.SetConfig(nil)
	hub := server.NewHub()

	assert.ErrorIs(t, hub.Shutdown(50*time.Millisecond), context.DeadlineExceeded)
}

func TestGracefulShutdownClosesClients(t *testing.T) {
	hub, ts := testhelpers.StartServer(t, nil)

	clients := make([]*testhelpers.Client, 0, 5)
	for i := 0; i < 5; i++ {
		c := testhelpers.Connect(t, ts.URL)
		c.Join("user", "geral")
		clients = append(clients, c)
	}
	require.Eventually(t, func() bool { return hub.Stats().Sessions == 5 }, 2*time.Second, 10*time.Millisecond)

	httpServer := server.CreateServer(":0", server.SetupRoutes(hub))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, server.ShutdownServer(ctx, httpServer))

	require.NoError(t, hub.Shutdown(5*time.Second))

	for _, c := range clients {
		c.ExpectClosed(2 * time.Second)
	}
}

func TestConnectAfterShutdownIsRefused(t *testing.T) {
	hub, ts := testhelpers.StartServer(t, nil)
	require.NoError(t, hub.Shutdown(2*time.Second))

	conn, _, err := testhelpers.Dial(testhelpers.WebSocketURL(ts.URL), testhelpers.TestOrigin)
	require.NoError(t, err, "the upgrade itself still succeeds")
	c := &testhelpers.Client{Conn: conn}
	defer func() { _ = conn.Close() }()

	_, err = c.Next(2 * time.Second)
	assert.Error(t, err)
}

func TestConcurrentShutdownCalls(t *testing.T) {
	server.SetConfig(nil)
	hub := server.NewHub()
	go hub.Run()

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() { errs <- hub.Shutdown(2 * time.Second) }()
	}
	for i := 0; i < 3; i++ {
		assert.NoError(t, <-errs)
	}
}
