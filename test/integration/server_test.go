package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/rooms"
	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/test/testhelpers"
)

func TestHealthEndpoint(t *testing.T) {
	_, ts := testhelpers.StartServer(t, nil)

	resp := testhelpers.Get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Room chat server is running!", string(body))
}

func TestStatsEndpointTracksSessions(t *testing.T) {
	_, ts := testhelpers.StartServer(t, nil)

	ana := testhelpers.Connect(t, ts.URL)
	ana.Join("ana", "geral")
	ana.Type("ana", "geral", true)
	ana.Say("ana", "geral", "sync")
	ana.Expect("message")

	ana.Type("ana", "geral", true)

	var stats struct {
		Status string `json:"status"`
		server.Stats
	}
	require.Eventually(t, func() bool {
		resp := testhelpers.Get(t, ts.URL+"/health")
		if resp.StatusCode != http.StatusOK {
			return false
		}
		if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
			return false
		}
		return stats.Typing == 1
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, "ok", stats.Status)
	assert.Equal(t, 1, stats.Clients)
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, []server.RoomStats{
		{Key: "geral", Label: "Sala Geral", Members: 1},
		{Key: "tecnologia", Label: "Sala Tecnologia", Members: 0},
	}, stats.Rooms)
}

func TestRoomsEndpointUsesConfiguredCatalog(t *testing.T) {
	catalog, err := rooms.ParseCatalog("lobby=Lobby,dev")
	require.NoError(t, err)

	_, ts := testhelpers.StartServer(t, func(cfg *server.Config) {
		cfg.Rooms = catalog
	})

	resp := testhelpers.Get(t, ts.URL+"/rooms")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got []server.RoomStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, []server.RoomStats{
		{Key: "lobby", Label: "Lobby"},
		{Key: "dev", Label: "dev"},
	}, got)

	// The default rooms are not served by this hub.
	ana := testhelpers.Connect(t, ts.URL)
	ana.Join("ana", "geral")
	ana.Join("ana", "lobby")
	ana.Say("ana", "lobby", "oi")
	assert.Equal(t, "lobby", ana.Expect("message").Data["room"])
}

func TestTestPage(t *testing.T) {
	_, ts := testhelpers.StartServer(t, nil)

	resp := testhelpers.Get(t, ts.URL+"/test")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "join_room"))
}

func TestWebSocketEndpointRejectsNonGet(t *testing.T) {
	_, ts := testhelpers.StartServer(t, nil)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			req, err := http.NewRequest(method, ts.URL+"/ws", http.NoBody)
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		})
	}
}

func TestWebSocketEndpointRequiresUpgrade(t *testing.T) {
	_, ts := testhelpers.StartServer(t, nil)

	resp := testhelpers.Get(t, ts.URL+"/ws")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
