package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/rooms"
	"github.com/Tyrowin/roomchat/internal/typing"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, RateLimitConfig{Burst: 20, RefillInterval: time.Second}, cfg.RateLimit)
	assert.Equal(t, rooms.DefaultCatalog(), cfg.Rooms)
	assert.Equal(t, typing.DefaultTimeout, cfg.TypingTimeout)
	assert.False(t, cfg.StrictMembership)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example.com, https://b.example.com")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "7")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3")
	t.Setenv("ROOMS", "lobby=Lobby,dev=Dev")
	t.Setenv("TYPING_TIMEOUT", "1500")
	t.Setenv("STRICT_ROOM_MEMBERSHIP", "true")
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("SHUTDOWN_TIMEOUT", "4")

	cfg := NewConfigFromEnv()

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, []string{"http://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
	assert.Equal(t, RateLimitConfig{Burst: 7, RefillInterval: 3 * time.Second}, cfg.RateLimit)
	assert.Equal(t, rooms.Catalog{{Key: "lobby", Label: "Lobby"}, {Key: "dev", Label: "Dev"}}, cfg.Rooms)
	assert.Equal(t, 1500*time.Millisecond, cfg.TypingTimeout)
	assert.True(t, cfg.StrictMembership)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 4*time.Second, cfg.ShutdownTimeout)
}

func TestNewConfigFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "-1")
	t.Setenv("RATE_LIMIT_BURST", "lots")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "0")
	t.Setenv("ROOMS", "geral=Sala Geral,geral=Again")
	t.Setenv("TYPING_TIMEOUT", "soon")
	t.Setenv("STRICT_ROOM_MEMBERSHIP", "maybe")

	cfg := NewConfigFromEnv()
	defaults := NewConfig()

	assert.Equal(t, defaults.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, defaults.RateLimit, cfg.RateLimit)
	assert.Equal(t, defaults.Rooms, cfg.Rooms)
	assert.Equal(t, defaults.TypingTimeout, cfg.TypingTimeout)
	assert.False(t, cfg.StrictMembership)
}

func TestSetConfigSanitizes(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	SetConfig(&Config{
		AllowedOrigins: []string{" HTTP://Example.COM/path ", "bogus", "*"},
	})
	cfg := currentConfig()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, []string{"http://example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Equal(t, rooms.DefaultCatalog(), cfg.Rooms)
	assert.Equal(t, typing.DefaultTimeout, cfg.TypingTimeout)

	configMu.RLock()
	defer configMu.RUnlock()
	assert.True(t, allowAllOrigins)
}

func TestSetConfigCopiesSlices(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	catalog, err := rooms.ParseCatalog("lobby")
	require.NoError(t, err)
	cfg := &Config{Rooms: catalog, AllowedOrigins: []string{"http://a.example.com"}}
	SetConfig(cfg)

	cfg.Rooms[0].Key = "mutated"
	cfg.AllowedOrigins[0] = "http://mutated.example.com"

	active := currentConfig()
	assert.Equal(t, "lobby", active.Rooms[0].Key)
	assert.Equal(t, []string{"http://a.example.com"}, active.AllowedOrigins)
}
