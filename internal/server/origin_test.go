package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "http://localhost:8080", want: "http://localhost:8080", ok: true},
		{in: "HTTPS://Chat.Example.COM", want: "https://chat.example.com", ok: true},
		{in: "https://chat.example.com/rooms?x=1", want: "https://chat.example.com", ok: true},
		{in: "chat.example.com", ok: false},
		{in: "http://", ok: false},
		{in: "://nope", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := normalizeOrigin(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckOrigin(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })
	SetConfig(&Config{AllowedOrigins: []string{"https://chat.example.com"}})

	tests := map[string]bool{
		"https://chat.example.com": true,
		"https://CHAT.example.com": true,
		"http://chat.example.com":  false,
		"https://evil.example.com": false,
		"":                         false,
	}

	for origin, want := range tests {
		t.Run(origin, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if origin != "" {
				r.Header.Set("Origin", origin)
			}
			assert.Equal(t, want, checkOrigin(r))
		})
	}
}
