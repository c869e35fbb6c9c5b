// Package server constructs and starts the room chat HTTP service with
// helpers that apply production timeouts.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// CreateServer creates and configures an HTTP server with the specified port and handler.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartHub runs hub's event loop in its own goroutine. Call it before
// accepting connections.
func StartHub(hub *Hub) {
	go hub.Run()
	log.Info().Str("module", "server").Strs("rooms", hub.Catalog().Keys()).Msg("hub started")
}

// StartServer starts the HTTP server and blocks until it stops. A server
// closed by Shutdown returns nil.
func StartServer(server *http.Server) error {
	log.Info().Str("module", "server").Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServer stops accepting connections and waits for in-flight HTTP
// requests, bounded by ctx.
func ShutdownServer(ctx context.Context, server *http.Server) error {
	log.Info().Str("module", "server").Msg("shutting down HTTP server")

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Str("module", "server").Err(err).Msg("HTTP server shutdown error")
		return err
	}

	log.Info().Str("module", "server").Msg("HTTP server shutdown completed")
	return nil
}
