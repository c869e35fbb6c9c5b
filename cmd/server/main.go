package main

import (
	"context"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Tyrowin/roomchat/internal/server"
)

func main() {
	envErr := godotenv.Load()

	cfg := server.NewConfigFromEnv()
	server.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file loaded, using process environment")
	}
	server.SetConfig(cfg)

	log.Info().
		Str("port", cfg.Port).
		Strs("origins", cfg.AllowedOrigins).
		Str("rooms", cfg.Rooms.String()).
		Dur("typing_timeout", cfg.TypingTimeout).
		Bool("strict_membership", cfg.StrictMembership).
		Msg("starting room chat server")

	hub := server.NewHub()
	server.StartHub(hub)

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(hub))
	go func() {
		if err := server.StartServer(httpServer); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return server.ShutdownServer(ctx, httpServer)
			},
			"hub": func(context.Context) error {
				return hub.Shutdown(cfg.ShutdownTimeout)
			},
		},
	)

	exitCode := <-wait
	log.Info().Int("exit_code", exitCode).Msg("server exited")
	os.Exit(exitCode)
}
