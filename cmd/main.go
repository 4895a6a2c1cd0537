package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go-antinuke-guard/internal/bootstrap"
	"go-antinuke-guard/internal/config"
	"go-antinuke-guard/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: search config.yaml, /etc/antinuke/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bootstrap.New(cfg)
	if err := b.Initialize(ctx); err != nil {
		logging.Fatal().Err(err).Msg("startup failed")
	}

	logging.Info().Msg("anti-nuke engine running")
	runErr := b.Run(ctx)
	if runErr != nil {
		logging.Error().Err(runErr).Msg("supervisor stopped")
	}

	if err := bootstrap.Shutdown(b.Components); err != nil || runErr != nil {
		os.Exit(1)
	}
}
