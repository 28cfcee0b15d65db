// fabric is CATHEDRAL.FABRIC's command-line entry point: run, replay,
// diff, bundle, verify-bundle, inspect, policy, certify, verify-cert,
// and sim all live behind this one binary.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cathedral-fabric/fabric/internal/cli"
	"github.com/cathedral-fabric/fabric/internal/config"
	"github.com/cathedral-fabric/fabric/internal/telemetry"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load()
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("interrupted, cancelling in-flight run")
		cancel()
	}()

	root := cli.NewRootCommand()
	root.SetContext(ctx)
	runErr := root.Execute()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("telemetry shutdown failed")
	}

	if runErr != nil {
		code := cli.GetExitCode(runErr)
		if code == cli.ExitUserError {
			log.Error().Err(runErr).Msg("command failed")
		}
		os.Exit(code)
	}
}
