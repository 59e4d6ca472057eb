package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"matchvault/internal/config"
	"matchvault/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	flagSet := pflag.NewFlagSet("matchvault", pflag.ContinueOnError)
	config.RegisterFlags(flagSet)
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	conf, err := config.Load(flagSet)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(conf.Log.Level, conf.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if conf.Path != "" {
		logger.Info().Str("path", conf.Path).Msg("loaded config file")
	}

	ctx := setupSignalHandler(logger)

	app, err := NewApp(ctx, conf, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("stopped with error")
		app.Close()
		os.Exit(1)
	}
	logger.Info().Msg("stopped")
}

// setupSignalHandler returns a context cancelled on SIGINT or SIGTERM. A
// second signal exits immediately without waiting for archives.
func setupSignalHandler(logger zerolog.Logger) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down, waiting for running archives")
		cancel()

		sig = <-sigCh
		logger.Warn().Str("signal", sig.String()).Msg("forcing exit")
		os.Exit(1)
	}()

	return ctx
}
