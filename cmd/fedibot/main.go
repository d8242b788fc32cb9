// Copyright 2024-2026 Aiku AI

// Command fedibot runs the bot runtime as a standalone daemon: it opens
// the Pebble store, wires a dry-run federation client, and serves the
// inbox and object-dereference HTTP endpoints. Real deployments embed
// pkg/bot as a library and supply their own FederationClient; this
// daemon exists for local development and protocol experiments.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/fedibot/pkg/bot"
	"github.com/aiku/fedibot/pkg/store"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	writeExample := flag.Bool("example-config", false, "print the example config and exit")
	flag.Parse()

	if *writeExample {
		fmt.Print(bot.ExampleConfig)
		return
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli}).
		With().Timestamp().Logger()

	if err := run(*configPath, log); err != nil {
		log.Fatal().Err(err).Msg("fedibot exited")
	}
}

func run(configPath string, log zerolog.Logger) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config (try -example-config): %w", err)
	}
	cfg, err := bot.ParseConfig(data)
	if err != nil {
		return err
	}

	st, err := store.OpenPebble(cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	fed := newDryRunClient(cfg.Domain, log)
	b, err := bot.New(bot.Options{
		Config:     cfg,
		Store:      st,
		Federation: fed,
		Handlers:   loggingHandlers(log),
		Logger:     log,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("version", Tag).
		Str("commit", Commit).
		Str("built", BuildTime).
		Str("actor", b.ActorURI()).
		Str("addr", cfg.InboxAddr).
		Msg("Starting fedibot")

	server := &http.Server{
		Addr:         cfg.InboxAddr,
		Handler:      newHTTPHandler(b, log),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}
