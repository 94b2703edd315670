package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yash101/scramjet/server"
	"github.com/yash101/scramjet/storage"
	"github.com/yash101/scramjet/userconfig"
)

func main() {
	// Log with filename and line number. This writes to stderr, so it
	// should be thread safe.
	log.Logger = log.With().Caller().Logger()

	configPath := flag.String(
		"config",
		"./config.yaml",
		"path to a JSON or YAML file containing your configuration",
	)
	level := flag.String(
		"level",
		"info",
		`log level: "info", "debug", or "warn"`,
	)
	flag.Parse()

	switch *level {
	case "debug":
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	case "warn":
		log.Logger = log.Logger.Level(zerolog.WarnLevel)
	default:
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	log.Info().
		Str("configPath", *configPath).
		Msg("starting the server")

	f, err := os.Open(*configPath)
	if err != nil {
		log.Error().
			Str("config-path", *configPath).
			Err(err).
			Msg("We can't open the application config file")
		os.Exit(1)
	}

	config, err := userconfig.Parse(f)
	f.Close()
	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem parsing your config")
		os.Exit(1)
	}

	checked, err := config.CheckAndSetDefaults()
	if err != nil {
		log.Error().
			Err(err).
			Msg("Problem validating your config")
		os.Exit(1)
	}

	db, err := storage.NewPebbleDB(checked.Storage.KVConfig(), log.Logger)
	if err != nil {
		log.Error().
			Str("dbDir", checked.Storage.DirPath).
			Err(err).
			Msg("We can't open the store")
		os.Exit(1)
	}

	srv := server.New(server.Config{
		SocketPath:   checked.Server.SocketPath,
		ReadTimeout:  checked.Server.ReadTimeout,
		WriteTimeout: checked.Server.WriteTimeout,
		MaxPayload:   checked.Server.MaxPayload,
	}, db, log.Logger)

	// Intercept interrupts so connections get torn down cooperatively
	// before the store closes.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func(c chan os.Signal) {
		<-c
		log.Info().Msg("interrupt: shutting down")
		srv.Shutdown()
	}(sigCh)

	if err := srv.ListenAndServe(); err != nil {
		log.Error().Err(err).Msg("server failed to start")
		db.Close()
		os.Exit(1)
	}

	// ListenAndServe returns once the listener stops; wait for workers
	// before closing the store they share.
	srv.Shutdown()

	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("problem closing the store")
		os.Exit(1)
	}
}
