package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/zzjunior/whatsapp-checker-api/internal/app"
	"github.com/zzjunior/whatsapp-checker-api/internal/app/config"
	"github.com/zzjunior/whatsapp-checker-api/pkg/logger"
)

var versionFlag = flag.Bool("version", false, "Display version information and exit")

const version = "1.0.0"

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("whatsapp-checker version %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.SetGlobalLogger(logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ColorOutput: cfg.Logging.ColorOutput,
		TimeFormat:  cfg.Logging.TimeFormat,
		File:        cfg.Logging.File,
	}))

	log.Info().Str("version", version).Msg("Starting whatsapp-checker")

	container, err := app.NewContainer(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application container")
	}
	defer container.Close()

	server := app.NewServer(container, version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server failed to start")
	}

	log.Info().Msg("whatsapp-checker stopped gracefully")
}
