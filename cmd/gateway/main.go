// Package main runs the MoonTV gateway HTTP server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/moontv/gateway/internal/app"
	"github.com/moontv/gateway/internal/app/httpapi"
	"github.com/moontv/gateway/internal/config"
	"github.com/moontv/gateway/internal/logging"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to an optional .env file")
	flag.Parse()

	cfg, err := config.LoadFrom(*envFile)
	if err != nil {
		logging.New(httpapi.ServiceName, "info", "json").WithError(err).Fatal("Failed to load configuration")
	}

	log := logging.New(httpapi.ServiceName, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialise gateway")
	}

	log.WithField("storage_type", cfg.Storage.Type).WithField("version", cfg.Site.Version).Info("Starting gateway")
	runErr := application.Run(ctx)
	if runErr != nil {
		log.WithError(runErr).Error("Gateway server failed")
	}

	log.Info("Shutting down gateway")
	if err := application.Shutdown(context.Background()); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
	if runErr != nil {
		os.Exit(1)
	}
}
