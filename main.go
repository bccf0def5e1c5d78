package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/clanboard/api"
	"github.com/brettboylen/clanboard/db"
	"github.com/brettboylen/clanboard/server"
	"github.com/brettboylen/clanboard/stats"
	"github.com/brettboylen/clanboard/utils"
)

func main() {
	envPath := flag.String("env", ".env", "Path to .env file")
	logLevel := flag.String("log-level", "debug", "Logging level (debug, info, warn, error)")
	flag.Parse()

	log := setupLogger(*logLevel)
	log.Info("Starting clanboard")

	config, err := utils.LoadConfig(*envPath, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	log.WithFields(logrus.Fields{
		"backend_url":      config.Backend.URL,
		"polling_interval": config.Stats.PollingInterval,
		"server_port":      config.Server.Port,
		"session_ttl":      config.Server.SessionTTL.String(),
	}).Info("Configuration loaded")

	database, err := db.NewDatabase(config.Database.Path, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.Close()

	backend := api.NewClient(
		config.Backend.URL,
		config.Backend.Timeout,
		config.Backend.MaxRequestsPerMinute,
		log,
	)

	collector := stats.NewCollector(
		backend,
		database,
		config.Stats.PollingInterval,
		log,
	)

	viewers := server.NewRegistry(backend, server.Caches{
		Tokens: database,
		Posts:  database,
		Clans:  database,
	}, config.Server.SessionTTL, log)

	srv := server.New(server.Config{
		Port:                 config.Server.Port,
		MaxRequestsPerMinute: config.Server.MaxRequestsPerMinute,
		SessionTTL:           config.Server.SessionTTL,
	}, viewers, collector, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.Start(ctx)

	go func() {
		if err := collector.Start(ctx); err != nil && err != context.Canceled {
			log.WithError(err).Error("Stats collector stopped unexpectedly")
		}
	}()

	waitForShutdown(cancel, log)
}

// setupLogger sets up the logger with the specified log level
func setupLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// waitForShutdown waits for a shutdown signal
func waitForShutdown(cancel context.CancelFunc, log *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithField("signal", sig.String()).Info("Shutdown signal received")

	cancel()

	// give the server time to drain
	time.Sleep(1 * time.Second)
	log.Info("clanboard stopped")
}
