// Command user-service owns the canonical identity records. It serves the
// internal directory API to other services and the /api/users profile API
// behind the gateway.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Karinaskol06/webchat-microservices/internal/config"
	"github.com/Karinaskol06/webchat-microservices/internal/server"
)

func main() {
	cfg, err := config.Load(config.UserService, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "user-service: %v\n", err)
		os.Exit(2)
	}
	level, err := cfg.Level()
	if err != nil {
		fmt.Fprintf(os.Stderr, "user-service: %v\n", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	srv, err := server.NewUserService(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
