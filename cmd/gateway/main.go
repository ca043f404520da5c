// Command gateway is the public entry point. It validates bearer tokens at
// the edge and proxies /api/auth to the auth-service and /api/users to the
// user-service.
//
// Configuration comes from flags, environment variables, and an optional
// YAML file; see internal/config. Example:
//
//	JWT_SECRET=$(openssl rand -hex 32) gateway --port 8080 \
//	    --auth-service-url http://localhost:8082 \
//	    --user-service-url http://localhost:8081
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Karinaskol06/webchat-microservices/internal/config"
	"github.com/Karinaskol06/webchat-microservices/internal/server"
)

func main() {
	cfg, err := config.Load(config.Gateway, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(2)
	}
	level, err := cfg.Level()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	srv, err := server.NewGateway(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
