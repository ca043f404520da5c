// Package server wires handlers, middleware, and storage into the three
// binaries and owns their lifecycle.
//
// COMPOSITION ROOTS:
// Each service has one constructor (NewGateway, NewAuthService,
// NewUserService) that builds every dependency from a config.Config and
// returns a *Server. main only loads config, builds a logger, and calls
// Start. Tests call Handler and serve it with httptest instead.
//
// RESOURCE MANAGEMENT:
// A Server owns the resources its constructor opened (database handles,
// the directory cache janitor). They are released by Close, which Start
// runs after the HTTP server has drained.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// shutdownTimeout bounds how long in-flight requests may run after a signal.
const shutdownTimeout = 30 * time.Second

// Server is one running service.
type Server struct {
	name    string
	port    int
	handler http.Handler
	logger  *slog.Logger
	closers []io.Closer
}

func newServer(name string, port int, handler http.Handler, logger *slog.Logger, closers ...io.Closer) *Server {
	return &Server{
		name:    name,
		port:    port,
		handler: handler,
		logger:  logger,
		closers: closers,
	}
}

// Handler returns the fully wired root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close releases everything the server owns, newest first.
func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully:
// stop accepting connections, let in-flight requests finish, close resources.
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.String("service", s.name),
			slog.Int("port", s.port),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully", slog.String("service", s.name))
	}

	return nil
}
