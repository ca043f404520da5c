package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Karinaskol06/webchat-microservices/internal/auth"
	"github.com/Karinaskol06/webchat-microservices/internal/config"
	"github.com/Karinaskol06/webchat-microservices/internal/directory"
	"github.com/Karinaskol06/webchat-microservices/internal/handler"
	"github.com/Karinaskol06/webchat-microservices/internal/middleware"
	sqliteRepo "github.com/Karinaskol06/webchat-microservices/internal/repository/sqlite"
	"github.com/Karinaskol06/webchat-microservices/internal/service"
)

// authPublicPaths are served without a principal on the auth-service.
var authPublicPaths = []string{
	"/api/auth/login",
	"/api/auth/register",
	"/api/auth/logout",
	"/api/auth/validate",
	"/health",
}

// NewAuthService builds the credential coordinator.
//
// DEPENDENCY CHAIN:
//
//	directory.Client → WithFallback → WithCache   (identity lookups)
//	sqlite.TrustStore                              (local trust records)
//	TokenService + PasswordService
//	  → service.AuthService → handler.AuthHandler
//
// The same directory chain resolves principals in the per-service filter.
func NewAuthService(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, auth.WithTTL(cfg.TokenTTL))
	if err != nil {
		return nil, fmt.Errorf("server: creating token service: %w", err)
	}
	passwords, err := auth.NewPasswordService(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("server: creating password service: %w", err)
	}

	client, err := directory.NewClient(cfg.UserServiceURL, logger, directory.WithTimeout(cfg.DirectoryTimeout))
	if err != nil {
		return nil, fmt.Errorf("server: creating directory client: %w", err)
	}
	dir := directory.WithCache(directory.WithFallback(client, logger), cfg.DirectoryCacheTTL)

	trust, err := sqliteRepo.NewTrustStore(ctx, cfg.DBPath)
	if err != nil {
		if c, ok := dir.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, fmt.Errorf("server: opening trust store: %w", err)
	}

	closers := []io.Closer{trust}
	if c, ok := dir.(io.Closer); ok {
		closers = append(closers, c)
	}

	svc := service.NewAuthService(dir, trust, tokens, passwords, logger)
	authHandler := handler.NewAuthHandler(svc, logger)
	authenticator := auth.NewAuthenticator(tokens, dir, logger,
		auth.WithPublicPrefixes(authPublicPaths...),
		auth.WithDegradedPrincipal(cfg.DegradedPrincipal),
	)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(authenticator.Middleware)
	r.Use(middleware.Logger(logger))

	r.Get("/health", handler.Health(string(config.AuthService), trust, logger))
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/validate", authHandler.HandleValidate)
		r.With(auth.RequireAuth).Get("/me", authHandler.HandleMe)
	})

	return newServer(string(config.AuthService), cfg.Port, r, logger, closers...), nil
}
