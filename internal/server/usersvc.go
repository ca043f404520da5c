package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Karinaskol06/webchat-microservices/internal/auth"
	"github.com/Karinaskol06/webchat-microservices/internal/config"
	"github.com/Karinaskol06/webchat-microservices/internal/handler"
	"github.com/Karinaskol06/webchat-microservices/internal/middleware"
	sqliteRepo "github.com/Karinaskol06/webchat-microservices/internal/repository/sqlite"
	"github.com/Karinaskol06/webchat-microservices/internal/service"
)

// userPublicPaths skip the per-service filter. /internal/ is reachable only
// from inside the deployment; the gateway never routes it.
var userPublicPaths = []string{"/internal/", "/health"}

// NewUserService builds the identity service.
//
// ROUTES:
// GET  /health                    → health with DB ping
// *    /internal/users/...        → directory API for other services
// GET  /api/users                 → list users        (auth required)
// GET  /api/users/profile         → caller's profile  (auth required)
// PUT  /api/users/profile         → update profile    (auth required)
// PUT  /api/users/change-password → change password   (auth required)
func NewUserService(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, auth.WithTTL(cfg.TokenTTL))
	if err != nil {
		return nil, fmt.Errorf("server: creating token service: %w", err)
	}
	passwords, err := auth.NewPasswordService(cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("server: creating password service: %w", err)
	}

	store, err := sqliteRepo.NewIdentityStore(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("server: opening identity store: %w", err)
	}

	svc := service.NewUserService(store, passwords, logger)
	users := handler.NewUserHandler(svc, logger)
	internal := handler.NewInternalHandler(svc, logger)
	authenticator := auth.NewAuthenticator(tokens, svc, logger,
		auth.WithPublicPrefixes(userPublicPaths...),
		auth.WithDegradedPrincipal(cfg.DegradedPrincipal),
	)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(authenticator.Middleware)
	r.Use(middleware.Logger(logger))

	r.Get("/health", handler.Health(string(config.UserService), store, logger))
	internal.Routes(r)
	r.Route("/api/users", func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Get("/", users.HandleList)
		r.Get("/profile", users.HandleGetProfile)
		r.Put("/profile", users.HandleUpdateProfile)
		r.Put("/change-password", users.HandleChangePassword)
	})

	return newServer(string(config.UserService), cfg.Port, r, logger, store), nil
}
