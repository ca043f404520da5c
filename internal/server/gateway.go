package server

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/Karinaskol06/webchat-microservices/internal/auth"
	"github.com/Karinaskol06/webchat-microservices/internal/config"
	"github.com/Karinaskol06/webchat-microservices/internal/gateway"
)

// NewGateway builds the edge: token validation in front of the two services.
//
// ROUTES:
// GET  /health       → gateway health
// *    /api/auth/*   → auth-service
// *    /api/users    → user-service
// *    /api/users/*  → user-service
func NewGateway(cfg config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, auth.WithTTL(cfg.TokenTTL))
	if err != nil {
		return nil, fmt.Errorf("server: creating token service: %w", err)
	}

	authURL, err := url.Parse(cfg.AuthServiceURL)
	if err != nil {
		return nil, fmt.Errorf("server: parsing auth service URL: %w", err)
	}
	usersURL, err := url.Parse(cfg.UserServiceURL)
	if err != nil {
		return nil, fmt.Errorf("server: parsing user service URL: %w", err)
	}

	var opts []gateway.EdgeOption
	if len(cfg.PublicPrefixes) > 0 {
		opts = append(opts, gateway.WithPublicPrefixes(cfg.PublicPrefixes...))
	}
	filter := gateway.NewEdgeFilter(tokens, logger, opts...)

	router := gateway.NewRouter(gateway.Upstreams{Auth: authURL, Users: usersURL}, filter, logger)
	return newServer(string(config.Gateway), cfg.Port, router, logger), nil
}
