package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Karinaskol06/webchat-microservices/internal/apperror"
	"github.com/Karinaskol06/webchat-microservices/internal/auth"
	"github.com/Karinaskol06/webchat-microservices/internal/model"
	"github.com/Karinaskol06/webchat-microservices/internal/service"
)

// AuthService is what the auth handlers need from the coordinator.
type AuthService interface {
	Login(ctx context.Context, creds model.Credentials) (*service.LoginResponse, error)
	Register(ctx context.Context, req model.RegisterRequest) (*model.IdentityRecord, error)
	ValidateToken(token string) service.TokenValidation
	CurrentUser(ctx context.Context, p *auth.Principal) (*service.CurrentUser, error)
}

// AuthHandler serves /api/auth on the auth-service.
type AuthHandler struct {
	svc    AuthService
	logger *slog.Logger
}

func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// HandleLogin exchanges credentials for a token.
//
// HTTP: POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp, err := h.svc.Login(r.Context(), creds)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleRegister creates an account.
//
// HTTP: POST /api/auth/register → 201 with the identity record
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	rec, err := h.svc.Register(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// HandleLogout acknowledges a logout. Tokens are stateless, so the client
// discarding its token is the whole logout.
//
// HTTP: POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// HandleValidate reports whether the bearer token is valid. It always
// answers 200.
//
// HTTP: GET /api/auth/validate
func (h *AuthHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.BearerToken(r)
	writeJSON(w, http.StatusOK, h.svc.ValidateToken(token))
}

// HandleMe returns the authenticated caller. Mounted behind auth.RequireAuth.
//
// HTTP: GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized("valid authentication required"))
		return
	}

	me, err := h.svc.CurrentUser(r.Context(), p)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, me)
}
