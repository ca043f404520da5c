package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Karinaskol06/webchat-microservices/internal/apperror"
	"github.com/Karinaskol06/webchat-microservices/internal/auth"
	"github.com/Karinaskol06/webchat-microservices/internal/model"
	"github.com/Karinaskol06/webchat-microservices/internal/repository"
)

// UserService is what the public user handlers need.
type UserService interface {
	GetUserByUsername(ctx context.Context, username string) (*model.IdentityRecord, error)
	UpdateProfile(ctx context.Context, username string, req model.UpdateProfileRequest) (*model.IdentityRecord, error)
	ChangePassword(ctx context.Context, username string, req model.ChangePasswordRequest) error
	ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.IdentityRecord, error)
}

// UserHandler serves /api/users on the user-service. Every route is mounted
// behind auth.RequireAuth; the caller is the principal, never a header.
type UserHandler struct {
	svc    UserService
	logger *slog.Logger
}

func NewUserHandler(svc UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger}
}

func (h *UserHandler) principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized("valid authentication required"))
	}
	return p, ok
}

// HandleList returns all users. Optional ?limit= and ?offset= page the result.
//
// HTTP: GET /api/users
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.principal(w, r); !ok {
		return
	}

	opts := repository.ListOptions{}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, h.logger, apperror.ValidationFailed("limit", "limit must be a non-negative integer"))
			return
		}
		opts.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, h.logger, apperror.ValidationFailed("offset", "offset must be a non-negative integer"))
			return
		}
		opts.Offset = n
	}

	users, err := h.svc.ListUsers(r.Context(), opts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleGetProfile returns the caller's own record.
//
// HTTP: GET /api/users/profile
func (h *UserHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	rec, err := h.svc.GetUserByUsername(r.Context(), p.Username)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleUpdateProfile changes the caller's profile fields.
//
// HTTP: PUT /api/users/profile
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req model.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	rec, err := h.svc.UpdateProfile(r.Context(), p.Username, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleChangePassword replaces the caller's password.
//
// HTTP: PUT /api/users/change-password
func (h *UserHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req model.ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.svc.ChangePassword(r.Context(), p.Username, req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password changed successfully"})
}
