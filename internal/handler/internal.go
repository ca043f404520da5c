package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Karinaskol06/webchat-microservices/internal/apperror"
	"github.com/Karinaskol06/webchat-microservices/internal/directory"
	"github.com/Karinaskol06/webchat-microservices/internal/model"
)

// InternalHandler exposes a Directory over HTTP at /internal/users. It is
// the server side of directory.Client and is not routed by the gateway.
type InternalHandler struct {
	dir    directory.Directory
	logger *slog.Logger
}

func NewInternalHandler(dir directory.Directory, logger *slog.Logger) *InternalHandler {
	return &InternalHandler{dir: dir, logger: logger}
}

// Routes mounts the internal API on r.
func (h *InternalHandler) Routes(r chi.Router) {
	r.Post(directory.PathRegister, h.HandleRegister)
	r.Get(directory.PathByUsername, h.HandleGetByUsername)
	r.Get(directory.PathExistsByUsername, h.HandleExistsByUsername)
	r.Get(directory.PathExistsByEmail, h.HandleExistsByEmail)
	r.Post(directory.PathValidate, h.HandleValidateCredentials)
	r.Post(directory.PathValidateAndInfo, h.HandleValidateAndGetInfo)
	r.Get(directory.PathByID, h.HandleGetByID)
}

func (h *InternalHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	rec, err := h.dir.RegisterUser(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *InternalHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("id", "id must be an integer"))
		return
	}
	rec, err := h.dir.GetUserByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *InternalHandler) HandleGetByUsername(w http.ResponseWriter, r *http.Request) {
	rec, err := h.dir.GetUserByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *InternalHandler) HandleExistsByUsername(w http.ResponseWriter, r *http.Request) {
	ok, err := h.dir.ExistsByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

func (h *InternalHandler) HandleExistsByEmail(w http.ResponseWriter, r *http.Request) {
	ok, err := h.dir.ExistsByEmail(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

func (h *InternalHandler) HandleValidateCredentials(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok, err := h.dir.ValidateCredentials(r.Context(), creds.Username, creds.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ok)
}

// HandleValidateAndGetInfo answers 401 for invalid credentials and the
// identity with its password hash otherwise.
func (h *InternalHandler) HandleValidateAndGetInfo(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.dir.ValidateAndGetInfo(r.Context(), creds.Username, creds.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if res == nil || !res.Valid {
		writeError(w, h.logger, apperror.InvalidCredentials())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
