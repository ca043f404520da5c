package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Karinaskol06/webchat-microservices/internal/apperror"
	"github.com/Karinaskol06/webchat-microservices/internal/auth"
	"github.com/Karinaskol06/webchat-microservices/internal/handler"
	"github.com/Karinaskol06/webchat-microservices/internal/model"
	"github.com/Karinaskol06/webchat-microservices/internal/service"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

// MockAuthService records what the handler passed and returns canned values.
type MockAuthService struct {
	CapturedCreds model.Credentials
	CapturedReg   model.RegisterRequest
	CapturedToken string

	LoginRes    *service.LoginResponse
	RegisterRes *model.IdentityRecord
	Validation  service.TokenValidation
	Me          *service.CurrentUser
	Err         error
}

func (m *MockAuthService) Login(ctx context.Context, creds model.Credentials) (*service.LoginResponse, error) {
	m.CapturedCreds = creds
	return m.LoginRes, m.Err
}

func (m *MockAuthService) Register(ctx context.Context, req model.RegisterRequest) (*model.IdentityRecord, error) {
	m.CapturedReg = req
	return m.RegisterRes, m.Err
}

func (m *MockAuthService) ValidateToken(token string) service.TokenValidation {
	m.CapturedToken = token
	return m.Validation
}

func (m *MockAuthService) CurrentUser(ctx context.Context, p *auth.Principal) (*service.CurrentUser, error) {
	return m.Me, m.Err
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

func TestAuthHandler_HandleLogin(t *testing.T) {
	t.Run("valid credentials", func(t *testing.T) {
		mock := &MockAuthService{LoginRes: &service.LoginResponse{
			Token: "tok", TokenType: "Bearer", ID: 7, Username: "alice", Email: "a@x.com",
		}}
		h := handler.NewAuthHandler(mock, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"username":"alice","password":"secret1"}`))
		rr := httptest.NewRecorder()
		h.HandleLogin(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var res service.LoginResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "tok", res.Token)
		assert.Equal(t, "Bearer", res.TokenType)
		assert.Equal(t, model.Credentials{Username: "alice", Password: "secret1"}, mock.CapturedCreds)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		mock := &MockAuthService{Err: apperror.InvalidCredentials()}
		h := handler.NewAuthHandler(mock, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"username":"alice","password":"nope1"}`))
		rr := httptest.NewRecorder()
		h.HandleLogin(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "invalid_credentials", decodeError(t, rr).Error)
	})

	t.Run("invalid request body", func(t *testing.T) {
		mock := &MockAuthService{}
		h := handler.NewAuthHandler(mock, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"username":`))
		rr := httptest.NewRecorder()
		h.HandleLogin(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		body := decodeError(t, rr)
		assert.Equal(t, "validation_error", body.Error)
		assert.Equal(t, "body", body.Field)
	})
}

func TestAuthHandler_HandleRegister(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		mock := &MockAuthService{RegisterRes: &model.IdentityRecord{ID: 1, Username: "alice", Email: "a@x.com", Active: true}}
		h := handler.NewAuthHandler(mock, logger)

		req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
			bytes.NewBufferString(`{"username":"alice","password":"secret1","email":"a@x.com","firstName":"Alice"}`))
		rr := httptest.NewRecorder()
		h.HandleRegister(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Equal(t, "Alice", mock.CapturedReg.FirstName)

		var rec model.IdentityRecord
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&rec))
		assert.Equal(t, "alice", rec.Username)
	})

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
		wantMsg  string
	}{
		{"duplicate username", apperror.Duplicate("username", "Username already exists"), http.StatusBadRequest, "duplicate_identity", "Username already exists"},
		{"validation", apperror.ValidationFailed("password", "Password must be at least 5 characters"), http.StatusBadRequest, "validation_error", "Password must be at least 5 characters"},
		{"directory down", apperror.Unavailable("Registration service unavailable", errors.New("dial tcp: refused")), http.StatusServiceUnavailable, "service_unavailable", "Registration service unavailable"},
		{"unexpected error", errors.New("disk on fire"), http.StatusInternalServerError, "internal_error", "An internal error occurred"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewAuthHandler(&MockAuthService{Err: tt.err}, logger)

			req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
				bytes.NewBufferString(`{"username":"alice","password":"secret1","email":"a@x.com"}`))
			rr := httptest.NewRecorder()
			h.HandleRegister(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
			body := decodeError(t, rr)
			assert.Equal(t, tt.wantKind, body.Error)
			assert.Equal(t, tt.wantMsg, body.Message)
		})
	}
}

func TestAuthHandler_HandleLogout(t *testing.T) {
	h := handler.NewAuthHandler(&MockAuthService{}, logger)

	rr := httptest.NewRecorder()
	h.HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"Logged out successfully"}`, rr.Body.String())
}

func TestAuthHandler_HandleValidate(t *testing.T) {
	t.Run("bearer token is passed through", func(t *testing.T) {
		mock := &MockAuthService{Validation: service.TokenValidation{Valid: true, Username: "alice", Message: "Token is valid"}}
		h := handler.NewAuthHandler(mock, logger)

		req := httptest.NewRequest(http.MethodGet, "/api/auth/validate", nil)
		req.Header.Set("Authorization", "Bearer abc.def.ghi")
		rr := httptest.NewRecorder()
		h.HandleValidate(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "abc.def.ghi", mock.CapturedToken)
		assert.JSONEq(t, `{"valid":true,"username":"alice","message":"Token is valid"}`, rr.Body.String())
	})

	t.Run("missing header still answers 200", func(t *testing.T) {
		mock := &MockAuthService{Validation: service.TokenValidation{Message: "No token provided"}}
		h := handler.NewAuthHandler(mock, logger)

		rr := httptest.NewRecorder()
		h.HandleValidate(rr, httptest.NewRequest(http.MethodGet, "/api/auth/validate", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, mock.CapturedToken)
		assert.JSONEq(t, `{"valid":false,"message":"No token provided"}`, rr.Body.String())
	})
}

func TestAuthHandler_HandleMe(t *testing.T) {
	t.Run("with principal", func(t *testing.T) {
		mock := &MockAuthService{Me: &service.CurrentUser{ID: 7, Username: "alice", Active: true, Roles: []string{"ROLE_USER"}}}
		h := handler.NewAuthHandler(mock, logger)

		p := auth.NewPrincipal(7, "alice", "a@x.com", true, []string{"ROLE_USER"})
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		req = req.WithContext(auth.WithPrincipal(req.Context(), p))
		rr := httptest.NewRecorder()
		h.HandleMe(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var me service.CurrentUser
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&me))
		assert.Equal(t, "alice", me.Username)
		assert.Equal(t, []string{"ROLE_USER"}, me.Roles)
	})

	t.Run("without principal", func(t *testing.T) {
		h := handler.NewAuthHandler(&MockAuthService{}, logger)

		rr := httptest.NewRecorder()
		h.HandleMe(rr, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "unauthorized", decodeError(t, rr).Error)
	})
}
