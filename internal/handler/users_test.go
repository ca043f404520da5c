package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Karinaskol06/webchat-microservices/internal/apperror"
	"github.com/Karinaskol06/webchat-microservices/internal/auth"
	"github.com/Karinaskol06/webchat-microservices/internal/handler"
	"github.com/Karinaskol06/webchat-microservices/internal/model"
	"github.com/Karinaskol06/webchat-microservices/internal/repository"
)

type MockUserService struct {
	CapturedUsername string
	CapturedUpdate   model.UpdateProfileRequest
	CapturedChange   model.ChangePasswordRequest
	CapturedList     repository.ListOptions

	Record *model.IdentityRecord
	List   []model.IdentityRecord
	Err    error
}

func (m *MockUserService) GetUserByUsername(ctx context.Context, username string) (*model.IdentityRecord, error) {
	m.CapturedUsername = username
	return m.Record, m.Err
}

func (m *MockUserService) UpdateProfile(ctx context.Context, username string, req model.UpdateProfileRequest) (*model.IdentityRecord, error) {
	m.CapturedUsername = username
	m.CapturedUpdate = req
	return m.Record, m.Err
}

func (m *MockUserService) ChangePassword(ctx context.Context, username string, req model.ChangePasswordRequest) error {
	m.CapturedUsername = username
	m.CapturedChange = req
	return m.Err
}

func (m *MockUserService) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.IdentityRecord, error) {
	m.CapturedList = opts
	return m.List, m.Err
}

// asAlice attaches the principal the per-service filter would have set.
func asAlice(r *http.Request) *http.Request {
	p := auth.NewPrincipal(7, "alice", "a@x.com", true, []string{"ROLE_USER"})
	return r.WithContext(auth.WithPrincipal(r.Context(), p))
}

func TestUserHandler_HandleGetProfile(t *testing.T) {
	mock := &MockUserService{Record: &model.IdentityRecord{ID: 7, Username: "alice", Email: "a@x.com", Active: true}}
	h := handler.NewUserHandler(mock, logger)

	rr := httptest.NewRecorder()
	h.HandleGetProfile(rr, asAlice(httptest.NewRequest(http.MethodGet, "/api/users/profile", nil)))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "alice", mock.CapturedUsername)
	assert.JSONEq(t, `{"id":7,"username":"alice","email":"a@x.com","active":true}`, rr.Body.String())
}

func TestUserHandler_RequiresPrincipal(t *testing.T) {
	h := handler.NewUserHandler(&MockUserService{}, logger)

	handlers := map[string]http.HandlerFunc{
		"list":            h.HandleList,
		"get profile":     h.HandleGetProfile,
		"update profile":  h.HandleUpdateProfile,
		"change password": h.HandleChangePassword,
	}
	for name, fn := range handlers {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			fn(rr, httptest.NewRequest(http.MethodGet, "/api/users", nil))
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
}

func TestUserHandler_HandleUpdateProfile(t *testing.T) {
	t.Run("updates the caller", func(t *testing.T) {
		mock := &MockUserService{Record: &model.IdentityRecord{ID: 7, Username: "alice", FirstName: "Alice"}}
		h := handler.NewUserHandler(mock, logger)

		req := httptest.NewRequest(http.MethodPut, "/api/users/profile", bytes.NewBufferString(`{"firstName":"Alice"}`))
		rr := httptest.NewRecorder()
		h.HandleUpdateProfile(rr, asAlice(req))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "alice", mock.CapturedUsername)
		require.NotNil(t, mock.CapturedUpdate.FirstName)
		assert.Equal(t, "Alice", *mock.CapturedUpdate.FirstName)
		assert.Nil(t, mock.CapturedUpdate.Email)
	})

	t.Run("email taken", func(t *testing.T) {
		mock := &MockUserService{Err: apperror.Duplicate("email", "Email is already in use")}
		h := handler.NewUserHandler(mock, logger)

		req := httptest.NewRequest(http.MethodPut, "/api/users/profile", bytes.NewBufferString(`{"email":"b@x.com"}`))
		rr := httptest.NewRecorder()
		h.HandleUpdateProfile(rr, asAlice(req))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		body := decodeError(t, rr)
		assert.Equal(t, "email", body.Field)
		assert.Equal(t, "Email is already in use", body.Message)
	})
}

func TestUserHandler_HandleChangePassword(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mock := &MockUserService{}
		h := handler.NewUserHandler(mock, logger)

		req := httptest.NewRequest(http.MethodPut, "/api/users/change-password",
			bytes.NewBufferString(`{"oldPassword":"secret1","newPassword":"secret2","repeatPassword":"secret2"}`))
		rr := httptest.NewRecorder()
		h.HandleChangePassword(rr, asAlice(req))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "secret2", mock.CapturedChange.NewPassword)
		assert.JSONEq(t, `{"message":"Password changed successfully"}`, rr.Body.String())
	})

	t.Run("wrong old password", func(t *testing.T) {
		mock := &MockUserService{Err: apperror.ValidationFailed("oldPassword", "Old password is incorrect")}
		h := handler.NewUserHandler(mock, logger)

		req := httptest.NewRequest(http.MethodPut, "/api/users/change-password",
			bytes.NewBufferString(`{"oldPassword":"nope1","newPassword":"secret2","repeatPassword":"secret2"}`))
		rr := httptest.NewRecorder()
		h.HandleChangePassword(rr, asAlice(req))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "oldPassword", decodeError(t, rr).Field)
	})
}

func TestUserHandler_HandleList(t *testing.T) {
	t.Run("paging parameters", func(t *testing.T) {
		mock := &MockUserService{List: []model.IdentityRecord{{ID: 1, Username: "alice"}, {ID: 2, Username: "bob"}}}
		h := handler.NewUserHandler(mock, logger)

		rr := httptest.NewRecorder()
		h.HandleList(rr, asAlice(httptest.NewRequest(http.MethodGet, "/api/users?limit=2&offset=4", nil)))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, repository.ListOptions{Limit: 2, Offset: 4}, mock.CapturedList)

		var got []model.IdentityRecord
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		assert.Len(t, got, 2)
	})

	for _, query := range []string{"limit=abc", "limit=-1", "offset=x"} {
		t.Run("bad "+query, func(t *testing.T) {
			h := handler.NewUserHandler(&MockUserService{}, logger)

			rr := httptest.NewRecorder()
			h.HandleList(rr, asAlice(httptest.NewRequest(http.MethodGet, "/api/users?"+query, nil)))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}
