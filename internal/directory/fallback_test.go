package directory

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Karinaskol06/webchat-microservices/internal/apperror"
	"github.com/Karinaskol06/webchat-microservices/internal/model"
)

// unreachableClient points at a server that has already been shut down.
func unreachableClient(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, testLogger())
	require.NoError(t, err)
	return c
}

func TestFallback_UnreachableDefaults(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	dir := WithFallback(unreachableClient(t), logger)
	ctx := context.Background()

	exists, err := dir.ExistsByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = dir.ExistsByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	rec, err := dir.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = dir.GetUserByID(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, rec)

	valid, err := dir.ValidateCredentials(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.False(t, valid)

	res, err := dir.ValidateAndGetInfo(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Nil(t, res)

	_, err = dir.RegisterUser(ctx, model.RegisterRequest{Username: "bob", Password: "hunter2", Email: "bob@example.com"})
	assert.ErrorIs(t, err, apperror.ErrUnavailable)

	out := logs.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "operation=ValidateAndGetInfo")
	assert.Contains(t, out, "operation=RegisterUser")
}

func TestFallback_PassesThroughAnswers(t *testing.T) {
	c, _ := newTestClient(t)
	dir := WithFallback(c, testLogger())
	ctx := context.Background()

	rec, err := dir.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice, *rec)

	exists, err := dir.ExistsByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	res, err := dir.ValidateAndGetInfo(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestFallback_NotFoundBecomesAbsent(t *testing.T) {
	c, _ := newTestClient(t)
	dir := WithFallback(c, testLogger())

	rec, err := dir.GetUserByUsername(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFallback_RegisterKeepsDuplicate(t *testing.T) {
	c, _ := newTestClient(t)
	dir := WithFallback(c, testLogger())

	_, err := dir.RegisterUser(context.Background(), model.RegisterRequest{Username: "alice", Password: "hunter2", Email: "x@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrDuplicate)
	assert.NotErrorIs(t, err, apperror.ErrUnavailable)
}

type failingDirectory struct {
	Directory
	err error
}

func (f failingDirectory) RegisterUser(context.Context, model.RegisterRequest) (*model.IdentityRecord, error) {
	return nil, f.err
}

func TestFallback_RegisterWrapsUnknownErrors(t *testing.T) {
	dir := WithFallback(failingDirectory{err: errors.New("boom")}, testLogger())

	_, err := dir.RegisterUser(context.Background(), model.RegisterRequest{Username: "bob"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrUnavailable)
	assert.Equal(t, "registration service unavailable", err.Error())
}
