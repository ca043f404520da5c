package directory

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Karinaskol06/webchat-microservices/internal/apperror"
	"github.com/Karinaskol06/webchat-microservices/internal/model"
)

// Fallback absorbs failures of the wrapped directory with fixed defaults so
// a caller can degrade instead of failing. Every default is safe: nothing
// exists, nobody is found, no credentials are valid.
type Fallback struct {
	inner  Directory
	logger *slog.Logger
}

var _ Directory = (*Fallback)(nil)

// WithFallback wraps inner with the fallback policy.
func WithFallback(inner Directory, logger *slog.Logger) *Fallback {
	return &Fallback{inner: inner, logger: logger}
}

func (f *Fallback) warn(op string, err error) {
	f.logger.Warn("directory fallback engaged",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// RegisterUser has no safe default; the failure is reported as unavailable.
func (f *Fallback) RegisterUser(ctx context.Context, req model.RegisterRequest) (*model.IdentityRecord, error) {
	rec, err := f.inner.RegisterUser(ctx, req)
	if err == nil {
		return rec, nil
	}
	f.warn("RegisterUser", err)
	if errors.Is(err, apperror.ErrUnavailable) || errors.Is(err, apperror.ErrDuplicate) {
		return nil, err
	}
	return nil, apperror.Unavailable("registration service unavailable", err)
}

func (f *Fallback) GetUserByID(ctx context.Context, id int64) (*model.IdentityRecord, error) {
	rec, err := f.inner.GetUserByID(ctx, id)
	if err != nil {
		f.warn("GetUserByID", err)
		return nil, nil
	}
	return rec, nil
}

func (f *Fallback) GetUserByUsername(ctx context.Context, username string) (*model.IdentityRecord, error) {
	rec, err := f.inner.GetUserByUsername(ctx, username)
	if err != nil {
		f.warn("GetUserByUsername", err)
		return nil, nil
	}
	return rec, nil
}

func (f *Fallback) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	ok, err := f.inner.ExistsByUsername(ctx, username)
	if err != nil {
		f.warn("ExistsByUsername", err)
		return false, nil
	}
	return ok, nil
}

func (f *Fallback) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	ok, err := f.inner.ExistsByEmail(ctx, email)
	if err != nil {
		f.warn("ExistsByEmail", err)
		return false, nil
	}
	return ok, nil
}

func (f *Fallback) ValidateCredentials(ctx context.Context, username, password string) (bool, error) {
	ok, err := f.inner.ValidateCredentials(ctx, username, password)
	if err != nil {
		f.warn("ValidateCredentials", err)
		return false, nil
	}
	return ok, nil
}

func (f *Fallback) ValidateAndGetInfo(ctx context.Context, username, password string) (*model.CredentialsResult, error) {
	res, err := f.inner.ValidateAndGetInfo(ctx, username, password)
	if err != nil {
		f.warn("ValidateAndGetInfo", err)
		return nil, nil
	}
	return res, nil
}
