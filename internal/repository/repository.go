// Package repository declares the storage interfaces the services depend on.
// The sqlite subpackage implements them.
package repository

import (
	"context"

	"github.com/Karinaskol06/webchat-microservices/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// IdentityRepository stores canonical identities (user-service).
//
// Create and Update return an apperror.ErrDuplicate error when the username
// or email is already taken; lookups return apperror.ErrNotFound.
type IdentityRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, user *model.User) error
	List(ctx context.Context, opts ListOptions) ([]model.User, error)
}

// TrustRecordRepository stores the auth-service's local trust records.
//
// Create and Update return an apperror.ErrDuplicate error when the username
// is held by another record; lookups and Update return apperror.ErrNotFound.
// A record is deactivated by updating it with Active false.
type TrustRecordRepository interface {
	Create(ctx context.Context, rec *model.TrustRecord) error
	GetByUsername(ctx context.Context, username string) (*model.TrustRecord, error)
	GetByOwnerID(ctx context.Context, ownerID int64) (*model.TrustRecord, error)
	Update(ctx context.Context, rec *model.TrustRecord) error
}
