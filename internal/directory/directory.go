// Package directory resolves identities owned by the user-service.
//
// Directory is implemented three ways and composed by the caller:
//
//	directory.WithCache(directory.WithFallback(directory.NewClient(...), logger), ttl)
//
// Client talks HTTP to the user-service and reports every failure as an
// error. WithFallback absorbs those failures with a fixed per-operation
// default. WithCache keeps recent successful lookups.
package directory

import (
	"context"

	"github.com/Karinaskol06/webchat-microservices/internal/model"
)

// Directory is the identity-owning service as seen by other services.
//
// Lookups return (nil, nil) only from the fallback decorator, meaning the
// identity is absent or could not be resolved; the live client reports
// missing identities as apperror.ErrNotFound.
type Directory interface {
	RegisterUser(ctx context.Context, req model.RegisterRequest) (*model.IdentityRecord, error)
	GetUserByID(ctx context.Context, id int64) (*model.IdentityRecord, error)
	GetUserByUsername(ctx context.Context, username string) (*model.IdentityRecord, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ValidateCredentials(ctx context.Context, username, password string) (bool, error)
	ValidateAndGetInfo(ctx context.Context, username, password string) (*model.CredentialsResult, error)
}

// Paths of the user-service internal API.
const (
	PathRegister         = "/internal/users/register"
	PathByID             = "/internal/users/{id}"
	PathByUsername       = "/internal/users/by-username/{username}"
	PathExistsByUsername = "/internal/users/exists/username/{username}"
	PathExistsByEmail    = "/internal/users/exists/email/{email}"
	PathValidate         = "/internal/users/validate-credentials"
	PathValidateAndInfo  = "/internal/users/validate-and-get-info"
)
