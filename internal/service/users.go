package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Karinaskol06/webchat-microservices/internal/apperror"
	"github.com/Karinaskol06/webchat-microservices/internal/auth"
	"github.com/Karinaskol06/webchat-microservices/internal/directory"
	"github.com/Karinaskol06/webchat-microservices/internal/model"
	"github.com/Karinaskol06/webchat-microservices/internal/repository"
)

// UserService owns canonical identities. It is the directory other services
// reach over HTTP, and it also serves the user's own profile.
type UserService struct {
	users     repository.IdentityRepository
	passwords *auth.PasswordService
	logger    *slog.Logger
}

var _ directory.Directory = (*UserService)(nil)

func NewUserService(users repository.IdentityRepository, passwords *auth.PasswordService, logger *slog.Logger) *UserService {
	return &UserService{
		users:     users,
		passwords: passwords,
		logger:    logger,
	}
}

// RegisterUser validates req and stores a new active identity.
func (s *UserService) RegisterUser(ctx context.Context, req model.RegisterRequest) (*model.IdentityRecord, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}

	if taken, err := s.users.ExistsByUsername(ctx, req.Username); err != nil {
		return nil, fmt.Errorf("service/users: checking username: %w", err)
	} else if taken {
		return nil, apperror.Duplicate("username", "Username is already in use")
	}
	if taken, err := s.users.ExistsByEmail(ctx, req.Email); err != nil {
		return nil, fmt.Errorf("service/users: checking email: %w", err)
	} else if taken {
		return nil, apperror.Duplicate("email", "Email is already in use")
	}

	hash, err := s.passwords.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("service/users: hashing password: %w", err)
	}

	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Active:       true,
	}
	// The unique indexes catch a concurrent registration that passed the checks above.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/users: creating %q: %w", req.Username, err)
	}

	s.logger.Info("identity created",
		slog.String("username", user.Username),
		slog.Int64("user_id", user.ID),
	)
	return user.Record(), nil
}

func (s *UserService) GetUserByID(ctx context.Context, id int64) (*model.IdentityRecord, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/users: %w", err)
	}
	return u.Record(), nil
}

func (s *UserService) GetUserByUsername(ctx context.Context, username string) (*model.IdentityRecord, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/users: %w", err)
	}
	return u.Record(), nil
}

func (s *UserService) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return s.users.ExistsByUsername(ctx, username)
}

func (s *UserService) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.users.ExistsByEmail(ctx, email)
}

// ValidateCredentials is false for unknown or inactive users and for a
// wrong password.
func (s *UserService) ValidateCredentials(ctx context.Context, username, password string) (bool, error) {
	u, err := s.checkCredentials(ctx, username, password)
	if err != nil {
		return false, err
	}
	return u != nil, nil
}

// ValidateAndGetInfo returns the identity and its password hash when the
// credentials are valid, and {Valid: false} otherwise.
func (s *UserService) ValidateAndGetInfo(ctx context.Context, username, password string) (*model.CredentialsResult, error) {
	u, err := s.checkCredentials(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return &model.CredentialsResult{Valid: false}, nil
	}
	return &model.CredentialsResult{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Valid:        true,
		Active:       u.Active,
	}, nil
}

// checkCredentials returns the user when the credentials are valid, nil
// when they are not, and an error only when storage fails.
func (s *UserService) checkCredentials(ctx context.Context, username, password string) (*model.User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/users: loading %q: %w", username, err)
	}
	if !u.Active || !s.passwords.Matches(u.PasswordHash, password) {
		return nil, nil
	}
	return u, nil
}

// UpdateProfile applies the non-nil fields of req to the user.
func (s *UserService) UpdateProfile(ctx context.Context, username string, req model.UpdateProfileRequest) (*model.IdentityRecord, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/users: %w", err)
	}

	if req.Username != nil && *req.Username != u.Username {
		if err := validateUsername(*req.Username); err != nil {
			return nil, err
		}
		taken, err := s.users.ExistsByUsername(ctx, *req.Username)
		if err != nil {
			return nil, fmt.Errorf("service/users: checking username: %w", err)
		}
		if taken {
			return nil, apperror.Duplicate("username", "Username is already in use")
		}
		u.Username = *req.Username
	}

	if req.Email != nil && *req.Email != u.Email {
		if err := validateEmail(*req.Email); err != nil {
			return nil, err
		}
		taken, err := s.users.ExistsByEmail(ctx, *req.Email)
		if err != nil {
			return nil, fmt.Errorf("service/users: checking email: %w", err)
		}
		if taken {
			return nil, apperror.Duplicate("email", "Email is already in use")
		}
		u.Email = *req.Email
	}

	if req.FirstName != nil {
		u.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		u.LastName = *req.LastName
	}

	if err := s.users.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("service/users: updating %q: %w", username, err)
	}

	s.logger.Info("profile updated", slog.String("username", u.Username), slog.Int64("user_id", u.ID))
	return u.Record(), nil
}

// ChangePassword replaces the password after checking the old one.
func (s *UserService) ChangePassword(ctx context.Context, username string, req model.ChangePasswordRequest) error {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("service/users: %w", err)
	}

	if !s.passwords.Matches(u.PasswordHash, req.OldPassword) {
		return apperror.ValidationFailed("oldPassword", "Old password is incorrect")
	}
	if err := validatePassword("newPassword", req.NewPassword); err != nil {
		return err
	}
	if req.NewPassword != req.RepeatPassword {
		return apperror.ValidationFailed("repeatPassword", "Passwords do not match")
	}

	hash, err := s.passwords.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("service/users: hashing password: %w", err)
	}
	u.PasswordHash = hash

	if err := s.users.Update(ctx, u); err != nil {
		return fmt.Errorf("service/users: updating password of %q: %w", username, err)
	}

	s.logger.Info("password changed", slog.String("username", username))
	return nil
}

// ListUsers returns every identity.
func (s *UserService) ListUsers(ctx context.Context, opts repository.ListOptions) ([]model.IdentityRecord, error) {
	users, err := s.users.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service/users: listing: %w", err)
	}
	out := make([]model.IdentityRecord, 0, len(users))
	for i := range users {
		out = append(out, *users[i].Record())
	}
	return out, nil
}
