// Package service holds the business rules of the auth-service and the
// user-service. Handlers call into it; it calls repositories, the identity
// directory and the token codec. Nothing here knows about HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Karinaskol06/webchat-microservices/internal/apperror"
	"github.com/Karinaskol06/webchat-microservices/internal/auth"
	"github.com/Karinaskol06/webchat-microservices/internal/directory"
	"github.com/Karinaskol06/webchat-microservices/internal/model"
	"github.com/Karinaskol06/webchat-microservices/internal/repository"
)

// RoleUser is granted to every authenticated caller.
const RoleUser = "ROLE_USER"

// AuthService coordinates login and registration across the identity
// directory (the user-service) and the local trust store.
//
// Registration is not atomic: the identity is created remotely first and
// the trust record locally second. If the second step fails the identity
// exists without a trust record; the next successful login backfills it.
type AuthService struct {
	dir       directory.Directory
	trust     repository.TrustRecordRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService wires the coordinator. dir is normally the fallback-wrapped
// HTTP client.
func NewAuthService(
	dir directory.Directory,
	trust repository.TrustRecordRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		dir:       dir,
		trust:     trust,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
}

// Login checks credentials against the directory and issues a token.
//
// An unreachable directory looks exactly like wrong credentials to the
// caller: the fallback answers "invalid" and login fails closed.
func (s *AuthService) Login(ctx context.Context, creds model.Credentials) (*LoginResponse, error) {
	if strings.TrimSpace(creds.Username) == "" {
		return nil, apperror.ValidationFailed("username", "Username is required")
	}
	if creds.Password == "" {
		return nil, apperror.ValidationFailed("password", "Password is required")
	}

	res, err := s.dir.ValidateAndGetInfo(ctx, creds.Username, creds.Password)
	if err != nil {
		s.logger.Warn("credential check failed",
			slog.String("username", creds.Username),
			slog.String("error", err.Error()),
		)
		return nil, apperror.InvalidCredentials()
	}
	if res == nil || !res.Valid || !res.Active {
		s.logger.Info("login rejected", slog.String("username", creds.Username))
		return nil, apperror.InvalidCredentials()
	}

	if err := s.checkTrust(ctx, creds, res); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(res.Username, res.ID, []string{RoleUser})
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for %q: %w", res.Username, err)
	}

	s.logger.Info("user logged in",
		slog.String("username", res.Username),
		slog.Int64("user_id", res.ID),
	)

	return &LoginResponse{
		Token:     token,
		TokenType: "Bearer",
		ID:        res.ID,
		Username:  res.Username,
		Email:     res.Email,
	}, nil
}

// checkTrust rejects users disabled locally and keeps the trust record in
// step with the directory. The record is found by owner id, so a user renamed
// in the user-service is still recognised; username, email and a stale
// password hash are refreshed, and a missing record is backfilled. Refresh
// and backfill failures are logged and do not block the login.
func (s *AuthService) checkTrust(ctx context.Context, creds model.Credentials, res *model.CredentialsResult) error {
	rec, err := s.trust.GetByOwnerID(ctx, res.ID)
	switch {
	case err == nil:
		if !rec.Active {
			s.logger.Info("login rejected: trust record inactive", slog.String("username", res.Username))
			return apperror.InvalidCredentials()
		}
		s.refreshTrust(ctx, rec, creds, res)
		return nil
	case !errors.Is(err, apperror.ErrNotFound):
		return fmt.Errorf("service/auth: reading trust record of %d: %w", res.ID, err)
	}

	hash := res.PasswordHash
	if hash == "" {
		if hash, err = s.passwords.Hash(creds.Password); err != nil {
			s.logger.Warn("trust record backfill skipped",
				slog.String("username", res.Username),
				slog.String("error", err.Error()),
			)
			return nil
		}
	}

	backfill := &model.TrustRecord{
		Username:       res.Username,
		Email:          res.Email,
		PasswordHash:   hash,
		Active:         true,
		OwnerServiceID: res.ID,
	}
	if err := s.writeTrust(ctx, backfill, s.trust.Create); err != nil {
		s.logger.Warn("trust record backfill failed",
			slog.String("username", res.Username),
			slog.String("error", err.Error()),
		)
		return nil
	}
	s.logger.Info("trust record backfilled",
		slog.String("username", res.Username),
		slog.Int64("owner_service_id", res.ID),
	)
	return nil
}

// refreshTrust copies the directory's current username and email onto rec,
// and replaces the hash when it no longer matches the verified password.
func (s *AuthService) refreshTrust(ctx context.Context, rec *model.TrustRecord, creds model.Credentials, res *model.CredentialsResult) {
	changed := false
	if rec.Username != res.Username || rec.Email != res.Email {
		rec.Username = res.Username
		rec.Email = res.Email
		changed = true
	}
	if !s.passwords.Matches(rec.PasswordHash, creds.Password) {
		hash := res.PasswordHash
		if hash == "" {
			var err error
			if hash, err = s.passwords.Hash(creds.Password); err != nil {
				s.logger.Warn("trust record hash refresh skipped",
					slog.String("username", res.Username),
					slog.String("error", err.Error()),
				)
				hash = rec.PasswordHash
			}
		}
		if hash != rec.PasswordHash {
			rec.PasswordHash = hash
			changed = true
		}
	}
	if !changed {
		return
	}

	if err := s.writeTrust(ctx, rec, s.trust.Update); err != nil {
		s.logger.Warn("trust record refresh failed",
			slog.String("username", res.Username),
			slog.Int64("owner_service_id", res.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("trust record refreshed",
		slog.String("username", rec.Username),
		slog.Int64("owner_service_id", rec.OwnerServiceID),
	)
}

// writeTrust runs write (Create or Update) for rec. When the username is
// still held by the record of another identity, that record is stale: the
// directory has since renamed its owner. It is refreshed from the directory
// and write is retried once.
func (s *AuthService) writeTrust(ctx context.Context, rec *model.TrustRecord, write func(context.Context, *model.TrustRecord) error) error {
	err := write(ctx, rec)
	if !errors.Is(err, apperror.ErrDuplicate) {
		return err
	}
	if relErr := s.releaseUsername(ctx, rec.Username, rec.OwnerServiceID); relErr != nil {
		return fmt.Errorf("%w (%v)", err, relErr)
	}
	return write(ctx, rec)
}

// releaseUsername frees username in the trust store if the record holding it
// belongs to an identity other than owner that the directory no longer
// calls by that name.
func (s *AuthService) releaseUsername(ctx context.Context, username string, owner int64) error {
	stale, err := s.trust.GetByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("loading trust record %q: %w", username, err)
	}
	if stale.OwnerServiceID == owner {
		return fmt.Errorf("trust record %q already belongs to identity %d", username, owner)
	}

	current, err := s.dir.GetUserByID(ctx, stale.OwnerServiceID)
	if err != nil {
		return fmt.Errorf("resolving identity %d: %w", stale.OwnerServiceID, err)
	}
	if current == nil {
		return fmt.Errorf("identity %d holding %q cannot be resolved", stale.OwnerServiceID, username)
	}
	if current.Username == username {
		return fmt.Errorf("username %q still belongs to identity %d", username, current.ID)
	}

	stale.Username = current.Username
	stale.Email = current.Email
	if err := s.trust.Update(ctx, stale); err != nil {
		return fmt.Errorf("refreshing trust record of %d: %w", stale.OwnerServiceID, err)
	}
	s.logger.Info("stale trust record renamed",
		slog.String("from", username),
		slog.String("to", current.Username),
		slog.Int64("owner_service_id", stale.OwnerServiceID),
	)
	return nil
}

// Register creates the identity in the directory, then the local trust
// record.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (*model.IdentityRecord, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}

	taken, err := s.dir.ExistsByUsername(ctx, req.Username)
	if err != nil {
		return nil, apperror.Unavailable("Registration service unavailable", err)
	}
	if taken {
		return nil, apperror.Duplicate("username", "Username already exists")
	}

	taken, err = s.dir.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperror.Unavailable("Registration service unavailable", err)
	}
	if taken {
		return nil, apperror.Duplicate("email", "Email already exists")
	}

	record, err := s.dir.RegisterUser(ctx, req)
	if err != nil {
		s.logger.Error("remote registration failed",
			slog.String("username", req.Username),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, apperror.ErrDuplicate) {
			return nil, err
		}
		return nil, apperror.Unavailable("Registration service unavailable", err)
	}
	if record == nil {
		return nil, apperror.Unavailable("Registration service unavailable", nil)
	}

	hash, err := s.passwords.Hash(req.Password)
	if err != nil {
		return nil, s.partialFailure(record, fmt.Errorf("hashing password: %w", err))
	}

	trust := &model.TrustRecord{
		Username:       record.Username,
		Email:          record.Email,
		PasswordHash:   hash,
		Active:         true,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		OwnerServiceID: record.ID,
	}
	if err := s.writeTrust(ctx, trust, s.trust.Create); err != nil {
		return nil, s.partialFailure(record, fmt.Errorf("storing trust record: %w", err))
	}

	s.logger.Info("user registered",
		slog.String("username", record.Username),
		slog.Int64("user_id", record.ID),
		slog.String("trust_id", trust.ID),
	)
	return record, nil
}

// ErrPartialRegistration means the identity was created in the directory
// but its trust record was not stored. The next login backfills the record.
var ErrPartialRegistration = errors.New("identity created without trust record")

// partialFailure logs the case where the identity exists remotely but the
// local trust record could not be written. The cause is logged, not wrapped:
// a Duplicate from the trust store must not reach the client as "already
// exists" when the identity was just created.
func (s *AuthService) partialFailure(record *model.IdentityRecord, err error) error {
	s.logger.Error("registration partially applied: identity created without trust record",
		slog.String("username", record.Username),
		slog.Int64("user_id", record.ID),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("service/auth: registering %q: %w", record.Username, ErrPartialRegistration)
}

// TokenValidation is the answer of ValidateToken.
type TokenValidation struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username,omitempty"`
	Message  string `json:"message"`
}

// ValidateToken reports whether token verifies. It never fails; problems are
// described in the result.
func (s *AuthService) ValidateToken(token string) TokenValidation {
	if token == "" {
		return TokenValidation{Valid: false, Message: "No token provided"}
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return TokenValidation{Valid: false, Message: "Token expired"}
		}
		return TokenValidation{Valid: false, Message: "Token expired or invalid"}
	}
	return TokenValidation{Valid: true, Username: claims.Subject, Message: "Token is valid"}
}

// CurrentUser describes the authenticated caller.
type CurrentUser struct {
	ID        int64    `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Active    bool     `json:"active"`
	Roles     []string `json:"roles"`
}

// CurrentUser combines the principal with the local trust record.
func (s *AuthService) CurrentUser(ctx context.Context, p *auth.Principal) (*CurrentUser, error) {
	if p == nil {
		return nil, apperror.Unauthorized("valid authentication required")
	}

	rec, err := s.trust.GetByOwnerID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: loading current user %q: %w", p.Username, err)
	}

	// The principal comes from the directory and wins over a trust record
	// that has not been refreshed since the last rename.
	email := rec.Email
	if p.Email != "" {
		email = p.Email
	}

	return &CurrentUser{
		ID:        rec.OwnerServiceID,
		Username:  p.Username,
		Email:     email,
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
		Active:    rec.Active,
		Roles:     p.Roles(),
	}, nil
}
