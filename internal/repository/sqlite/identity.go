package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Karinaskol06/webchat-microservices/internal/apperror"
	"github.com/Karinaskol06/webchat-microservices/internal/model"
	"github.com/Karinaskol06/webchat-microservices/internal/repository"
)

var _ repository.IdentityRepository = (*IdentityStore)(nil)

// IdentityStore holds the canonical users table of the user-service.
type IdentityStore struct {
	conn *sql.DB
}

// NewIdentityStore opens (or creates) the identity database at dbPath.
// Use ":memory:" in tests.
func NewIdentityStore(ctx context.Context, dbPath string) (*IdentityStore, error) {
	conn, err := open(ctx, dbPath, "identity")
	if err != nil {
		return nil, err
	}
	return &IdentityStore{conn: conn}, nil
}

func (s *IdentityStore) Close() error {
	return s.conn.Close()
}

// PingContext reports whether the database is reachable.
func (s *IdentityStore) PingContext(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

const userColumns = `id, username, email, password_hash, first_name, last_name, active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Active,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts user and sets its ID and timestamps.
func (s *IdentityStore) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, first_name, last_name, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Active,
		now,
		now,
	)
	if err != nil {
		if dup := duplicateIdentity(err); dup != nil {
			return dup
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading id of user %q: %w", user.Username, err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (s *IdentityStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return u, nil
}

func (s *IdentityStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(s.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqlite: getting user %q: %w", username, err)
	}
	return u, nil
}

func (s *IdentityStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, username)
}

func (s *IdentityStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email)
}

func (s *IdentityStore) exists(ctx context.Context, query, arg string) (bool, error) {
	var found bool
	if err := s.conn.QueryRowContext(ctx, query, arg).Scan(&found); err != nil {
		return false, fmt.Errorf("sqlite: checking existence of %q: %w", arg, err)
	}
	return found, nil
}

// Update overwrites every mutable column of user and refreshes UpdatedAt.
func (s *IdentityStore) Update(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	res, err := s.conn.ExecContext(ctx,
		`UPDATE users
		 SET username = ?, email = ?, password_hash = ?, first_name = ?, last_name = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Active,
		now,
		user.ID,
	)
	if err != nil {
		if dup := duplicateIdentity(err); dup != nil {
			return dup
		}
		return fmt.Errorf("sqlite: updating user %d: %w", user.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking update of user %d: %w", user.ID, err)
	}
	if n == 0 {
		return apperror.NotFound("user", strconv.FormatInt(user.ID, 10))
	}
	user.UpdatedAt = now
	return nil
}

// List returns users ordered by id. A zero Limit means no limit.
func (s *IdentityStore) List(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id LIMIT ? OFFSET ?`,
		limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

func duplicateIdentity(err error) *apperror.AppError {
	column, ok := uniqueViolation(err)
	if !ok {
		return nil
	}
	switch column {
	case "email":
		return apperror.Duplicate("email", "Email is already in use")
	default:
		return apperror.Duplicate("username", "Username is already in use")
	}
}
