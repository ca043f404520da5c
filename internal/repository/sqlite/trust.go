package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/xid"

	"github.com/Karinaskol06/webchat-microservices/internal/apperror"
	"github.com/Karinaskol06/webchat-microservices/internal/model"
	"github.com/Karinaskol06/webchat-microservices/internal/repository"
)

var _ repository.TrustRecordRepository = (*TrustStore)(nil)

// TrustStore holds the auth-service's trust records.
type TrustStore struct {
	conn *sql.DB
}

// NewTrustStore opens (or creates) the trust database at dbPath.
func NewTrustStore(ctx context.Context, dbPath string) (*TrustStore, error) {
	conn, err := open(ctx, dbPath, "trust")
	if err != nil {
		return nil, err
	}
	return &TrustStore{conn: conn}, nil
}

func (s *TrustStore) Close() error {
	return s.conn.Close()
}

func (s *TrustStore) PingContext(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Create inserts rec with a fresh xid and timestamps.
func (s *TrustStore) Create(ctx context.Context, rec *model.TrustRecord) error {
	now := time.Now().UTC()
	id := xid.New().String()

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO trust_records
		 (id, username, email, password_hash, active, first_name, last_name, owner_service_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		rec.Username,
		rec.Email,
		rec.PasswordHash,
		rec.Active,
		rec.FirstName,
		rec.LastName,
		rec.OwnerServiceID,
		now,
		now,
	)
	if err != nil {
		if dup := duplicateTrust(err); dup != nil {
			return dup
		}
		return fmt.Errorf("sqlite: inserting trust record %q: %w", rec.Username, err)
	}

	rec.ID = id
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

const trustColumns = `id, username, email, password_hash, active, first_name, last_name, owner_service_id, created_at, updated_at`

func (s *TrustStore) GetByUsername(ctx context.Context, username string) (*model.TrustRecord, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+trustColumns+` FROM trust_records WHERE username = ?`, username)
	return scanTrust(row, username)
}

// GetByOwnerID finds the record of the user-service identity ownerID.
func (s *TrustStore) GetByOwnerID(ctx context.Context, ownerID int64) (*model.TrustRecord, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+trustColumns+` FROM trust_records WHERE owner_service_id = ?`, ownerID)
	return scanTrust(row, strconv.FormatInt(ownerID, 10))
}

func scanTrust(row *sql.Row, key string) (*model.TrustRecord, error) {
	var r model.TrustRecord
	err := row.Scan(
		&r.ID,
		&r.Username,
		&r.Email,
		&r.PasswordHash,
		&r.Active,
		&r.FirstName,
		&r.LastName,
		&r.OwnerServiceID,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("trust record", key)
		}
		return nil, fmt.Errorf("sqlite: getting trust record %q: %w", key, err)
	}
	return &r, nil
}

// Update rewrites every mutable column of the record with rec.ID.
func (s *TrustStore) Update(ctx context.Context, rec *model.TrustRecord) error {
	now := time.Now().UTC()

	result, err := s.conn.ExecContext(ctx,
		`UPDATE trust_records
		 SET username = ?, email = ?, password_hash = ?, active = ?, first_name = ?, last_name = ?, updated_at = ?
		 WHERE id = ?`,
		rec.Username,
		rec.Email,
		rec.PasswordHash,
		rec.Active,
		rec.FirstName,
		rec.LastName,
		now,
		rec.ID,
	)
	if err != nil {
		if dup := duplicateTrust(err); dup != nil {
			return dup
		}
		return fmt.Errorf("sqlite: updating trust record %q: %w", rec.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("trust record", rec.ID)
	}

	rec.UpdatedAt = now
	return nil
}

func duplicateTrust(err error) *apperror.AppError {
	column, ok := uniqueViolation(err)
	if !ok {
		return nil
	}
	if column == "owner_service_id" {
		return apperror.Duplicate("ownerServiceId", "Trust record already exists for this identity")
	}
	return apperror.Duplicate("username", "Username already exists")
}
