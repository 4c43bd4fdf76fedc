package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"thumbforge/internal/domain"
)

type UsersStore struct {
	pool *pgxpool.Pool
}

func NewUsersStore(pool *pgxpool.Pool) *UsersStore {
	return &UsersStore{pool: pool}
}

func (s *UsersStore) CreateUser(ctx context.Context, nu domain.NewUser) (domain.User, error) {
	const q = `
		INSERT INTO users (email, name, country, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, name, country, created_at, updated_at
	`

	var (
		u      domain.User
		idUUID pgtype.UUID
	)
	err := s.pool.QueryRow(ctx, q, nu.Email, nu.Name, nu.Country, nu.PasswordHash).Scan(
		&idUUID,
		&u.Email,
		&u.Name,
		&u.Country,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapUserWriteError(err)
	}

	u.ID = uuidOrEmpty(idUUID)
	return u, nil
}

func (s *UsersStore) GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error) {
	const q = `
		SELECT id, email, name, country, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
		LIMIT 1
	`

	var (
		u      domain.UserWithPassword
		idUUID pgtype.UUID
	)
	err := s.pool.QueryRow(ctx, q, email).Scan(
		&idUUID,
		&u.Email,
		&u.Name,
		&u.Country,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserWithPassword{}, domain.ErrNotFound
		}
		return domain.UserWithPassword{}, fmt.Errorf("get user by email: %w", err)
	}

	u.ID = uuidOrEmpty(idUUID)
	return u, nil
}

func (s *UsersStore) SetResetToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	if !validID(userID) {
		return domain.ErrNotFound
	}

	const q = `
		UPDATE users
		SET reset_token = $2, reset_token_expiry = $3, updated_at = now()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, q, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ConsumeResetToken matches, rotates and clears in one statement, so two
// concurrent resets with the same token cannot both succeed.
func (s *UsersStore) ConsumeResetToken(ctx context.Context, token string, now time.Time, passwordHash string) error {
	const q = `
		UPDATE users
		SET password_hash = $3, reset_token = NULL, reset_token_expiry = NULL, updated_at = now()
		WHERE reset_token = $1 AND reset_token_expiry > $2
	`
	tag, err := s.pool.Exec(ctx, q, token, now, passwordHash)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func mapUserWriteError(err error) error {
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		switch pgerr.ConstraintName {
		case "users_email_uq":
			return domain.ErrEmailTaken
		default:
			return fmt.Errorf("unique violation (%s): %w", pgerr.ConstraintName, err)
		}
	}
	return fmt.Errorf("create user: %w", err)
}
