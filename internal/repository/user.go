package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/openalways/openalways/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailExists    = errors.New("email already exists")
	ErrUsernameExists = errors.New("username already exists")
)

const userColumns = `id, email, username, password_hash, api_key, is_verified, google_id, keys_generated, max_keys, created_at`

// CreateUserWithKey inserts a new user together with their first API key and
// a pending verification code, atomically. A user never exists without an
// active key.
func (r *Repository) CreateUserWithKey(ctx context.Context, user *model.User, key *model.APIKey, otp *model.OTPCode) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, email, username, password_hash, api_key, is_verified, google_id, keys_generated, max_keys, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		user.ID,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.APIKey,
		user.IsVerified,
		user.GoogleID,
		user.KeysGenerated,
		user.MaxKeys,
		user.CreatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolationOn(err, "users_username_key"):
			return ErrUsernameExists
		case isUniqueViolation(err):
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO api_keys (id, user_id, key, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		key.ID,
		key.UserID,
		key.Key,
		key.IsActive,
		key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}

	if otp != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO otp_codes (id, user_id, code, purpose, expires_at, used, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			otp.ID,
			otp.UserID,
			otp.Code,
			otp.Purpose,
			otp.ExpiresAt,
			otp.Used,
			otp.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create OTP code: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetUserByEmail retrieves a user by their email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

// GetUserByGoogleID retrieves a user by their Google account ID.
func (r *Repository) GetUserByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE google_id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, googleID))
}

// UsernameExists reports whether a username is already taken.
func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

// LinkGoogleAccount attaches a Google account ID to an existing user and
// marks them verified.
func (r *Repository) LinkGoogleAccount(ctx context.Context, userID, googleID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET google_id = $2, is_verified = TRUE
		WHERE id = $1
	`, userID, googleID)
	if err != nil {
		return fmt.Errorf("failed to link google account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// scanUser scans a single row into a User model.
func (r *Repository) scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.APIKey,
		&user.IsVerified,
		&user.GoogleID,
		&user.KeysGenerated,
		&user.MaxKeys,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}
