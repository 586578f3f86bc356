package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/openalways/openalways/internal/model"
)

// ErrOTPNotFound is returned when no matching unused code exists.
var ErrOTPNotFound = errors.New("otp code not found")

// CreateOTP inserts a one-time code.
func (r *Repository) CreateOTP(ctx context.Context, otp *model.OTPCode) error {
	query := `
		INSERT INTO otp_codes (id, user_id, code, purpose, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
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

	return nil
}

// GetUnusedOTP retrieves the newest unused code for a user, code value and
// purpose. Expiry is the caller's business rule and is checked separately so
// an expired code reports a distinct error.
func (r *Repository) GetUnusedOTP(ctx context.Context, userID, code, purpose string) (*model.OTPCode, error) {
	query := `
		SELECT id, user_id, code, purpose, expires_at, used, created_at
		FROM otp_codes
		WHERE user_id = $1 AND code = $2 AND purpose = $3 AND used = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`

	var otp model.OTPCode
	err := r.pool.QueryRow(ctx, query, userID, code, purpose).Scan(
		&otp.ID,
		&otp.UserID,
		&otp.Code,
		&otp.Purpose,
		&otp.ExpiresAt,
		&otp.Used,
		&otp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("failed to get OTP code: %w", err)
	}

	return &otp, nil
}

// MarkUserVerified consumes a verification code and flips the user's
// verified flag in one transaction.
func (r *Repository) MarkUserVerified(ctx context.Context, userID, otpID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE otp_codes SET used = TRUE
		WHERE id = $1 AND used = FALSE
	`, otpID)
	if err != nil {
		return fmt.Errorf("failed to consume OTP code: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrOTPNotFound
	}

	_, err = tx.Exec(ctx, `
		UPDATE users SET is_verified = TRUE
		WHERE id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to mark user verified: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ResetPassword consumes a reset code and stores the new password hash in
// one transaction.
func (r *Repository) ResetPassword(ctx context.Context, userID, otpID, passwordHash string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE otp_codes SET used = TRUE
		WHERE id = $1 AND used = FALSE
	`, otpID)
	if err != nil {
		return fmt.Errorf("failed to consume OTP code: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrOTPNotFound
	}

	_, err = tx.Exec(ctx, `
		UPDATE users SET password_hash = $2
		WHERE id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
