package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/openalways/openalways/internal/model"
)

// Ad grant errors.
var (
	// ErrAdAlreadyClaimed is returned when a reward for the same ad was
	// already granted to the user on the same calendar day.
	ErrAdAlreadyClaimed = errors.New("ad reward already claimed today")
	// ErrAdDailyLimit is returned when the user has already collected
	// dailyLimit rewards on the grant's day.
	ErrAdDailyLimit = errors.New("daily ad reward limit reached")
)

// ClaimAdReward records an ad view grant and raises the user's key ceiling
// by reward, atomically. The unique index on (user_id, ad_id, day) makes a
// repeat claim fail without touching the ceiling; the user row is locked so
// a concurrent regeneration sees either the old or the new ceiling, never a
// half-applied one. The daily count runs under that same lock, so
// concurrent claims of different ads cannot exceed dailyLimit. Returns the
// new max_keys value.
func (r *Repository) ClaimAdReward(ctx context.Context, grant *model.AdViewGrant, reward, dailyLimit int) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var maxKeys int
	err = tx.QueryRow(ctx, `
		SELECT max_keys FROM users WHERE id = $1 FOR UPDATE
	`, grant.UserID).Scan(&maxKeys)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to lock user: %w", err)
	}

	var claimed int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM ad_view_grants
		WHERE user_id = $1 AND day = $2
	`, grant.UserID, grant.Day).Scan(&claimed)
	if err != nil {
		return 0, fmt.Errorf("failed to count ad grants: %w", err)
	}
	if claimed >= dailyLimit {
		return 0, ErrAdDailyLimit
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ad_view_grants (id, user_id, ad_id, day, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		grant.ID,
		grant.UserID,
		grant.AdID,
		grant.Day,
		grant.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrAdAlreadyClaimed
		}
		return 0, fmt.Errorf("failed to record ad grant: %w", err)
	}

	maxKeys += reward
	_, err = tx.Exec(ctx, `
		UPDATE users SET max_keys = $2 WHERE id = $1
	`, grant.UserID, maxKeys)
	if err != nil {
		return 0, fmt.Errorf("failed to update key ceiling: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return maxKeys, nil
}

// CountGrantsForDay returns how many ad rewards the user has claimed on the
// given calendar day.
func (r *Repository) CountGrantsForDay(ctx context.Context, userID string, day time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM ad_view_grants
		WHERE user_id = $1 AND day = $2
	`, userID, day).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ad grants: %w", err)
	}
	return count, nil
}
