package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/openalways/openalways/internal/model"
)

// Common errors for API key repository operations.
var (
	ErrAPIKeyNotFound   = errors.New("API key not found")
	ErrKeyQuotaExceeded = errors.New("key regeneration quota exceeded")
	ErrNoActiveKey      = errors.New("no active key for user")
)

const apiKeyColumns = `id, user_id, key, is_active, created_at, last_used`

// GetActiveKeyByValue retrieves the active API key matching a raw key value.
// Used during authentication; inactive keys never match.
func (r *Repository) GetActiveKeyByValue(ctx context.Context, key string) (*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key = $1 AND is_active = TRUE`
	return r.scanAPIKey(r.pool.QueryRow(ctx, query, key))
}

// GetActiveKeyByUserID retrieves the user's current active key.
func (r *Repository) GetActiveKeyByUserID(ctx context.Context, userID string) (*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 AND is_active = TRUE`
	k, err := r.scanAPIKey(r.pool.QueryRow(ctx, query, userID))
	if errors.Is(err, ErrAPIKeyNotFound) {
		return nil, ErrNoActiveKey
	}
	return k, err
}

// ListAPIKeysByUserID retrieves all key issuance records for a user,
// newest first.
func (r *Repository) ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error) {
	query := `
		SELECT ` + apiKeyColumns + `
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	defer rows.Close()

	var keys []*model.APIKey
	for rows.Next() {
		var key model.APIKey
		if err := scanAPIKeyFields(rows, &key); err != nil {
			return nil, fmt.Errorf("failed to scan API key: %w", err)
		}
		keys = append(keys, &key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating API keys: %w", err)
	}

	return keys, nil
}

// TouchAPIKey updates the last_used timestamp.
// Called asynchronously after successful authentication.
func (r *Repository) TouchAPIKey(ctx context.Context, id string) error {
	query := `UPDATE api_keys SET last_used = $2 WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update API key last used: %w", err)
	}

	return nil
}

// RegenerateKey atomically replaces the user's active key with newKey. It
// locks the user row so concurrent regenerations for the same user serialize,
// re-checks the quota under the lock, deactivates whichever key is currently
// active, inserts the new record, and bumps keys_generated. Returns the new
// key record and the updated generation count.
func (r *Repository) RegenerateKey(ctx context.Context, userID string, newKey *model.APIKey) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var generated, max int
	err = tx.QueryRow(ctx, `
		SELECT keys_generated, max_keys
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, userID).Scan(&generated, &max)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to lock user: %w", err)
	}

	if generated >= max {
		return 0, ErrKeyQuotaExceeded
	}

	_, err = tx.Exec(ctx, `
		UPDATE api_keys SET is_active = FALSE
		WHERE user_id = $1 AND is_active = TRUE
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate key: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO api_keys (id, user_id, key, is_active, created_at)
		VALUES ($1, $2, $3, TRUE, $4)
	`, newKey.ID, newKey.UserID, newKey.Key, newKey.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert key: %w", err)
	}

	generated++
	_, err = tx.Exec(ctx, `
		UPDATE users SET keys_generated = $2, api_key = $3
		WHERE id = $1
	`, userID, generated, newKey.Key)
	if err != nil {
		return 0, fmt.Errorf("failed to update user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return generated, nil
}

// scanAPIKey scans a single row into an APIKey model.
func (r *Repository) scanAPIKey(row pgx.Row) (*model.APIKey, error) {
	var key model.APIKey
	if err := scanAPIKeyFields(row, &key); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("failed to scan API key: %w", err)
	}
	return &key, nil
}

func scanAPIKeyFields(row pgx.Row, key *model.APIKey) error {
	return row.Scan(
		&key.ID,
		&key.UserID,
		&key.Key,
		&key.IsActive,
		&key.CreatedAt,
		&key.LastUsed,
	)
}
