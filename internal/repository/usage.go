package repository

import (
	"context"
	"fmt"

	"github.com/openalways/openalways/internal/model"
)

// defaultUsageLimit caps usage listings.
const defaultUsageLimit = 100

// CreateUsage appends a chat usage record.
func (r *Repository) CreateUsage(ctx context.Context, rec *model.UsageRecord) error {
	query := `
		INSERT INTO api_usage (id, user_id, model, prompt, response, tokens_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Model,
		rec.Prompt,
		rec.Response,
		rec.TokensUsed,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create usage record: %w", err)
	}

	return nil
}

// ListUsageByUserID retrieves the user's recent usage records, newest first.
func (r *Repository) ListUsageByUserID(ctx context.Context, userID string) ([]*model.UsageRecord, error) {
	query := `
		SELECT id, user_id, model, prompt, response, tokens_used, created_at
		FROM api_usage
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, defaultUsageLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	defer rows.Close()

	var records []*model.UsageRecord
	for rows.Next() {
		var rec model.UsageRecord
		err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Model,
			&rec.Prompt,
			&rec.Response,
			&rec.TokensUsed,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage record: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage records: %w", err)
	}

	return records, nil
}
