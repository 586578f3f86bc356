package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/openalways/openalways/internal/model"
)

// UsageStore is the persistence surface the usage service needs.
type UsageStore interface {
	CreateUsage(ctx context.Context, rec *model.UsageRecord) error
	ListUsageByUserID(ctx context.Context, userID string) ([]*model.UsageRecord, error)
}

// UsageService records and lists chat usage.
type UsageService struct {
	store  UsageStore
	logger *slog.Logger
	now    func() time.Time
}

// NewUsageService creates a UsageService.
func NewUsageService(store UsageStore, logger *slog.Logger) *UsageService {
	return &UsageService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Record appends one chat exchange. Recording failures are logged, not
// surfaced; a lost usage row never fails the chat response.
func (s *UsageService) Record(ctx context.Context, userID, modelName, prompt, response string, tokens int) {
	rec := &model.UsageRecord{
		ID:         ulid.Make().String(),
		UserID:     userID,
		Model:      modelName,
		Prompt:     prompt,
		Response:   response,
		TokensUsed: tokens,
		CreatedAt:  s.now(),
	}

	if err := s.store.CreateUsage(ctx, rec); err != nil {
		s.logger.Error("failed to record usage",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// List returns the user's recent usage, newest first, in summary form.
func (s *UsageService) List(ctx context.Context, userID string) ([]model.UsageSummary, error) {
	records, err := s.store.ListUsageByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]model.UsageSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, rec.ToSummary())
	}
	return summaries, nil
}
