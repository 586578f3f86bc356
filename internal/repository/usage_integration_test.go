//go:build integration

package repository

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/openalways/openalways/internal/model"
	"github.com/openalways/openalways/internal/testutil"
)

// ============================================================================
// Usage Repository Integration Tests
// ============================================================================

func TestIntegrationUsageRepository_CreateAndList(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, testutil.UniqueEmail("usage"), testutil.UniqueUsername("usage"))
	if err := repo.CreateUserWithKey(ctx, user, testutil.NewTestAPIKey(t, user), nil); err != nil {
		t.Fatalf("CreateUserWithKey failed: %v", err)
	}

	older := &model.UsageRecord{
		ID:         ulid.Make().String(),
		UserID:     user.ID,
		Model:      "gpt4",
		Prompt:     "first question",
		Response:   "first answer",
		TokensUsed: 4,
		CreatedAt:  time.Now().Add(-time.Minute),
	}
	newer := &model.UsageRecord{
		ID:         ulid.Make().String(),
		UserID:     user.ID,
		Model:      "claude",
		Prompt:     "second question",
		Response:   "second answer",
		TokensUsed: 4,
		CreatedAt:  time.Now(),
	}

	if err := repo.CreateUsage(ctx, older); err != nil {
		t.Fatalf("CreateUsage (older) failed: %v", err)
	}
	if err := repo.CreateUsage(ctx, newer); err != nil {
		t.Fatalf("CreateUsage (newer) failed: %v", err)
	}

	records, err := repo.ListUsageByUserID(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListUsageByUserID failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != newer.ID {
		t.Errorf("expected newest record first, got %q", records[0].ID)
	}
}

func TestIntegrationUsageRepository_ListEmpty(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, testutil.UniqueEmail("nousage"), testutil.UniqueUsername("nousage"))
	if err := repo.CreateUserWithKey(ctx, user, testutil.NewTestAPIKey(t, user), nil); err != nil {
		t.Fatalf("CreateUserWithKey failed: %v", err)
	}

	records, err := repo.ListUsageByUserID(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListUsageByUserID failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}
