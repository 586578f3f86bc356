// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/openalways/openalways/internal/ads"
	"github.com/openalways/openalways/internal/auth"
	"github.com/openalways/openalways/internal/metrics"
	"github.com/openalways/openalways/internal/model"
	"github.com/openalways/openalways/internal/repository"
)

// Key service errors.
var (
	ErrInvalidKey     = errors.New("invalid or inactive API key")
	ErrQuotaExceeded  = errors.New("key regeneration quota exceeded")
	ErrUnknownAd      = errors.New("unknown ad")
	ErrAlreadyClaimed = errors.New("ad reward already claimed today")
	ErrDailyAdLimit   = errors.New("daily ad reward limit reached")
)

// KeysStore is the persistence surface the key service needs.
type KeysStore interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetActiveKeyByValue(ctx context.Context, key string) (*model.APIKey, error)
	TouchAPIKey(ctx context.Context, id string) error
	RegenerateKey(ctx context.Context, userID string, newKey *model.APIKey) (int, error)
	ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error)
	ClaimAdReward(ctx context.Context, grant *model.AdViewGrant, reward, dailyLimit int) (int, error)
}

// KeysService handles key verification, regeneration and ad rewards.
type KeysService struct {
	store    KeysStore
	logger   *slog.Logger
	metrics  metrics.Recorder
	now      func() time.Time
	lookupAd func(id int) (ads.Ad, bool)
}

// NewKeysService creates a KeysService.
func NewKeysService(store KeysStore, logger *slog.Logger, recorder metrics.Recorder) *KeysService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &KeysService{
		store:    store,
		logger:   logger,
		metrics:  recorder,
		now:      time.Now,
		lookupAd: ads.ByID,
	}
}

// VerifyKey resolves a raw key value to its owner. A malformed, unknown or
// inactive key reports ErrInvalidKey without revealing which condition
// failed. The key's last_used timestamp is updated in the background.
func (s *KeysService) VerifyKey(ctx context.Context, rawKey string) (*model.User, *model.APIKey, error) {
	if !auth.ValidKeyFormat(rawKey) {
		return nil, nil, ErrInvalidKey
	}

	key, err := s.store.GetActiveKeyByValue(ctx, rawKey)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return nil, nil, ErrInvalidKey
		}
		return nil, nil, err
	}

	user, err := s.store.GetUserByID(ctx, key.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, ErrInvalidKey
		}
		return nil, nil, err
	}

	// Fire and forget; a failed touch never blocks authentication.
	go func() {
		touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.TouchAPIKey(touchCtx, key.ID); err != nil {
			s.logger.Warn("failed to update key last_used",
				slog.String("key_id", key.ID),
				slog.String("error", err.Error()),
			)
		}
	}()

	return user, key, nil
}

// RegenerateResult reports the outcome of a key regeneration.
type RegenerateResult struct {
	Key           string
	KeysGenerated int
	MaxKeys       int
}

// Regenerate replaces the user's active key with a freshly generated one.
// The quota check happens inside the repository transaction so concurrent
// calls cannot exceed max_keys.
func (s *KeysService) Regenerate(ctx context.Context, userID string) (*RegenerateResult, error) {
	raw, err := auth.GenerateKey()
	if err != nil {
		return nil, err
	}

	newKey := &model.APIKey{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Key:       raw,
		IsActive:  true,
		CreatedAt: s.now(),
	}

	generated, err := s.store.RegenerateKey(ctx, userID, newKey)
	if err != nil {
		if errors.Is(err, repository.ErrKeyQuotaExceeded) {
			s.metrics.IncKeyQuotaHit()
			return nil, ErrQuotaExceeded
		}
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.metrics.IncKeyRegenerated()
	s.logger.Info("api key regenerated",
		slog.String("user_id", userID),
		slog.Int("keys_generated", generated),
	)

	return &RegenerateResult{
		Key:           raw,
		KeysGenerated: generated,
		MaxKeys:       user.MaxKeys,
	}, nil
}

// History lists the user's key issuance records, newest first, with key
// values masked.
func (s *KeysService) History(ctx context.Context, userID string) ([]model.APIKeyHistoryEntry, error) {
	keys, err := s.store.ListAPIKeysByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	entries := make([]model.APIKeyHistoryEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, k.ToHistoryEntry())
	}
	return entries, nil
}

// ClaimAdResult reports the outcome of an ad reward claim.
type ClaimAdResult struct {
	Ad      ads.Ad
	MaxKeys int
}

// ClaimAd grants the reward for watching an ad. Each ad pays out at most
// once per user per UTC day, with an overall daily cap, both enforced
// inside the claim transaction so they survive restarts and concurrent
// claims. Ads removed from rotation no longer pay out.
func (s *KeysService) ClaimAd(ctx context.Context, userID string, adID int) (*ClaimAdResult, error) {
	ad, ok := s.lookupAd(adID)
	if !ok || !ad.Active {
		return nil, ErrUnknownAd
	}

	now := s.now()
	grant := &model.AdViewGrant{
		ID:        ulid.Make().String(),
		UserID:    userID,
		AdID:      ad.ID,
		Day:       model.GrantDay(now),
		CreatedAt: now,
	}

	maxKeys, err := s.store.ClaimAdReward(ctx, grant, ad.Reward, ads.MaxAdsPerDay)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAdAlreadyClaimed):
			s.metrics.IncAdRewardClaimed("duplicate")
			return nil, ErrAlreadyClaimed
		case errors.Is(err, repository.ErrAdDailyLimit):
			s.metrics.IncAdRewardClaimed("limit")
			return nil, ErrDailyAdLimit
		}
		return nil, err
	}

	s.metrics.IncAdRewardClaimed("success")
	s.logger.Info("ad reward claimed",
		slog.String("user_id", userID),
		slog.Int("ad_id", ad.ID),
		slog.Int("max_keys", maxKeys),
	)

	return &ClaimAdResult{Ad: ad, MaxKeys: maxKeys}, nil
}
