package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openalways/openalways/internal/ads"
	"github.com/openalways/openalways/internal/auth"
	"github.com/openalways/openalways/internal/metrics"
	"github.com/openalways/openalways/internal/model"
	"github.com/openalways/openalways/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeKeysStore is an in-memory KeysStore.
type fakeKeysStore struct {
	mu      sync.Mutex
	users   map[string]*model.User
	keys    []*model.APIKey
	grants  map[string]bool // userID|adID|day
	touched []string
}

func newFakeKeysStore() *fakeKeysStore {
	return &fakeKeysStore{
		users:  make(map[string]*model.User),
		grants: make(map[string]bool),
	}
}

func (f *fakeKeysStore) addUser(u *model.User, rawKey string) {
	f.users[u.ID] = u
	f.keys = append(f.keys, &model.APIKey{
		ID:        "key-" + u.ID,
		UserID:    u.ID,
		Key:       rawKey,
		IsActive:  true,
		CreatedAt: time.Now(),
	})
}

func (f *fakeKeysStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeKeysStore) GetActiveKeyByValue(ctx context.Context, key string) (*model.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.keys {
		if k.Key == key && k.IsActive {
			cp := *k
			return &cp, nil
		}
	}
	return nil, repository.ErrAPIKeyNotFound
}

func (f *fakeKeysStore) TouchAPIKey(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeKeysStore) RegenerateKey(ctx context.Context, userID string, newKey *model.APIKey) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	if u.KeysGenerated >= u.MaxKeys {
		return 0, repository.ErrKeyQuotaExceeded
	}
	for _, k := range f.keys {
		if k.UserID == userID {
			k.IsActive = false
		}
	}
	f.keys = append(f.keys, newKey)
	u.KeysGenerated++
	u.APIKey = newKey.Key
	return u.KeysGenerated, nil
}

func (f *fakeKeysStore) ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.APIKey
	for i := len(f.keys) - 1; i >= 0; i-- {
		if f.keys[i].UserID == userID {
			cp := *f.keys[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeKeysStore) ClaimAdReward(ctx context.Context, grant *model.AdViewGrant, reward, dailyLimit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[grant.UserID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	if f.countGrantsLocked(grant.UserID, grant.Day) >= dailyLimit {
		return 0, repository.ErrAdDailyLimit
	}
	key := grantKey(grant.UserID, grant.AdID, grant.Day)
	if f.grants[key] {
		return 0, repository.ErrAdAlreadyClaimed
	}
	f.grants[key] = true
	u.MaxKeys += reward
	return u.MaxKeys, nil
}

func (f *fakeKeysStore) countGrantsLocked(userID string, day time.Time) int {
	count := 0
	prefix := userID + "|"
	suffix := "|" + day.Format("2006-01-02")
	for k, v := range f.grants {
		if v && strings.HasPrefix(k, prefix) && strings.HasSuffix(k, suffix) {
			count++
		}
	}
	return count
}

func (f *fakeKeysStore) seedGrants(userID string, day time.Time, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.grants[grantKey(userID, 1000+i, day)] = true
	}
}

func grantKey(userID string, adID int, day time.Time) string {
	return fmt.Sprintf("%s|%d|%s", userID, adID, day.Format("2006-01-02"))
}

func newTestUser(id string) *model.User {
	return &model.User{
		ID:            id,
		Email:         id + "@example.com",
		Username:      "user_" + id,
		IsVerified:    true,
		KeysGenerated: model.InitialKeysGenerated,
		MaxKeys:       model.DefaultMaxKeys,
		CreatedAt:     time.Now(),
	}
}

func TestVerifyKey(t *testing.T) {
	t.Parallel()

	store := newFakeKeysStore()
	rawKey, err := auth.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	store.addUser(newTestUser("u1"), rawKey)

	svc := NewKeysService(store, testLogger(), nil)

	user, key, err := svc.VerifyKey(context.Background(), rawKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("expected user u1, got %s", user.ID)
	}
	if key.UserID != "u1" {
		t.Errorf("expected key owner u1, got %s", key.UserID)
	}
}

func TestVerifyKeyInvalid(t *testing.T) {
	t.Parallel()

	store := newFakeKeysStore()
	svc := NewKeysService(store, testLogger(), nil)

	unknownKey, _ := auth.GenerateKey()

	tests := []struct {
		name string
		key  string
	}{
		{"malformed", "not-a-key"},
		{"wrong prefix", "sk_live_" + strings.Repeat("a", 43)},
		{"unknown key", unknownKey},
		{"empty", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := svc.VerifyKey(context.Background(), tt.key)
			if !errors.Is(err, ErrInvalidKey) {
				t.Errorf("expected ErrInvalidKey, got %v", err)
			}
		})
	}
}

func TestVerifyKeyInactive(t *testing.T) {
	t.Parallel()

	store := newFakeKeysStore()
	rawKey, _ := auth.GenerateKey()
	store.addUser(newTestUser("u1"), rawKey)
	store.keys[0].IsActive = false

	svc := NewKeysService(store, testLogger(), nil)

	_, _, err := svc.VerifyKey(context.Background(), rawKey)
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for inactive key, got %v", err)
	}
}

func TestRegenerate(t *testing.T) {
	t.Parallel()

	store := newFakeKeysStore()
	rawKey, _ := auth.GenerateKey()
	store.addUser(newTestUser("u1"), rawKey)

	rec := metrics.NewInMemory()
	svc := NewKeysService(store, testLogger(), rec)

	result, err := svc.Regenerate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.KeysGenerated != 2 {
		t.Errorf("expected keys_generated 2, got %d", result.KeysGenerated)
	}
	if result.Key == rawKey {
		t.Error("regeneration returned the old key")
	}
	if !auth.ValidKeyFormat(result.Key) {
		t.Errorf("new key has invalid format: %q", result.Key)
	}

	// Old key no longer authenticates
	if _, _, err := svc.VerifyKey(context.Background(), rawKey); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("old key still valid after regeneration: %v", err)
	}

	// New key does
	if _, _, err := svc.VerifyKey(context.Background(), result.Key); err != nil {
		t.Errorf("new key rejected: %v", err)
	}

	if got := rec.Snapshot().KeysRegenerated; got != 1 {
		t.Errorf("expected 1 regeneration recorded, got %d", got)
	}
}

func TestRegenerateQuota(t *testing.T) {
	t.Parallel()

	store := newFakeKeysStore()
	rawKey, _ := auth.GenerateKey()
	user := newTestUser("u1")
	user.KeysGenerated = user.MaxKeys
	store.addUser(user, rawKey)

	rec := metrics.NewInMemory()
	svc := NewKeysService(store, testLogger(), rec)

	_, err := svc.Regenerate(context.Background(), "u1")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	// Existing key stays usable after a rejected regeneration
	if _, _, err := svc.VerifyKey(context.Background(), rawKey); err != nil {
		t.Errorf("active key broken by rejected regeneration: %v", err)
	}

	if got := rec.Snapshot().KeyQuotaHits; got != 1 {
		t.Errorf("expected 1 quota hit recorded, got %d", got)
	}
}

func TestHistoryMasksKeys(t *testing.T) {
	t.Parallel()

	store := newFakeKeysStore()
	rawKey, _ := auth.GenerateKey()
	store.addUser(newTestUser("u1"), rawKey)

	svc := NewKeysService(store, testLogger(), nil)

	if _, err := svc.Regenerate(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}

	entries, err := svc.History(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].IsActive || entries[1].IsActive {
		t.Error("expected newest entry active, oldest inactive")
	}
	for _, e := range entries {
		if !strings.Contains(e.Key, "...") {
			t.Errorf("history entry not masked: %q", e.Key)
		}
		if strings.Contains(e.Key, rawKey[len(auth.KeyPrefix):len(rawKey)-4]) {
			t.Errorf("history entry leaks key material: %q", e.Key)
		}
	}
}

func TestClaimAd(t *testing.T) {
	t.Parallel()

	store := newFakeKeysStore()
	rawKey, _ := auth.GenerateKey()
	store.addUser(newTestUser("u1"), rawKey)

	rec := metrics.NewInMemory()
	svc := NewKeysService(store, testLogger(), rec)

	result, err := svc.ClaimAd(context.Background(), "u1", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MaxKeys != model.DefaultMaxKeys+1 {
		t.Errorf("expected max_keys %d, got %d", model.DefaultMaxKeys+1, result.MaxKeys)
	}

	// Same ad, same day: rejected
	_, err = svc.ClaimAd(context.Background(), "u1", 1)
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}

	// Different ad still works
	if _, err := svc.ClaimAd(context.Background(), "u1", 2); err != nil {
		t.Errorf("second ad rejected: %v", err)
	}

	snap := rec.Snapshot()
	if snap.AdRewardsClaimed["success"] != 2 || snap.AdRewardsClaimed["duplicate"] != 1 {
		t.Errorf("unexpected ad metrics: %+v", snap.AdRewardsClaimed)
	}
}

func TestClaimAdUnknown(t *testing.T) {
	t.Parallel()

	store := newFakeKeysStore()
	store.addUser(newTestUser("u1"), "")

	svc := NewKeysService(store, testLogger(), nil)

	_, err := svc.ClaimAd(context.Background(), "u1", 999)
	if !errors.Is(err, ErrUnknownAd) {
		t.Errorf("expected ErrUnknownAd, got %v", err)
	}
}

func TestClaimAdNextDayResets(t *testing.T) {
	t.Parallel()

	store := newFakeKeysStore()
	rawKey, _ := auth.GenerateKey()
	store.addUser(newTestUser("u1"), rawKey)

	svc := NewKeysService(store, testLogger(), nil)

	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	svc.now = func() time.Time { return day1 }

	if _, err := svc.ClaimAd(context.Background(), "u1", 1); err != nil {
		t.Fatal(err)
	}

	// Two minutes later it is a new UTC day
	svc.now = func() time.Time { return day1.Add(2 * time.Minute) }

	if _, err := svc.ClaimAd(context.Background(), "u1", 1); err != nil {
		t.Errorf("claim on new day rejected: %v", err)
	}
}

func TestClaimAdDailyLimit(t *testing.T) {
	t.Parallel()

	store := newFakeKeysStore()
	rawKey, _ := auth.GenerateKey()
	store.addUser(newTestUser("u1"), rawKey)

	rec := metrics.NewInMemory()
	svc := NewKeysService(store, testLogger(), rec)

	fixed := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	store.seedGrants("u1", model.GrantDay(fixed), ads.MaxAdsPerDay)

	_, err := svc.ClaimAd(context.Background(), "u1", 1)
	if !errors.Is(err, ErrDailyAdLimit) {
		t.Fatalf("expected ErrDailyAdLimit, got %v", err)
	}

	// Refused claim leaves the ceiling alone
	u, _ := store.GetUserByID(context.Background(), "u1")
	if u.MaxKeys != model.DefaultMaxKeys {
		t.Errorf("max_keys moved on refused claim: %d", u.MaxKeys)
	}

	if got := rec.Snapshot().AdRewardsClaimed["limit"]; got != 1 {
		t.Errorf("expected 1 limit hit recorded, got %d", got)
	}
}

func TestClaimAdInactive(t *testing.T) {
	t.Parallel()

	store := newFakeKeysStore()
	rawKey, _ := auth.GenerateKey()
	store.addUser(newTestUser("u1"), rawKey)

	svc := NewKeysService(store, testLogger(), nil)
	svc.lookupAd = func(id int) (ads.Ad, bool) {
		return ads.Ad{ID: id, Reward: 1, Active: false}, true
	}

	if _, err := svc.ClaimAd(context.Background(), "u1", 1); !errors.Is(err, ErrUnknownAd) {
		t.Errorf("expected ErrUnknownAd for inactive ad, got %v", err)
	}
}

func TestClaimAdCatalog(t *testing.T) {
	t.Parallel()

	active := ads.Active()
	if len(active) == 0 {
		t.Fatal("no active ads")
	}
	for _, ad := range active {
		if ad.Reward < 1 {
			t.Errorf("ad %d has no reward", ad.ID)
		}
	}
}
