package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/openalways/openalways/internal/auth"
	"github.com/openalways/openalways/internal/googleauth"
	"github.com/openalways/openalways/internal/model"
	"github.com/openalways/openalways/internal/repository"
)

// fakeAccountStore is an in-memory AccountStore.
type fakeAccountStore struct {
	mu    sync.Mutex
	users map[string]*model.User // by ID
	keys  []*model.APIKey
	otps  []*model.OTPCode
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{users: make(map[string]*model.User)}
}

func (f *fakeAccountStore) CreateUserWithKey(ctx context.Context, user *model.User, key *model.APIKey, otp *model.OTPCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return repository.ErrEmailExists
		}
		if u.Username == user.Username {
			return repository.ErrUsernameExists
		}
	}
	cp := *user
	f.users[user.ID] = &cp
	f.keys = append(f.keys, key)
	if otp != nil {
		f.otps = append(f.otps, otp)
	}
	return nil
}

func (f *fakeAccountStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeAccountStore) GetUserByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.GoogleID == googleID && googleID != "" {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeAccountStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccountStore) LinkGoogleAccount(ctx context.Context, userID, googleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.GoogleID = googleID
	u.IsVerified = true
	return nil
}

func (f *fakeAccountStore) CreateOTP(ctx context.Context, otp *model.OTPCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.otps = append(f.otps, otp)
	return nil
}

func (f *fakeAccountStore) GetUnusedOTP(ctx context.Context, userID, code, purpose string) (*model.OTPCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.otps) - 1; i >= 0; i-- {
		o := f.otps[i]
		if o.UserID == userID && o.Code == code && o.Purpose == purpose && !o.Used {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrOTPNotFound
}

func (f *fakeAccountStore) MarkUserVerified(ctx context.Context, userID, otpID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.otps {
		if o.ID == otpID && !o.Used {
			o.Used = true
			f.users[userID].IsVerified = true
			return nil
		}
	}
	return repository.ErrOTPNotFound
}

func (f *fakeAccountStore) ResetPassword(ctx context.Context, userID, otpID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.otps {
		if o.ID == otpID && !o.Used {
			o.Used = true
			f.users[userID].PasswordHash = passwordHash
			return nil
		}
	}
	return repository.ErrOTPNotFound
}

// latestCode returns the newest stored code for an email and purpose.
func (f *fakeAccountStore) latestCode(email, purpose string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var userID string
	for _, u := range f.users {
		if u.Email == email {
			userID = u.ID
		}
	}
	for i := len(f.otps) - 1; i >= 0; i-- {
		o := f.otps[i]
		if o.UserID == userID && o.Purpose == purpose && !o.Used {
			return o.Code
		}
	}
	return ""
}

// fakeMailer records sent codes.
type fakeMailer struct {
	enabled bool
	sent    []string
	fail    bool
}

func (m *fakeMailer) Enabled() bool { return m.enabled }

func (m *fakeMailer) SendVerificationCode(to, code string) error {
	if m.fail {
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, code)
	return nil
}

func (m *fakeMailer) SendResetCode(to, code string) error {
	return m.SendVerificationCode(to, code)
}

// fakeCaptcha approves or rejects every token.
type fakeCaptcha struct{ ok bool }

func (c *fakeCaptcha) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	return c.ok, nil
}

// fakeGoogle returns a fixed profile.
type fakeGoogle struct {
	info *googleauth.UserInfo
}

func (g *fakeGoogle) Enabled() bool { return g.info != nil }

func (g *fakeGoogle) AuthCodeURL(state string) (string, error) {
	if g.info == nil {
		return "", googleauth.ErrNotConfigured
	}
	return "https://accounts.google.com/o/oauth2/auth?state=" + state, nil
}

func (g *fakeGoogle) Exchange(ctx context.Context, code string) (*googleauth.UserInfo, error) {
	if g.info == nil {
		return nil, googleauth.ErrNotConfigured
	}
	return g.info, nil
}

func newTestAccountService(store *fakeAccountStore, mail *fakeMailer, google *fakeGoogle) *AccountService {
	if mail == nil {
		mail = &fakeMailer{}
	}
	if google == nil {
		google = &fakeGoogle{}
	}
	return NewAccountService(store, mail, &fakeCaptcha{ok: true}, google, testLogger(), nil)
}

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Email:    "alice@example.com",
		Username: "alice",
		Password: "correct-horse",
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	svc := newTestAccountService(store, nil, nil)

	delivery, err := svc.Register(context.Background(), validRegisterInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if delivery.EmailSent {
		t.Error("email reported sent with mail disabled")
	}
	if delivery.DebugCode == "" {
		t.Error("expected debug code with mail disabled")
	}
	if len(delivery.DebugCode) != 6 {
		t.Errorf("expected 6 char code, got %q", delivery.DebugCode)
	}

	user, err := store.GetUserByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("user not stored: %v", err)
	}
	if user.IsVerified {
		t.Error("new user should be unverified")
	}
	if user.KeysGenerated != model.InitialKeysGenerated || user.MaxKeys != model.DefaultMaxKeys {
		t.Errorf("unexpected quota: generated=%d max=%d", user.KeysGenerated, user.MaxKeys)
	}
	if !auth.ValidKeyFormat(user.APIKey) {
		t.Errorf("user has invalid api key: %q", user.APIKey)
	}
	if len(store.keys) != 1 || store.keys[0].Key != user.APIKey {
		t.Error("first key record does not mirror users.api_key")
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	svc := newTestAccountService(newFakeAccountStore(), nil, nil)

	tests := []struct {
		name    string
		mutate  func(*RegisterInput)
		wantErr error
	}{
		{"missing email", func(in *RegisterInput) { in.Email = "" }, ErrMissingFields},
		{"missing username", func(in *RegisterInput) { in.Username = "" }, ErrMissingFields},
		{"missing password", func(in *RegisterInput) { in.Password = "" }, ErrMissingFields},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }, ErrInvalidEmail},
		{"bad username", func(in *RegisterInput) { in.Username = "a b" }, ErrInvalidUsername},
		{"short username", func(in *RegisterInput) { in.Username = "ab" }, ErrInvalidUsername},
		{"short password", func(in *RegisterInput) { in.Password = "short" }, ErrPasswordTooShort},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := validRegisterInput()
			tt.mutate(&in)
			_, err := svc.Register(context.Background(), in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRegisterDuplicates(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	svc := newTestAccountService(store, nil, nil)

	if _, err := svc.Register(context.Background(), validRegisterInput()); err != nil {
		t.Fatal(err)
	}

	in := validRegisterInput()
	in.Username = "alice2"
	if _, err := svc.Register(context.Background(), in); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}

	in = validRegisterInput()
	in.Email = "alice2@example.com"
	if _, err := svc.Register(context.Background(), in); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestRegisterCaptchaRejected(t *testing.T) {
	t.Parallel()

	svc := NewAccountService(newFakeAccountStore(), &fakeMailer{}, &fakeCaptcha{ok: false}, &fakeGoogle{}, testLogger(), nil)

	_, err := svc.Register(context.Background(), validRegisterInput())
	if !errors.Is(err, ErrCaptchaFailed) {
		t.Errorf("expected ErrCaptchaFailed, got %v", err)
	}
}

func TestRegisterMailFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	mail := &fakeMailer{enabled: true, fail: true}
	svc := newTestAccountService(store, mail, nil)

	delivery, err := svc.Register(context.Background(), validRegisterInput())
	if err != nil {
		t.Fatalf("registration failed on mail error: %v", err)
	}
	if delivery.EmailSent {
		t.Error("email reported sent after failure")
	}
	if delivery.DebugCode == "" {
		t.Error("expected fallback code when delivery fails")
	}
}

func TestVerifyEmail(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	svc := newTestAccountService(store, nil, nil)

	delivery, err := svc.Register(context.Background(), validRegisterInput())
	if err != nil {
		t.Fatal(err)
	}

	// Codes are matched case-insensitively with surrounding whitespace trimmed
	user, err := svc.VerifyEmail(context.Background(), "alice@example.com", "  "+delivery.DebugCode+" ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !user.IsVerified {
		t.Error("user not verified after valid code")
	}

	// Replay is rejected
	if _, err := svc.VerifyEmail(context.Background(), "alice@example.com", delivery.DebugCode); !errors.Is(err, ErrCodeInvalid) {
		t.Errorf("expected ErrCodeInvalid on replay, got %v", err)
	}
}

func TestVerifyEmailBadCode(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	svc := newTestAccountService(store, nil, nil)

	if _, err := svc.Register(context.Background(), validRegisterInput()); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.VerifyEmail(context.Background(), "alice@example.com", "ZZZZZZ"); !errors.Is(err, ErrCodeInvalid) {
		t.Errorf("expected ErrCodeInvalid, got %v", err)
	}
	if _, err := svc.VerifyEmail(context.Background(), "nobody@example.com", "ABCDEF"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestVerifyEmailExpired(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	svc := newTestAccountService(store, nil, nil)

	delivery, err := svc.Register(context.Background(), validRegisterInput())
	if err != nil {
		t.Fatal(err)
	}

	svc.now = func() time.Time { return time.Now().Add(model.OTPTTL + time.Minute) }

	if _, err := svc.VerifyEmail(context.Background(), "alice@example.com", delivery.DebugCode); !errors.Is(err, ErrCodeExpired) {
		t.Errorf("expected ErrCodeExpired, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	svc := newTestAccountService(store, nil, nil)

	delivery, err := svc.Register(context.Background(), validRegisterInput())
	if err != nil {
		t.Fatal(err)
	}

	// Unverified: credentials accepted but login refused with a fresh code
	_, err = svc.Login(context.Background(), "alice@example.com", "correct-horse")
	var nv *NotVerifiedError
	if !errors.As(err, &nv) {
		t.Fatalf("expected NotVerifiedError, got %v", err)
	}
	if nv.DebugCode == "" || nv.DebugCode == delivery.DebugCode {
		t.Error("expected a fresh code on unverified login")
	}

	if _, err := svc.VerifyEmail(context.Background(), "alice@example.com", nv.DebugCode); err != nil {
		t.Fatal(err)
	}

	user, err := svc.Login(context.Background(), "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("expected alice, got %s", user.Username)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	svc := newTestAccountService(store, nil, nil)

	if _, err := svc.Register(context.Background(), validRegisterInput()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "alice@example.com", "wrong-password"},
		{"unknown email", "bob@example.com", "correct-horse"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.Login(context.Background(), tt.email, tt.password)
			if !errors.Is(err, ErrBadCredentials) {
				t.Errorf("expected ErrBadCredentials, got %v", err)
			}
		})
	}
}

func TestPasswordReset(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	svc := newTestAccountService(store, nil, nil)

	if _, err := svc.Register(context.Background(), validRegisterInput()); err != nil {
		t.Fatal(err)
	}
	code := store.latestCode("alice@example.com", model.PurposeVerification)
	if _, err := svc.VerifyEmail(context.Background(), "alice@example.com", code); err != nil {
		t.Fatal(err)
	}

	delivery, err := svc.ForgotPassword(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.ResetPassword(context.Background(), "alice@example.com", delivery.DebugCode, "new-password-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Old password rejected, new one accepted
	if _, err := svc.Login(context.Background(), "alice@example.com", "correct-horse"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("old password still works: %v", err)
	}
	if _, err := svc.Login(context.Background(), "alice@example.com", "new-password-1"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}

	// Reset code is single use
	if err := svc.ResetPassword(context.Background(), "alice@example.com", delivery.DebugCode, "another-pass-2"); !errors.Is(err, ErrCodeInvalid) {
		t.Errorf("expected ErrCodeInvalid on replay, got %v", err)
	}
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	t.Parallel()

	svc := newTestAccountService(newFakeAccountStore(), nil, nil)

	if _, err := svc.ForgotPassword(context.Background(), "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestResendOTP(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	svc := newTestAccountService(store, nil, nil)

	if _, err := svc.Register(context.Background(), validRegisterInput()); err != nil {
		t.Fatal(err)
	}

	delivery, err := svc.ResendOTP(context.Background(), "alice@example.com", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delivery.DebugCode == "" {
		t.Error("expected a code")
	}

	if _, err := svc.ResendOTP(context.Background(), "alice@example.com", "banana"); !errors.Is(err, ErrBadPurpose) {
		t.Errorf("expected ErrBadPurpose, got %v", err)
	}
}

func TestGoogleSignInNewUser(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	google := &fakeGoogle{info: &googleauth.UserInfo{Sub: "g-123", Email: "Carol@example.com"}}
	svc := newTestAccountService(store, nil, google)

	user, err := svc.GoogleSignIn(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if user.Email != "carol@example.com" {
		t.Errorf("expected lowercased email, got %s", user.Email)
	}
	if user.Username != "carol" {
		t.Errorf("expected username carol, got %s", user.Username)
	}
	if !user.IsVerified {
		t.Error("google users should be verified")
	}
	if user.HasPassword() {
		t.Error("google-only user should have no password")
	}
	if !auth.ValidKeyFormat(user.APIKey) {
		t.Errorf("google user has invalid api key: %q", user.APIKey)
	}

	// Second sign-in resolves the same account
	again, err := svc.GoogleSignIn(context.Background(), "auth-code")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != user.ID {
		t.Error("second sign-in created a new account")
	}
}

func TestGoogleSignInLinksByEmail(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	google := &fakeGoogle{info: &googleauth.UserInfo{Sub: "g-456", Email: "alice@example.com"}}
	svc := newTestAccountService(store, nil, google)

	if _, err := svc.Register(context.Background(), validRegisterInput()); err != nil {
		t.Fatal(err)
	}

	user, err := svc.GoogleSignIn(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("expected existing account, got %s", user.Username)
	}
	if !user.IsVerified {
		t.Error("linking should mark the account verified")
	}

	stored, _ := store.GetUserByGoogleID(context.Background(), "g-456")
	if stored == nil || stored.Username != "alice" {
		t.Error("google id not linked in store")
	}
}

func TestGoogleSignInUsernameCollision(t *testing.T) {
	t.Parallel()

	store := newFakeAccountStore()
	google := &fakeGoogle{info: &googleauth.UserInfo{Sub: "g-789", Email: "alice@gmail.com"}}
	svc := newTestAccountService(store, nil, google)

	// Taken by a classic registration with a different email
	if _, err := svc.Register(context.Background(), validRegisterInput()); err != nil {
		t.Fatal(err)
	}

	user, err := svc.GoogleSignIn(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Username != "alice1" {
		t.Errorf("expected deduplicated username alice1, got %s", user.Username)
	}
}

func TestGoogleSignInDisabled(t *testing.T) {
	t.Parallel()

	svc := newTestAccountService(newFakeAccountStore(), nil, nil)

	if _, err := svc.GoogleSignIn(context.Background(), "code"); !errors.Is(err, ErrGoogleDisabled) {
		t.Errorf("expected ErrGoogleDisabled, got %v", err)
	}
	if _, err := svc.GoogleAuthURL("state"); !errors.Is(err, ErrGoogleDisabled) {
		t.Errorf("expected ErrGoogleDisabled, got %v", err)
	}
}
