package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/openalways/openalways/internal/auth"
	"github.com/openalways/openalways/internal/googleauth"
	"github.com/openalways/openalways/internal/metrics"
	"github.com/openalways/openalways/internal/model"
	"github.com/openalways/openalways/internal/repository"
)

// Account service errors.
var (
	ErrMissingFields    = errors.New("all fields are required")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrInvalidUsername  = errors.New("username must be 3-30 characters, letters, digits, underscore")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrCaptchaFailed    = errors.New("captcha verification failed")
	ErrEmailTaken       = errors.New("email already in use")
	ErrUsernameTaken    = errors.New("username already taken")
	ErrUserNotFound     = errors.New("user not found")
	ErrBadCredentials   = errors.New("incorrect email or password")
	ErrCodeInvalid      = errors.New("invalid code")
	ErrCodeExpired      = errors.New("code expired")
	ErrBadPurpose       = errors.New("unknown code purpose")
	ErrGoogleDisabled   = errors.New("google sign-in unavailable")
)

// NotVerifiedError is returned by Login when the account exists but the
// email is unverified. A fresh verification code has already been issued.
type NotVerifiedError struct {
	Email     string
	EmailSent bool
	DebugCode string
}

func (e *NotVerifiedError) Error() string {
	return "email not verified"
}

var (
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
	usernameStrip   = regexp.MustCompile(`[^a-zA-Z0-9_]`)
)

const minPasswordLength = 8

// AccountStore is the persistence surface the account service needs.
type AccountStore interface {
	CreateUserWithKey(ctx context.Context, user *model.User, key *model.APIKey, otp *model.OTPCode) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (*model.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	LinkGoogleAccount(ctx context.Context, userID, googleID string) error
	CreateOTP(ctx context.Context, otp *model.OTPCode) error
	GetUnusedOTP(ctx context.Context, userID, code, purpose string) (*model.OTPCode, error)
	MarkUserVerified(ctx context.Context, userID, otpID string) error
	ResetPassword(ctx context.Context, userID, otpID, passwordHash string) error
}

// Mailer delivers one-time codes.
type Mailer interface {
	Enabled() bool
	SendVerificationCode(to, code string) error
	SendResetCode(to, code string) error
}

// CaptchaVerifier validates an anti-bot challenge token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// GoogleClient drives the Google authorization code flow.
type GoogleClient interface {
	Enabled() bool
	AuthCodeURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (*googleauth.UserInfo, error)
}

// AccountService handles registration, login and credential recovery.
type AccountService struct {
	store   AccountStore
	mail    Mailer
	captcha CaptchaVerifier
	google  GoogleClient
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewAccountService creates an AccountService.
func NewAccountService(store AccountStore, mail Mailer, captcha CaptchaVerifier, google GoogleClient, logger *slog.Logger, recorder metrics.Recorder) *AccountService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &AccountService{
		store:   store,
		mail:    mail,
		captcha: captcha,
		google:  google,
		logger:  logger,
		metrics: recorder,
		now:     time.Now,
	}
}

// RegisterInput is the registration request.
type RegisterInput struct {
	Email        string
	Username     string
	Password     string
	CaptchaToken string
	RemoteIP     string
}

// OTPDelivery reports how a one-time code reached the user. DebugCode is
// set only when email delivery is disabled, so local setups can still
// complete verification.
type OTPDelivery struct {
	Email     string
	EmailSent bool
	DebugCode string
}

// Register creates an account with its first API key and sends a
// verification code. A failed email send does not fail registration.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*OTPDelivery, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.TrimSpace(input.Username)

	switch {
	case email == "" || username == "" || input.Password == "":
		return nil, ErrMissingFields
	case !emailPattern.MatchString(email):
		return nil, ErrInvalidEmail
	case !usernamePattern.MatchString(username):
		return nil, ErrInvalidUsername
	case len(input.Password) < minPasswordLength:
		return nil, ErrPasswordTooShort
	}

	ok, err := s.captcha.Verify(ctx, input.CaptchaToken, input.RemoteIP)
	if err != nil {
		s.logger.Error("captcha verification error", slog.String("error", err.Error()))
		return nil, ErrCaptchaFailed
	}
	if !ok {
		return nil, ErrCaptchaFailed
	}

	passwordHash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	rawKey, err := auth.GenerateKey()
	if err != nil {
		return nil, err
	}

	code, err := auth.GenerateOTP()
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &model.User{
		ID:            ulid.Make().String(),
		Email:         email,
		Username:      username,
		PasswordHash:  passwordHash,
		APIKey:        rawKey,
		KeysGenerated: model.InitialKeysGenerated,
		MaxKeys:       model.DefaultMaxKeys,
		CreatedAt:     now,
	}
	key := &model.APIKey{
		ID:        ulid.Make().String(),
		UserID:    user.ID,
		Key:       rawKey,
		IsActive:  true,
		CreatedAt: now,
	}
	otp := &model.OTPCode{
		ID:        ulid.Make().String(),
		UserID:    user.ID,
		Code:      code,
		Purpose:   model.PurposeVerification,
		ExpiresAt: now.Add(model.OTPTTL),
		CreatedAt: now,
	}

	if err := s.store.CreateUserWithKey(ctx, user, key, otp); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return nil, ErrEmailTaken
		case errors.Is(err, repository.ErrUsernameExists):
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	s.metrics.IncKeyIssued()
	s.logger.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", email),
	)

	return s.deliverCode(user.Email, code, model.PurposeVerification), nil
}

// VerifyEmail consumes a verification code and marks the account verified.
func (s *AccountService) VerifyEmail(ctx context.Context, userEmail, code string) (*model.User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(userEmail)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	otp, err := s.lookupCode(ctx, user.ID, code, model.PurposeVerification)
	if err != nil {
		return nil, err
	}

	if err := s.store.MarkUserVerified(ctx, user.ID, otp.ID); err != nil {
		if errors.Is(err, repository.ErrOTPNotFound) {
			return nil, ErrCodeInvalid
		}
		return nil, err
	}

	user.IsVerified = true
	s.logger.Info("email verified", slog.String("user_id", user.ID))
	return user, nil
}

// Login checks credentials. An unverified account gets a fresh verification
// code and a NotVerifiedError instead of a session.
func (s *AccountService) Login(ctx context.Context, userEmail, password string) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(userEmail))
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}

	if !user.HasPassword() {
		// Google-only account
		return nil, ErrBadCredentials
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrBadCredentials
	}

	if !user.IsVerified {
		delivery, err := s.issueCode(ctx, user, model.PurposeVerification)
		if err != nil {
			return nil, err
		}
		return nil, &NotVerifiedError{
			Email:     user.Email,
			EmailSent: delivery.EmailSent,
			DebugCode: delivery.DebugCode,
		}
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	return user, nil
}

// ForgotPassword issues a reset code for an account.
func (s *AccountService) ForgotPassword(ctx context.Context, userEmail string) (*OTPDelivery, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(userEmail)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return s.issueCode(ctx, user, model.PurposeReset)
}

// ResetPassword consumes a reset code and stores a new password.
func (s *AccountService) ResetPassword(ctx context.Context, userEmail, code, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrPasswordTooShort
	}

	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(userEmail)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	otp, err := s.lookupCode(ctx, user.ID, code, model.PurposeReset)
	if err != nil {
		return err
	}

	passwordHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.store.ResetPassword(ctx, user.ID, otp.ID, passwordHash); err != nil {
		if errors.Is(err, repository.ErrOTPNotFound) {
			return ErrCodeInvalid
		}
		return err
	}

	s.logger.Info("password reset", slog.String("user_id", user.ID))
	return nil
}

// ResendOTP issues a fresh code for verification or password reset.
func (s *AccountService) ResendOTP(ctx context.Context, userEmail, purpose string) (*OTPDelivery, error) {
	if purpose == "" {
		purpose = model.PurposeVerification
	}
	if purpose != model.PurposeVerification && purpose != model.PurposeReset {
		return nil, ErrBadPurpose
	}

	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(userEmail)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return s.issueCode(ctx, user, purpose)
}

// GoogleAuthURL builds the consent page URL for a state token.
func (s *AccountService) GoogleAuthURL(state string) (string, error) {
	url, err := s.google.AuthCodeURL(state)
	if err != nil {
		return "", ErrGoogleDisabled
	}
	return url, nil
}

// GoogleSignIn completes the OAuth callback. It matches an existing Google
// account, links by email, or creates a fresh verified account with a
// username derived from the email local part.
func (s *AccountService) GoogleSignIn(ctx context.Context, code string) (*model.User, error) {
	info, err := s.google.Exchange(ctx, code)
	if err != nil {
		if errors.Is(err, googleauth.ErrNotConfigured) {
			return nil, ErrGoogleDisabled
		}
		return nil, err
	}

	email := strings.ToLower(info.Email)

	user, err := s.store.GetUserByGoogleID(ctx, info.Sub)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	existing, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		if err := s.store.LinkGoogleAccount(ctx, existing.ID, info.Sub); err != nil {
			return nil, err
		}
		existing.GoogleID = info.Sub
		existing.IsVerified = true
		s.logger.Info("google account linked", slog.String("user_id", existing.ID))
		return existing, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	username, err := s.uniqueUsername(ctx, email)
	if err != nil {
		return nil, err
	}

	rawKey, err := auth.GenerateKey()
	if err != nil {
		return nil, err
	}

	now := s.now()
	user = &model.User{
		ID:            ulid.Make().String(),
		Email:         email,
		Username:      username,
		APIKey:        rawKey,
		IsVerified:    true,
		GoogleID:      info.Sub,
		KeysGenerated: model.InitialKeysGenerated,
		MaxKeys:       model.DefaultMaxKeys,
		CreatedAt:     now,
	}
	key := &model.APIKey{
		ID:        ulid.Make().String(),
		UserID:    user.ID,
		Key:       rawKey,
		IsActive:  true,
		CreatedAt: now,
	}

	if err := s.store.CreateUserWithKey(ctx, user, key, nil); err != nil {
		return nil, err
	}

	s.metrics.IncKeyIssued()
	s.logger.Info("user registered via google", slog.String("user_id", user.ID))
	return user, nil
}

// uniqueUsername derives a free username from an email local part by
// appending a counter on collision.
func (s *AccountService) uniqueUsername(ctx context.Context, email string) (string, error) {
	base, _, _ := strings.Cut(email, "@")
	// Strip characters the username rules reject.
	base = usernameStrip.ReplaceAllString(base, "")
	if len(base) < 3 {
		base = "user" + base
	}
	if len(base) > 25 {
		base = base[:25]
	}

	candidate := base
	for i := 1; ; i++ {
		taken, err := s.store.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
}

// issueCode creates, stores and delivers a fresh one-time code.
func (s *AccountService) issueCode(ctx context.Context, user *model.User, purpose string) (*OTPDelivery, error) {
	code, err := auth.GenerateOTP()
	if err != nil {
		return nil, err
	}

	now := s.now()
	otp := &model.OTPCode{
		ID:        ulid.Make().String(),
		UserID:    user.ID,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: now.Add(model.OTPTTL),
		CreatedAt: now,
	}

	if err := s.store.CreateOTP(ctx, otp); err != nil {
		return nil, err
	}

	return s.deliverCode(user.Email, code, purpose), nil
}

// lookupCode finds an unused code and checks expiry.
func (s *AccountService) lookupCode(ctx context.Context, userID, code, purpose string) (*model.OTPCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrCodeInvalid
	}

	otp, err := s.store.GetUnusedOTP(ctx, userID, code, purpose)
	if err != nil {
		if errors.Is(err, repository.ErrOTPNotFound) {
			return nil, ErrCodeInvalid
		}
		return nil, err
	}

	if otp.IsExpired(s.now()) {
		return nil, ErrCodeExpired
	}

	return otp, nil
}

// deliverCode sends the code by email, falling back to exposing it in the
// response when delivery is disabled or fails.
func (s *AccountService) deliverCode(to, code, purpose string) *OTPDelivery {
	delivery := &OTPDelivery{Email: to}

	if !s.mail.Enabled() {
		delivery.DebugCode = code
		return delivery
	}

	var err error
	switch purpose {
	case model.PurposeReset:
		err = s.mail.SendResetCode(to, code)
	default:
		err = s.mail.SendVerificationCode(to, code)
	}

	if err != nil {
		s.logger.Warn("failed to send code email",
			slog.String("to", to),
			slog.String("error", err.Error()),
		)
		delivery.DebugCode = code
		return delivery
	}

	delivery.EmailSent = true
	return delivery
}
