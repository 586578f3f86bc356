// Package main is the entrypoint for the Open Always API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/openalways/openalways/internal/cache"
	"github.com/openalways/openalways/internal/captcha"
	"github.com/openalways/openalways/internal/chat"
	"github.com/openalways/openalways/internal/config"
	"github.com/openalways/openalways/internal/email"
	"github.com/openalways/openalways/internal/googleauth"
	"github.com/openalways/openalways/internal/handler"
	"github.com/openalways/openalways/internal/metrics"
	"github.com/openalways/openalways/internal/middleware"
	"github.com/openalways/openalways/internal/repository"
	"github.com/openalways/openalways/internal/server"
	"github.com/openalways/openalways/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	recorder := metrics.NewNoop()

	mailer := email.NewSender(cfg.ResendAPIKey, cfg.MailFrom, logger)
	if !mailer.Enabled() {
		logger.Warn("email delivery disabled, one-time codes will appear in API responses")
	}

	turnstile := captcha.NewVerifier(cfg.TurnstileSecretKey, logger)
	google := googleauth.New(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.BaseURL+"/auth/google-callback")
	if !google.Enabled() {
		logger.Info("google sign-in disabled")
	}

	chatService := chat.NewService(cfg.ChatAPIURL, chat.NewHTTPClient(), logger, recorder)
	accountService := service.NewAccountService(repo, mailer, turnstile, google, logger, recorder)
	keysService := service.NewKeysService(repo, logger, recorder)
	usageService := service.NewUsageService(repo, logger)

	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	authHandler := handler.NewAuthHandler(accountService, cacheClient, logger, cfg.SessionTTL, cfg.IsProduction(), cfg.BaseURL)
	chatHandler := handler.NewChatHandler(chatService, usageService, logger)
	keysHandler := handler.NewKeysHandler(keysService, logger)
	adsHandler := handler.NewAdsHandler(keysService, logger)
	usageHandler := handler.NewUsageHandler(usageService, logger)
	docsHandler := handler.NewDocsHandler(cfg.BaseURL)

	r := setupRouter(
		healthHandler, authHandler, chatHandler, keysHandler,
		adsHandler, usageHandler, docsHandler,
		repo, cacheClient, keysService, cfg, logger,
	)

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)
	srv.OnShutdown("database", func(ctx context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("cache", func(ctx context.Context) error {
		return cacheClient.Close()
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	healthHandler *handler.HealthHandler,
	authHandler *handler.AuthHandler,
	chatHandler *handler.ChatHandler,
	keysHandler *handler.KeysHandler,
	adsHandler *handler.AdsHandler,
	usageHandler *handler.UsageHandler,
	docsHandler *handler.DocsHandler,
	repo *repository.Repository,
	cacheClient *cache.Cache,
	keysService *service.KeysService,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  logger,
		Cache:   cacheClient,
		Enabled: cfg.RateLimitAuthEnabled,
		RPS:     cfg.RateLimitAuthRPS,
		Burst:   cfg.RateLimitAuthBurst,
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.RateLimitAuth(rateLimitCfg))

		r.Post("/register", authHandler.Register)
		r.Post("/verify-email", authHandler.VerifyEmail)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Post("/reset-password", authHandler.ResetPassword)
		r.Post("/resend-otp", authHandler.ResendOTP)
		r.Get("/google-login", authHandler.GoogleLogin)
		r.Get("/google-callback", authHandler.GoogleCallback)
	})

	authCfg := middleware.AuthConfig{
		Sessions: cacheClient,
		Users:    repo,
		Keys:     keysService,
		Logger:   logger,
	}

	r.Route("/api", func(r chi.Router) {
		// Public catalog and docs endpoints
		r.Get("/models", chatHandler.Models)
		r.Get("/docs", docsHandler.Docs)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authCfg))

			r.Post("/chat", chatHandler.Chat)
			r.Get("/keys", keysHandler.GetKey)
			r.Post("/keys/regenerate", keysHandler.Regenerate)
			r.Get("/keys/history", keysHandler.History)
			r.Get("/usage", usageHandler.List)
			r.Get("/ads", adsHandler.List)
			r.Post("/ads/reward", adsHandler.Reward)
		})
	})

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
