package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/background"
	"github.com/BradenHooton/warden/internal/clock"
	"github.com/BradenHooton/warden/internal/config"
	"github.com/BradenHooton/warden/internal/database"
	"github.com/BradenHooton/warden/internal/handlers"
	"github.com/BradenHooton/warden/internal/limiters"
	middlewareCustom "github.com/BradenHooton/warden/internal/middleware"
	"github.com/BradenHooton/warden/internal/notify"
	"github.com/BradenHooton/warden/internal/repositories"
	"github.com/BradenHooton/warden/internal/routes"
	"github.com/BradenHooton/warden/internal/services"
	pkgauth "github.com/BradenHooton/warden/pkg/auth"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
	pkglogger "github.com/BradenHooton/warden/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Server.Env,
			AttachStacktrace: true,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
		}); err != nil {
			logger.Error("failed to initialize sentry", slog.Any("error", err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Initialize database
	db, err := database.Open(context.Background(), &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to migrate database", slog.Any("error", err))
			os.Exit(1)
		}
	}

	clk := clock.System{}
	pkgauth.SetBcryptCost(cfg.Auth.BcryptCost)

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	refreshRepo := repositories.NewRefreshTokenRepository(db)
	otpRepo := repositories.NewOTPRepository(db)

	// Token codecs, one per secret
	accessCodec, err := auth.NewCodec(cfg.Auth.AccessTokenSecret, clk)
	if err != nil {
		logger.Error("failed to create access token codec", slog.Any("error", err))
		os.Exit(1)
	}
	grantCodec, err := auth.NewCodec(cfg.Auth.AuxTokenSecret, clk)
	if err != nil {
		logger.Error("failed to create grant codec", slog.Any("error", err))
		os.Exit(1)
	}

	notifier, closeNotifier, err := newNotifier(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize notifier", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeNotifier()

	var verifyLimiter services.OTPVerifyLimiter
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		verifyLimiter = limiters.NewOTPVerifyLimiter(redisClient, limiters.OTPVerifyConfig{
			MaxAttempts: cfg.OTP.MaxVerifyAttempts,
			Window:      cfg.OTP.VerifyWindow,
		})
		logger.Info("otp verification limiter enabled", slog.String("redis_addr", cfg.Redis.Addr))
	}

	// Initialize services
	auditLogger := pkglogger.NewAuditLogger(logger)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   cfg.Auth.TimingDelayBase,
		RandomDelay: cfg.Auth.TimingDelayRandom,
	})

	guard := services.NewLoginGuard(accountRepo, services.LoginGuardConfig{
		MaxFailedAttempts: cfg.Auth.MaxFailedAttempts,
		LockoutPolicy:     cfg.Auth.LockoutPolicy,
	}, clk, timingDelay, logger, auditLogger)

	sessionService := services.NewSessionService(accountRepo, refreshRepo, db, guard, accessCodec, clk, services.SessionConfig{
		AccessTokenTTL:      cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL:     cfg.Auth.RefreshTokenTTL,
		RotateRefreshTokens: cfg.Auth.RefreshTokenRotation,
	}, logger, auditLogger)

	otpService := services.NewOTPService(otpRepo, db, notifier, verifyLimiter, clk, services.OTPConfig{
		TTL:           cfg.OTP.TTL,
		Digits:        cfg.OTP.Digits,
		NotifyTimeout: cfg.Notify.Timeout,
	}, logger, auditLogger)

	authService := services.NewAuthService(accountRepo, sessionService, otpService, grantCodec, clk, logger, auditLogger)

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid trusted proxies", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, ipConfig, logger)
	userHandler := handlers.NewUserHandler(authService, logger)

	cleanupManager := background.NewCleanupManager(refreshRepo, otpRepo, clk, logger, cfg.Auth.CleanupInterval, cfg.OTP.Retention)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middlewareCustom.Recoverer(logger))
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	routes.RegisterRoutes(router, authHandler, userHandler, accessCodec, routes.Limits{
		Auth: middlewareCustom.RateLimitConfig{Requests: cfg.Server.AuthRateLimitPerMinute, Window: time.Minute},
		OTP:  middlewareCustom.RateLimitConfig{Requests: cfg.Server.OTPRateLimitPerMinute, Window: time.Minute},
	}, ipConfig)

	router.Get("/health", handlers.Health(db))

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error", slog.Any("error", err))
	}

	cleanupManager.Stop()
	cleanupCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		return
	}

	logger.Info("server stopped gracefully")
}

// newNotifier builds the configured delivery channel. The returned func
// releases any connection it holds.
func newNotifier(cfg *config.Config, logger *slog.Logger) (notify.Notifier, func(), error) {
	n := cfg.Notify
	switch n.Provider {
	case config.NotifyProviderSES:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		notifier, err := notify.NewSESNotifier(ctx, n.AWSRegion, n.FromAddress, n.AppName, logger)
		if err != nil {
			return nil, nil, err
		}
		return notifier, func() {}, nil
	case config.NotifyProviderSMTP:
		return notify.NewSMTPNotifier(n.SMTPHost, n.SMTPPort, n.SMTPUsername, n.SMTPPassword, n.FromAddress, n.AppName, logger), func() {}, nil
	case config.NotifyProviderAMQP:
		notifier, err := notify.NewQueueNotifier(n.AMQPURL, n.AMQPQueue, n.AppName, logger)
		if err != nil {
			return nil, nil, err
		}
		return notifier, notifier.Close, nil
	case config.NotifyProviderLog:
		return notify.NewLogNotifier(cfg.Server.Env, logger), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown notify provider %q", n.Provider)
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
