package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Starbugstone/chat/internal/app/migrate"
	httpx "github.com/Starbugstone/chat/internal/http"
	"github.com/Starbugstone/chat/internal/notify"
	"github.com/Starbugstone/chat/internal/repository"
	"github.com/Starbugstone/chat/internal/repository/memory"
	"github.com/Starbugstone/chat/internal/repository/postgres"
	"github.com/Starbugstone/chat/internal/service/account"
	"github.com/Starbugstone/chat/pkg/config"
	"github.com/Starbugstone/chat/pkg/crypto"
	"github.com/Starbugstone/chat/pkg/logger"
)

const insecureDefaultSecret = "supersecuresecret"

func main() {
	config.LoadDotEnv()
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))

	if cfg.Production() && (cfg.JWTSecret == "" || cfg.JWTSecret == insecureDefaultSecret) {
		log.Error("JWT_SECRET must be set in production")
		os.Exit(1)
	}
	if cfg.Production() && cfg.ExposeVerificationToken {
		log.Warn("verification tokens are exposed in registration responses", "env", cfg.Environment)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, dbHealth, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open account store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	svc := account.New(repo, crypto.Bcrypt{Cost: cfg.BcryptCost}, newNotifier(cfg, log), log, cfg)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, svc, limiter, cfg, dbHealth)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "store", cfg.StoreDriver)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (repository.AccountRepository, func(context.Context) error, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory account store; data is lost on restart")
		return memory.New(), nil, func() {}, nil
	case config.StoreDriverPostgres, "":
	default:
		return nil, nil, nil, errors.New("unsupported STORE_DRIVER " + cfg.StoreDriver)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	if cfg.AutoMigrate {
		runner, err := migrate.New(cfg.DatabaseURL, migrate.DirOrEmbedded(cfg.MigrationsDir), log)
		if err == nil {
			err = runner.Ensure(ctx)
		}
		if err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
	}
	repo := postgres.New(pool)
	return repo, repo.Ping, pool.Close, nil
}

func newNotifier(cfg config.APIConfig, log *slog.Logger) notify.Notifier {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		log.Warn("SMTP_HOST not set; verification links are written to the log")
		return notify.NewLog(cfg.PublicBaseURL, log)
	}
	smtp, err := notify.NewSMTP(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
		BaseURL:  cfg.PublicBaseURL,
	}, log)
	if err != nil {
		log.Warn("smtp notifier misconfigured; falling back to log notifier", "error", err)
		return notify.NewLog(cfg.PublicBaseURL, log)
	}
	return smtp
}
