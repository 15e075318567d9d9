package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/estate-ledger/internal/auth"
	"github.com/iliyamo/estate-ledger/internal/config"
	"github.com/iliyamo/estate-ledger/internal/database"
	"github.com/iliyamo/estate-ledger/internal/queue"
	"github.com/iliyamo/estate-ledger/internal/repository"
	"github.com/iliyamo/estate-ledger/internal/router"
	"github.com/iliyamo/estate-ledger/internal/service"
)

func level(s string) log.Lvl {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return log.DEBUG
	case "WARN":
		return log.WARN
	case "ERROR":
		return log.ERROR
	case "OFF":
		return log.OFF
	}
	return log.INFO
}

func main() {
	cfg := config.Load()

	logger := log.New("estate-ledger")
	logger.SetLevel(level(cfg.LogLevel))
	logger.SetHeader("${time_rfc3339} ${level} ${short_file}:${line}")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.Options{
		User:    cfg.DBUser,
		Pass:    cfg.DBPass,
		Host:    cfg.DBHost,
		Port:    cfg.DBPort,
		Name:    cfg.DBName,
		Timeout: cfg.StoreTimeout,
	})
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer db.Close()

	schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = database.EnsureSchema(schemaCtx, db)
	cancel()
	if err != nil {
		logger.Fatalf("schema: %v", err)
	}

	users := repository.NewUserRepo(db)
	tokenRepo := repository.NewTokenRepo(db)
	properties := repository.NewPropertyRepo(db)
	investments := repository.NewInvestmentRepo(db)
	updates := repository.NewUpdateRepo(db)
	applications := repository.NewApplicationRepo(db)

	tokens := auth.NewService(auth.Options{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}, tokenRepo, users)

	var events service.EventPublisher = queue.Discard{}
	if cfg.Broker.Enabled {
		events = queue.NewPublisher(cfg.Broker.URL, logger)
		consumer := &queue.Consumer{URL: cfg.Broker.URL, Dir: cfg.Broker.AuditDir, Log: logger}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("ledger-consumer: %v", err)
			}
		}()
	} else {
		logger.Info("events disabled; ledger events are not published")
	}

	policy := service.Policy{Timeout: cfg.StoreTimeout, Backoff: cfg.RetryBackoff}
	accounts := service.NewAccounts(users, tokens, cfg.BcryptCost, policy, logger)
	roles := service.NewRoles(users, applications, tokens, events, policy, logger)
	ledger := service.NewLedger(users, properties, investments, events, policy, logger)
	news := service.NewNews(updates, properties, investments, policy, logger)

	admin, created, err := accounts.EnsureAdmin(ctx, service.AdminSeed{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		FullName: cfg.AdminName,
	})
	if err != nil {
		logger.Fatalf("bootstrap admin: %v", err)
	}
	logger.Infof("admin %d (%s) ready, created=%t", admin.ID, admin.Email, created)

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		logger.Warn("redis unreachable; response cache and rate limiting disabled")
	} else {
		defer rdb.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.Logger = logger
	router.Register(e, router.Deps{
		Tokens:    tokens,
		Accounts:  accounts,
		Roles:     roles,
		Ledger:    ledger,
		News:      news,
		Redis:     rdb,
		Cache:     config.LoadCacheConfig(),
		RateLimit: config.LoadRateLimitConfig(),
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Infof("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
