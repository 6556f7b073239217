package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4" // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/haunted-house-queue/internal/allocation"
	"github.com/iliyamo/haunted-house-queue/internal/config" // Internal config loader
	"github.com/iliyamo/haunted-house-queue/internal/database"
	"github.com/iliyamo/haunted-house-queue/internal/handler"
	"github.com/iliyamo/haunted-house-queue/internal/middleware"
	"github.com/iliyamo/haunted-house-queue/internal/queue"
	"github.com/iliyamo/haunted-house-queue/internal/repository"
	"github.com/iliyamo/haunted-house-queue/internal/retry"
	"github.com/iliyamo/haunted-house-queue/internal/router" // Internal router setup
	"github.com/iliyamo/haunted-house-queue/internal/scheduler"
	"github.com/iliyamo/haunted-house-queue/internal/service"
	"github.com/iliyamo/haunted-house-queue/internal/validate"
)

func main() {
	cfg := config.Load() // Load environment config
	log := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.WithError(err).Fatal("migrate database")
		}
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig(), log)
	if rdb != nil {
		defer rdb.Close()
	}

	publisher := service.NewEventPublisher(cfg.AMQPURL, log)
	defer publisher.Close()
	go func() {
		if err := queue.NewAuditConsumer(cfg.AMQPURL, log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("audit consumer stopped")
		}
	}()

	policy := retry.DefaultPolicy()
	if cfg.DBRetry > 0 {
		policy.Attempts = uint64(cfg.DBRetry)
	}
	engine := allocation.NewEngine(allocation.NewSQLStore(db),
		allocation.WithRetryPolicy(policy),
		allocation.WithPublisher(publisher),
		allocation.WithLogger(log),
		allocation.WithReconcileOnRead(cfg.ReconcileOnRead),
	)

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	if err := service.EnsureAdmin(ctx, users, cfg.AdminEmail, cfg.AdminPassword, cfg.BcryptCost, log); err != nil {
		log.WithError(err).Fatal("bootstrap admin")
	}

	sweeper, err := scheduler.New(engine, rdb, scheduler.Options{
		Interval: cfg.ReconcileInterval,
		LockTTL:  cfg.ReconcileLockTTL,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("create scheduler")
	}
	if err := sweeper.AddTokenPurge(tokens, time.Hour, 7*24*time.Hour); err != nil {
		log.WithError(err).Fatal("schedule token purge")
	}
	sweeper.Start()

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Validator = validate.EchoValidator{}
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))

	cacheCfg := config.LoadCacheConfig()
	limiter := middleware.NewRateLimiter(config.LoadRateLimitConfig(), rdb)
	invalidate := middleware.InvalidateOnWrite(cacheCfg, rdb)

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterPublic(e, handler.NewPublicHandler(engine), middleware.NewRedisCache(cacheCfg, rdb))
	router.RegisterCustomer(e, handler.NewCustomerHandler(engine, users), cfg.JWTSecret, limiter, invalidate)
	router.RegisterAdmin(e, handler.NewAdminHandler(engine), cfg.JWTSecret, invalidate)

	addr := ":" + cfg.Port // Address string with port
	go func() {
		log.WithField("addr", addr).WithField("env", cfg.Env).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	if err := sweeper.Shutdown(); err != nil {
		log.WithError(err).Error("scheduler shutdown")
	}
}
