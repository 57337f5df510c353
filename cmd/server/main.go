package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/billing/internal/bootstrap"
	"github.com/erp/billing/internal/infrastructure/config"
	"github.com/erp/billing/internal/infrastructure/logger"
	"github.com/erp/billing/internal/infrastructure/scheduler"
	"github.com/erp/billing/internal/infrastructure/telemetry"
	"github.com/erp/billing/internal/interfaces/http/handler"
	"github.com/erp/billing/internal/interfaces/http/middleware"
	"github.com/erp/billing/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}, logger.WithFields(zap.String("service", cfg.App.Name)))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	telemetry.ServiceVersion = version
	ctx := context.Background()

	tel, err := bootstrap.StartTelemetry(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log = tel.Logger
	defer func() { _ = log.Sync() }()

	log.Info("Starting billing engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	app, err := bootstrap.New(ctx, cfg, log, tel)
	if err != nil {
		log.Fatal("Failed to initialize billing ledger", zap.Error(err))
	}

	var sched *scheduler.RecurringInvoiceScheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(scheduler.Config{
			RunHour:         cfg.Scheduler.RunHour,
			LookaheadMonths: cfg.Scheduler.LookaheadMonths,
			JobTimeout:      cfg.Scheduler.JobTimeout,
			LockTTL:         cfg.Billing.LockTTL,
		}, app.Batch, app.Locker, log)
		if err := sched.Start(ctx); err != nil {
			log.Fatal("Failed to start recurring invoice scheduler", zap.Error(err))
		}
	} else {
		log.Info("Recurring invoice scheduler disabled")
	}

	engine, err := newEngine(cfg, app, sched, tel, log)
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping scheduler", zap.Error(err))
		}
	}
	if err := app.Close(shutdownCtx); err != nil {
		log.Error("Error closing billing ledger", zap.Error(err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down telemetry", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func newEngine(cfg *config.Config, app *bootstrap.App, sched *scheduler.RecurringInvoiceScheduler, tel *bootstrap.Telemetry, log *zap.Logger) (*gin.Engine, error) {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := middleware.SetupValidator(); err != nil {
		return nil, err
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			return nil, err
		}
	}

	httpMetrics, err := middleware.HTTPMetrics(tel.Meter("github.com/erp/billing/http"))
	if err != nil {
		return nil, err
	}

	engine.Use(logger.Recovery(log))
	engine.Use(middleware.RequestID())
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanAttributes())
	engine.Use(logger.GinMiddleware(log))
	if cfg.Telemetry.ProfilingEnabled {
		engine.Use(middleware.Profiling())
	}
	engine.Use(httpMetrics)
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(middleware.Secure())

	checks := map[string]handler.HealthCheck{
		"database": app.DB.Ping,
	}
	if cfg.Redis.RedisEnabled() {
		checks["redis"] = redisCheck(cfg.Redis)
	}
	if app.Documents != nil {
		checks["storage"] = func(ctx context.Context) error {
			_, err := app.Documents.Exists(ctx, ".health")
			return err
		}
	}

	var trigger handler.BatchTrigger
	if sched != nil {
		trigger = sched
	}

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(router.InvoiceRoutes(handler.NewInvoiceHandler(app.Ledger))...).
		Register(router.BillingRoutes(handler.NewBillingHandler(app.Ledger, trigger))...).
		RegisterRoot(router.SystemRoutes(handler.NewSystemHandler(cfg.App.Name, version, checks)))
	r.Setup()

	return engine, nil
}

// redisCheck pings the locker's Redis on each probe
func redisCheck(cfg config.RedisConfig) handler.HealthCheck {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
