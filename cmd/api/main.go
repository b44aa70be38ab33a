package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gradportal/internal/admin"
	"gradportal/internal/auth"
	"gradportal/internal/config"
	"gradportal/internal/gatepass"
	"gradportal/internal/handler"
	"gradportal/internal/httpmiddleware"
	"gradportal/internal/logging"
	"gradportal/internal/metrics"
	"gradportal/internal/notify"
	"gradportal/internal/queue"
	"gradportal/internal/registration"
	"gradportal/internal/roster"
	"gradportal/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "gradportal-api")
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("database not reachable at startup", zap.Error(err))
	}
	if db == nil {
		return err
	}
	defer db.Close()

	if err == nil {
		if err := store.Migrate(ctx, db.Client, logger); err != nil {
			return err
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	notifier, memQueue := buildNotifier(cfg, redisClient, logger)
	if memQueue != nil {
		// no separate worker process can reach an in-memory queue
		worker := notify.NewWorker(memQueue, notify.NewMailer(notify.MailConfigFrom(cfg)), cfg.Notify.MaxAttempts, logger)
		go func() { _ = worker.Run(ctx) }()
	}

	issuer := auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
	admins := admin.NewService(
		admin.NewRepository(db.Client),
		admin.BcryptHasher{Cost: cfg.BcryptCost},
		issuer,
		cfg.Registry.CrossBranchValue,
		logger,
	)
	registrations := registration.NewService(
		registration.NewRepository(db.Client),
		registration.NewGenerator(cfg.Registry.ReferencePrefix),
		notifier,
		registration.WithCache(registration.NewRedisReferenceCache(redisClient.Client, cfg.Registry.ReferenceCacheTTL)),
		registration.WithLogger(logger),
	)
	rosters := roster.NewService(db.Client, logger)
	passes := gatepass.NewRenderer(gatepass.Config{
		EventTitle: cfg.GatePass.EventTitle,
		EventDate:  cfg.GatePass.EventDate,
		LogoPath:   cfg.GatePass.LogoPath,
		QRPrefix:   cfg.GatePass.QRPrefix,
	})

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitStore == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin, time.Minute)
	} else {
		limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.AccessLog(logger, "/healthz", "/metrics"))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", auth.HeaderAdminUsername},
		ExposeHeaders:   []string{"Content-Disposition", httpmiddleware.HeaderRequestID},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(metrics.GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", handler.Health(db, redisClient))

	api := r.Group("", httpmiddleware.RateLimit(limiter, logger))
	handler.New(handler.Deps{
		Admins:        admins,
		Registrations: registrations,
		Rosters:       rosters,
		Passes:        passes,
		Issuer:        issuer,
		Logger:        logger,
	}).Register(api)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("port", cfg.HTTPPort),
			zap.String("notify_mode", cfg.Notify.Mode),
			zap.String("rate_limit_backend", cfg.RateLimitStore),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}

// buildNotifier picks the email transport. The returned queue is non-nil
// only for the in-memory backend, which this process must drain itself.
func buildNotifier(cfg config.App, redisClient *store.Redis, logger *zap.Logger) (notify.Notifier, *queue.InMemory) {
	switch cfg.Notify.Mode {
	case "inline":
		return notify.Inline{Sender: notify.NewMailer(notify.MailConfigFrom(cfg))}, nil
	case "queue":
		if cfg.QueueBackend == "memory" {
			q := queue.NewInMemory(256)
			return notify.NewQueued(q), q
		}
		return notify.NewQueued(queue.NewRedisQueue(redisClient.Client, notify.QueueKey)), nil
	default:
		logger.Warn("registration emails disabled")
		return notify.Disabled{}, nil
	}
}
