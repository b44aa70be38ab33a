package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"gradportal/internal/config"
	"gradportal/internal/logging"
	"gradportal/internal/notify"
	"gradportal/internal/queue"
	"gradportal/internal/store"
)

// Worker drains queued registration emails and sends them over SMTP.
func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "gradportal-worker")
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" {
		logger.Fatal("worker needs the redis queue backend; the in-memory queue is drained by the api process")
	}
	if !cfg.Notify.SMTPConfigured() {
		logger.Fatal("SMTP credentials not configured (SMTP_USER / SMTP_PASS)")
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	q := queue.NewRedisQueue(redisClient.Client, notify.QueueKey)
	worker := notify.NewWorker(q, notify.NewMailer(notify.MailConfigFrom(cfg)), cfg.Notify.MaxAttempts, logger)

	logger.Info("worker started, waiting for messages",
		zap.String("queue", notify.QueueKey),
		zap.Int("max_attempts", cfg.Notify.MaxAttempts),
	)
	if err := worker.Run(ctx); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
		return
	}
	logger.Info("worker stopped")
}
