// Package main runs the background job worker: webhook deliveries, email
// sends and the nightly purge of long-tombstoned rows.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trackline/backend/config"
	"github.com/trackline/backend/internal/webhooks"
	"github.com/trackline/backend/internal/worker"
	"github.com/trackline/backend/pkg/database"
	"github.com/trackline/backend/pkg/mailer"
	"github.com/trackline/backend/pkg/queue"
	"github.com/trackline/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jobQueue := queue.NewQueue(rdb.Client, logger)
	webhookRepo := webhooks.NewRepository(pool)
	deliverer := webhooks.NewDeliverer(webhookRepo, logger)
	mail := mailer.New(mailer.Config{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUser,
		Password: cfg.Email.SMTPPass,
		From:     cfg.Email.FromAddress,
	}, logger)

	w := worker.New(jobQueue, deliverer, mail, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.Run(workerCtx)
	logger.Info("worker started")

	// Nightly hard delete of rows soft-deleted past retention.
	purger := worker.NewPurger(pool, logger)
	scheduler := cron.New()
	if err := purger.Schedule(scheduler); err != nil {
		logger.Fatal("schedule purge", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
