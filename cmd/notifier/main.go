package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	mqcontracts "todoflow/contracts/mq"
	"todoflow/internal/config"
	"todoflow/internal/dispatcher"
	"todoflow/internal/httpserver"
	"todoflow/internal/repository"
	"todoflow/internal/store"
	"todoflow/pkg/db"
	"todoflow/pkg/logger"
	"todoflow/pkg/mq"
	"todoflow/pkg/redis"
)

const consumerGroup = "notifier"

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting notifier service...",
		zap.String("mq_url", cfg.MQ.URL),
		zap.Int("max_attempts", cfg.Dispatcher.MaxAttempts),
		zap.Duration("retry_base_delay", cfg.Dispatcher.RetryBaseDelay),
	)

	// DB (in-app notification storage)
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis-backed state store (delivery records)
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	st := store.NewRedis(rdb)

	// MQ publisher (audit events) and consumer (reminders topic)
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	consumer, err := mq.NewConsumer(cfg.MQ.URL, mqcontracts.TopicReminders, consumerGroup, log)
	if err != nil {
		log.Fatal("Failed to init MQ consumer", zap.Error(err))
	}
	defer consumer.Close()

	// Channel adapters
	notificationRepo := repository.NewNotificationRepository(dbConn, log)
	disp := dispatcher.New(
		st,
		publisher,
		log,
		dispatcher.Config{
			MaxAttempts:    cfg.Dispatcher.MaxAttempts,
			RetryBaseDelay: cfg.Dispatcher.RetryBaseDelay,
			RetryMaxDelay:  cfg.Dispatcher.RetryMaxDelay,
			RecordTTL:      cfg.Dispatcher.RecordTTL,
		},
		dispatcher.NewInAppChannel(notificationRepo, log),
		dispatcher.NewEmailChannel(log),
		dispatcher.NewPushChannel(log),
	)

	consumer.SetHandler(disp.HandleReminderDue)
	go func() {
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("Consumer failed", zap.Error(err))
		}
	}()

	// HTTP server: health + metrics only
	router := httpserver.NewRouter(log, dbConn, consumer, nil)

	port := cfg.Server.Port
	if port == "" {
		port = "8086"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("notifier service is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notifier service gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	consumer.Close()
	publisher.Close()
	dbConn.Close()

	log.Info("notifier service shutdown complete")
}
