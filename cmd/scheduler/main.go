package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"todoflow/internal/config"
	"todoflow/internal/handler"
	"todoflow/internal/httpserver"
	"todoflow/internal/repository"
	"todoflow/internal/scheduler"
	"todoflow/internal/store"
	"todoflow/internal/taskclient"
	"todoflow/pkg/db"
	"todoflow/pkg/logger"
	"todoflow/pkg/mq"
	"todoflow/pkg/redis"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting scheduler service...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("mq_url", cfg.MQ.URL),
		zap.Duration("recurring_interval", cfg.Scheduler.RecurringInterval),
		zap.Duration("reminder_interval", cfg.Scheduler.ReminderInterval),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis-backed state store
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	st := store.NewRedis(rdb)

	// MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories
	configRepo := repository.NewRecurringConfigRepository(dbConn, log)
	reminderRepo := repository.NewReminderRepository(dbConn, log)

	// External task service client
	spawner := taskclient.NewClient(cfg.TaskService.URL, cfg.TaskService.Timeout, log)

	// Schedulers
	recurring := scheduler.NewRecurring(
		configRepo,
		spawner,
		publisher,
		st,
		log,
		cfg.Scheduler.RecurringInterval,
		cfg.Scheduler.ClaimTTL,
		cfg.Scheduler.SpawnMaxAttempts,
	)
	reminder := scheduler.NewReminder(
		reminderRepo,
		publisher,
		log,
		cfg.Scheduler.ReminderInterval,
	)

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()

	go recurring.Start(schedCtx)
	go reminder.Start(schedCtx)

	// HTTP server: data API for the task service + health + metrics
	schedHandler := handler.NewSchedulingHandler(configRepo, reminderRepo, log)
	router := httpserver.NewRouter(log, dbConn, publisher, schedHandler)

	port := cfg.Server.Port
	if port == "" {
		port = "8085"
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

	log.Info("scheduler service is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down scheduler service gracefully...")

	// Stop the tick loops; claims held by a dying worker expire by TTL
	schedCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	publisher.Close()
	dbConn.Close()

	log.Info("scheduler service shutdown complete")
}
