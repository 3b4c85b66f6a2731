package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"todoflow/internal/handler"
)

// MQChecker reports whether the MQ connection is still alive. Satisfied by
// both mq.Publisher and mq.Consumer.
type MQChecker interface {
	IsConnected() bool
}

// NewRouter builds the shared service router: request logging, health and
// readiness probes, prometheus metrics. schedHandler may be nil for services
// that expose no data API (the notifier).
func NewRouter(logger *zap.Logger, db *pgxpool.Pool, mqCheck MQChecker, schedHandler *handler.SchedulingHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// 请求日志中间件
	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		logger.Info("HTTP Request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
				return
			}
		}

		if mqCheck != nil && !mqCheck.IsConnected() {
			c.JSON(500, gin.H{"status": "mq_not_ready"})
			return
		}

		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if schedHandler != nil {
		r.POST("/recurring-configs", schedHandler.CreateRecurringConfig)
		r.GET("/recurring-configs/:taskID", schedHandler.GetRecurringConfig)
		r.POST("/recurring-configs/:taskID/deactivate", schedHandler.DeactivateRecurringConfig)
		r.DELETE("/recurring-configs/:taskID", schedHandler.DeleteRecurringConfig)
		r.POST("/reminders", schedHandler.CreateReminder)
		r.GET("/reminders/:id", schedHandler.GetReminder)
		r.DELETE("/reminders/:id", schedHandler.DeleteReminder)
		r.GET("/tasks/:taskID/reminders", schedHandler.ListReminders)
		r.DELETE("/tasks/:taskID/reminders", schedHandler.DeleteTaskReminders)
	}

	return r
}
