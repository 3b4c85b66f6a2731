package taskclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"todoflow/internal/model"
	"todoflow/pkg/circuitbreaker"
	"todoflow/pkg/trace"
)

// SpawnError wraps a failed spawn call against the task-owning service.
// Retryable distinguishes transient failures (network, 5xx) from permanent
// rejections (4xx), which the scheduler must not retry.
type SpawnError struct {
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *SpawnError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("spawn task failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("spawn task failed: %v", e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// SpawnRequest carries the template fields cloned onto the new task instance.
type SpawnRequest struct {
	UserID      int64  `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Priority    string `json:"priority,omitempty"`
	IsComplete  bool   `json:"is_complete"`
}

type spawnResponse struct {
	TaskID int64 `json:"task_id"`
}

// Client calls the external task-owning service. Spawn calls go through a
// circuit breaker so a down task service does not burn a whole tick on
// timeouts.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
		logger:  logger,
	}
}

// SpawnFromTemplate creates a new task instance cloned from a recurring
// config. The idempotency key is config_id + next_due_at, so a retried call
// for the same occurrence cannot create a second task.
func (c *Client) SpawnFromTemplate(ctx context.Context, cfg model.RecurringTaskConfig) (int64, error) {
	req := SpawnRequest{
		UserID:      cfg.UserID,
		Title:       cfg.Title,
		Description: cfg.Description,
		Category:    cfg.Category,
		Priority:    cfg.Priority,
		IsComplete:  false,
	}
	idempotencyKey := fmt.Sprintf("%d:%d", cfg.ID, cfg.NextDueAt.Unix())

	var taskID int64
	err := c.breaker.Execute(func() error {
		var callErr error
		taskID, callErr = c.doSpawn(ctx, req, idempotencyKey)
		return callErr
	})
	if err == circuitbreaker.ErrCircuitBreakerOpen {
		return 0, &SpawnError{Retryable: true, Err: err}
	}
	return taskID, err
}

func (c *Client) doSpawn(ctx context.Context, req SpawnRequest, idempotencyKey string) (int64, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, &SpawnError{Retryable: false, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/tasks/spawn", bytes.NewReader(body))
	if err != nil {
		return 0, &SpawnError{Retryable: false, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	if traceID := trace.FromContext(ctx); traceID != "" {
		httpReq.Header.Set(trace.HeaderName(), traceID)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, &SpawnError{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return 0, &SpawnError{StatusCode: resp.StatusCode, Retryable: true, Err: fmt.Errorf("task service unavailable")}
	}
	if resp.StatusCode >= 400 {
		return 0, &SpawnError{StatusCode: resp.StatusCode, Retryable: false, Err: fmt.Errorf("task service rejected spawn")}
	}

	var out spawnResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, &SpawnError{Retryable: false, Err: fmt.Errorf("bad spawn response: %w", err)}
	}

	c.logger.Debug("Spawned task from template",
		zap.Int64("task_id", out.TaskID),
		zap.String("idempotency_key", idempotencyKey),
	)
	return out.TaskID, nil
}
