package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"todoflow/internal/model"
	"todoflow/internal/repository"
)

type fakeConfigStore struct {
	inserted []model.RecurringTaskConfig
	byTask   map[int64]*model.RecurringTaskConfig
}

func (s *fakeConfigStore) Insert(_ context.Context, cfg *model.RecurringTaskConfig) (int64, error) {
	cfg.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, *cfg)
	return cfg.ID, nil
}

func (s *fakeConfigStore) GetByTask(_ context.Context, taskID int64) (*model.RecurringTaskConfig, error) {
	cfg, ok := s.byTask[taskID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cfg, nil
}

func (s *fakeConfigStore) Deactivate(_ context.Context, taskID int64) error {
	cfg, ok := s.byTask[taskID]
	if !ok {
		return repository.ErrNotFound
	}
	cfg.IsActive = false
	return nil
}

func (s *fakeConfigStore) DeleteByTask(_ context.Context, taskID int64) error {
	if _, ok := s.byTask[taskID]; !ok {
		return repository.ErrNotFound
	}
	delete(s.byTask, taskID)
	return nil
}

type fakeReminderStore struct {
	inserted []model.TaskReminder
	byID     map[int64]*model.TaskReminder
}

func (s *fakeReminderStore) Insert(_ context.Context, rem *model.TaskReminder) (int64, error) {
	rem.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, *rem)
	return rem.ID, nil
}

func (s *fakeReminderStore) GetByID(_ context.Context, id int64) (*model.TaskReminder, error) {
	rem, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rem, nil
}

func (s *fakeReminderStore) ListByTask(_ context.Context, taskID int64) ([]model.TaskReminder, error) {
	var out []model.TaskReminder
	for _, rem := range s.byID {
		if rem.TaskID == taskID {
			out = append(out, *rem)
		}
	}
	return out, nil
}

func (s *fakeReminderStore) Delete(_ context.Context, id int64) error {
	if _, ok := s.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *fakeReminderStore) DeleteByTask(_ context.Context, taskID int64) (int64, error) {
	var deleted int64
	for id, rem := range s.byID {
		if rem.TaskID == taskID {
			delete(s.byID, id)
			deleted++
		}
	}
	return deleted, nil
}

func newTestRouter(configs *fakeConfigStore, reminders *fakeReminderStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewSchedulingHandler(configs, reminders, zap.NewNop())

	r := gin.New()
	r.POST("/recurring-configs", h.CreateRecurringConfig)
	r.GET("/recurring-configs/:taskID", h.GetRecurringConfig)
	r.POST("/recurring-configs/:taskID/deactivate", h.DeactivateRecurringConfig)
	r.DELETE("/recurring-configs/:taskID", h.DeleteRecurringConfig)
	r.POST("/reminders", h.CreateReminder)
	r.GET("/reminders/:id", h.GetReminder)
	r.DELETE("/reminders/:id", h.DeleteReminder)
	r.GET("/tasks/:taskID/reminders", h.ListReminders)
	r.DELETE("/tasks/:taskID/reminders", h.DeleteTaskReminders)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateRecurringConfig_RejectsInvalidRecurrence(t *testing.T) {
	r := newTestRouter(&fakeConfigStore{}, &fakeReminderStore{})

	cases := []struct {
		name string
		body map[string]any
	}{
		{"daily without interval", map[string]any{
			"task_id": 1, "user_id": 1, "title": "t", "frequency": "daily",
		}},
		{"daily with cron", map[string]any{
			"task_id": 1, "user_id": 1, "title": "t", "frequency": "daily",
			"interval": 1, "cron_expression": "* * * * *",
		}},
		{"custom with bad cron", map[string]any{
			"task_id": 1, "user_id": 1, "title": "t", "frequency": "custom",
			"cron_expression": "not a cron",
		}},
		{"unknown frequency", map[string]any{
			"task_id": 1, "user_id": 1, "title": "t", "frequency": "fortnightly",
			"interval": 1,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/recurring-configs", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestCreateRecurringConfig_ComputesNextDueWhenAbsent(t *testing.T) {
	configs := &fakeConfigStore{}
	r := newTestRouter(configs, &fakeReminderStore{})

	before := time.Now()
	w := doJSON(t, r, http.MethodPost, "/recurring-configs", map[string]any{
		"task_id": 1, "user_id": 2, "title": "water the plants",
		"frequency": "daily", "interval": 1,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	require.Len(t, configs.inserted, 1)
	got := configs.inserted[0].NextDueAt
	assert.True(t, got.After(before), "computed next_due_at must be in the future")
	assert.WithinDuration(t, before.AddDate(0, 0, 1), got, time.Minute,
		"daily interval 1 schedules one day out")
}

func TestCreateRecurringConfig_RejectsPastNextDue(t *testing.T) {
	configs := &fakeConfigStore{}
	r := newTestRouter(configs, &fakeReminderStore{})

	past := time.Now().Add(-time.Hour)
	w := doJSON(t, r, http.MethodPost, "/recurring-configs", map[string]any{
		"task_id": 1, "user_id": 2, "title": "t",
		"frequency": "weekly", "interval": 2, "next_due_at": past,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, configs.inserted)
}

func TestGetRecurringConfig_NotFound(t *testing.T) {
	r := newTestRouter(&fakeConfigStore{byTask: map[int64]*model.RecurringTaskConfig{}}, &fakeReminderStore{})

	w := doJSON(t, r, http.MethodGet, "/recurring-configs/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateReminder_RejectsUnknownNotificationType(t *testing.T) {
	reminders := &fakeReminderStore{}
	r := newTestRouter(&fakeConfigStore{}, reminders)

	w := doJSON(t, r, http.MethodPost, "/reminders", map[string]any{
		"task_id": 1, "user_id": 2,
		"remind_at":         time.Now().Add(time.Hour),
		"notification_type": "carrier_pigeon",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, reminders.inserted)
}

func TestGetReminder(t *testing.T) {
	remindAt := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	reminders := &fakeReminderStore{byID: map[int64]*model.TaskReminder{
		5: {ID: 5, TaskID: 50, UserID: 2, RemindAt: remindAt, NotificationType: model.NotificationPush},
	}}
	r := newTestRouter(&fakeConfigStore{}, reminders)

	w := doJSON(t, r, http.MethodGet, "/reminders/5", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got model.TaskReminder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(5), got.ID)
	assert.Equal(t, model.NotificationPush, got.NotificationType)

	w = doJSON(t, r, http.MethodGet, "/reminders/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteTaskReminders_ReportsCount(t *testing.T) {
	reminders := &fakeReminderStore{byID: map[int64]*model.TaskReminder{
		1: {ID: 1, TaskID: 10},
		2: {ID: 2, TaskID: 10},
		3: {ID: 3, TaskID: 20},
	}}
	r := newTestRouter(&fakeConfigStore{}, reminders)

	w := doJSON(t, r, http.MethodDelete, "/tasks/10/reminders", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp["deleted"])
	assert.Len(t, reminders.byID, 1)
}
