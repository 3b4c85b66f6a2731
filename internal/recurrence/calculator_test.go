package recurrence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todoflow/internal/model"
)

func fixedCfg(frequency string, interval int) model.RecurringTaskConfig {
	return model.RecurringTaskConfig{Frequency: frequency, Interval: interval}
}

func cronCfg(expr string) model.RecurringTaskConfig {
	return model.RecurringTaskConfig{Frequency: model.FrequencyCustom, CronExpression: expr}
}

func TestNextOccurrence_Daily(t *testing.T) {
	from := time.Date(2024, time.March, 10, 15, 30, 0, 0, time.UTC)

	next, err := NextOccurrence(fixedCfg(model.FrequencyDaily, 1), from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 11, 15, 30, 0, 0, time.UTC), next)

	next, err = NextOccurrence(fixedCfg(model.FrequencyDaily, 3), from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 13, 15, 30, 0, 0, time.UTC), next)
}

func TestNextOccurrence_Weekly(t *testing.T) {
	from := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)

	next, err := NextOccurrence(fixedCfg(model.FrequencyWeekly, 2), from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 24, 9, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrence_MonthlyClampsToMonthEnd(t *testing.T) {
	t.Run("Jan 31 plus one month lands on Feb 28", func(t *testing.T) {
		from := time.Date(2023, time.January, 31, 10, 0, 0, 0, time.UTC)
		next, err := NextOccurrence(fixedCfg(model.FrequencyMonthly, 1), from)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2023, time.February, 28, 10, 0, 0, 0, time.UTC), next)
	})

	t.Run("leap year keeps Feb 29", func(t *testing.T) {
		from := time.Date(2024, time.January, 31, 10, 0, 0, 0, time.UTC)
		next, err := NextOccurrence(fixedCfg(model.FrequencyMonthly, 1), from)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.February, 29, 10, 0, 0, 0, time.UTC), next)
	})

	t.Run("mid-month day is untouched", func(t *testing.T) {
		from := time.Date(2024, time.April, 15, 8, 45, 0, 0, time.UTC)
		next, err := NextOccurrence(fixedCfg(model.FrequencyMonthly, 2), from)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.June, 15, 8, 45, 0, 0, time.UTC), next)
	})

	t.Run("clamp across year boundary", func(t *testing.T) {
		from := time.Date(2023, time.December, 31, 23, 0, 0, 0, time.UTC)
		next, err := NextOccurrence(fixedCfg(model.FrequencyMonthly, 2), from)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.February, 29, 23, 0, 0, 0, time.UTC), next)
	})
}

func TestNextOccurrence_Cron(t *testing.T) {
	t.Run("weekday expression skips the current day after the fire time", func(t *testing.T) {
		// Monday 2024-03-11 09:05, schedule fires Mondays at 09:00
		from := time.Date(2024, time.March, 11, 9, 5, 0, 0, time.UTC)
		next, err := NextOccurrence(cronCfg("0 9 * * MON"), from)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.March, 18, 9, 0, 0, 0, time.UTC), next)
	})

	t.Run("result is strictly after from even at the exact fire instant", func(t *testing.T) {
		from := time.Date(2024, time.March, 11, 9, 0, 0, 0, time.UTC)
		next, err := NextOccurrence(cronCfg("0 9 * * MON"), from)
		require.NoError(t, err)
		assert.True(t, next.After(from))
	})

	t.Run("every five minutes", func(t *testing.T) {
		from := time.Date(2024, time.March, 11, 9, 2, 0, 0, time.UTC)
		next, err := NextOccurrence(cronCfg("*/5 * * * *"), from)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.March, 11, 9, 5, 0, 0, time.UTC), next)
	})
}

func TestNextOccurrence_StrictlyAfterFrom(t *testing.T) {
	from := time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)

	cases := []model.RecurringTaskConfig{
		fixedCfg(model.FrequencyDaily, 1),
		fixedCfg(model.FrequencyWeekly, 1),
		fixedCfg(model.FrequencyMonthly, 1),
		fixedCfg(model.FrequencyMonthly, 12),
		cronCfg("0 0 1 * *"),
		cronCfg("30 6 * * *"),
	}
	for _, cfg := range cases {
		next, err := NextOccurrence(cfg, from)
		require.NoError(t, err)
		assert.True(t, next.After(from), "frequency=%s interval=%d cron=%q", cfg.Frequency, cfg.Interval, cfg.CronExpression)
	}
}

func TestNextOccurrence_ValidationErrors(t *testing.T) {
	from := time.Now()

	cases := []struct {
		name string
		cfg  model.RecurringTaskConfig
	}{
		{"zero interval", fixedCfg(model.FrequencyDaily, 0)},
		{"negative interval", fixedCfg(model.FrequencyWeekly, -2)},
		{"custom without expression", model.RecurringTaskConfig{Frequency: model.FrequencyCustom}},
		{"malformed cron", cronCfg("not a cron")},
		{"cron with too many fields", cronCfg("0 0 * * * *")},
		{"unknown frequency", fixedCfg("fortnightly", 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NextOccurrence(tc.cfg, from)
			require.Error(t, err)

			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "expected ValidationError, got %T", err)
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(fixedCfg(model.FrequencyDaily, 1)))
	assert.NoError(t, Validate(cronCfg("0 9 * * MON")))

	t.Run("fixed frequency rejects cron expression", func(t *testing.T) {
		cfg := fixedCfg(model.FrequencyDaily, 1)
		cfg.CronExpression = "0 9 * * *"
		assert.Error(t, Validate(cfg))
	})

	t.Run("interval must be positive", func(t *testing.T) {
		assert.Error(t, Validate(fixedCfg(model.FrequencyMonthly, 0)))
	})

	t.Run("custom requires parseable expression", func(t *testing.T) {
		assert.Error(t, Validate(cronCfg("99 99 * * *")))
	})
}
