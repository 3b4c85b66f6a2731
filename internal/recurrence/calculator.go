package recurrence

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"todoflow/internal/model"
)

// ValidationError marks a recurrence configuration that can never produce an
// occurrence. It is rejected synchronously at creation time and must not
// reach the scheduler.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid recurrence config: " + e.Reason
}

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks a config against the frequency/interval/cron invariant:
// fixed frequencies need a positive interval and no cron expression, custom
// needs a parseable 5-field cron expression.
func Validate(cfg model.RecurringTaskConfig) error {
	switch cfg.Frequency {
	case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly:
		if cfg.Interval <= 0 {
			return invalid("interval must be positive, got %d", cfg.Interval)
		}
		if cfg.CronExpression != "" {
			return invalid("cron expression is only allowed with custom frequency")
		}
	case model.FrequencyCustom:
		if cfg.CronExpression == "" {
			return invalid("custom frequency requires a cron expression")
		}
		if _, err := cron.ParseStandard(cfg.CronExpression); err != nil {
			return invalid("bad cron expression %q: %v", cfg.CronExpression, err)
		}
	default:
		return invalid("unknown frequency %q", cfg.Frequency)
	}
	return nil
}

// NextOccurrence computes the next due time strictly after from. Pure; the
// caller persists the result.
func NextOccurrence(cfg model.RecurringTaskConfig, from time.Time) (time.Time, error) {
	switch cfg.Frequency {
	case model.FrequencyDaily:
		if cfg.Interval <= 0 {
			return time.Time{}, invalid("interval must be positive, got %d", cfg.Interval)
		}
		return from.AddDate(0, 0, cfg.Interval), nil

	case model.FrequencyWeekly:
		if cfg.Interval <= 0 {
			return time.Time{}, invalid("interval must be positive, got %d", cfg.Interval)
		}
		return from.AddDate(0, 0, 7*cfg.Interval), nil

	case model.FrequencyMonthly:
		if cfg.Interval <= 0 {
			return time.Time{}, invalid("interval must be positive, got %d", cfg.Interval)
		}
		return addMonthsClamped(from, cfg.Interval), nil

	case model.FrequencyCustom:
		if cfg.CronExpression == "" {
			return time.Time{}, invalid("custom frequency requires a cron expression")
		}
		schedule, err := cron.ParseStandard(cfg.CronExpression)
		if err != nil {
			return time.Time{}, invalid("bad cron expression %q: %v", cfg.CronExpression, err)
		}
		next := schedule.Next(from)
		if next.IsZero() {
			return time.Time{}, invalid("cron expression %q never fires", cfg.CronExpression)
		}
		return next, nil

	default:
		return time.Time{}, invalid("unknown frequency %q", cfg.Frequency)
	}
}

// addMonthsClamped adds months to t, clamping the day to the last valid day
// of the target month. Jan 31 + 1 month lands on Feb 28 (29 in leap years)
// instead of overflowing into March the way time.AddDate does.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())

	if last := lastDayOfMonth(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func lastDayOfMonth(year int, month time.Month) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
