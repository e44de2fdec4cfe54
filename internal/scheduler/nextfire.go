package scheduler

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cronbox/cronbox-core/internal/domain"
)

// computeNextInTimezone parses cronExpr as a standard 5-field expression,
// evaluates it against now converted into timezone, and returns the result
// converted back to UTC. This is the only place in the package that
// reinterprets an instant through a named zone — every deadline computed
// downstream of a next-fire time is pure duration arithmetic on the UTC
// value this returns, never a second trip through time.LoadLocation (§9).
func computeNextInTimezone(cronExpr, timezone string, now time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return sched.Next(now.In(loc)).UTC(), nil
}

// nextExactTime returns the next occurrence (today or tomorrow) of an
// "HH:MM" wall-clock time in timezone, converted back to UTC.
func nextExactTime(hhmm, timezone string, now time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid exact_time %q, expected HH:MM", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid exact_time hour %q: %w", hhmm, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid exact_time minute %q: %w", hhmm, err)
	}

	localNow := now.In(loc)
	candidate := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), hour, minute, 0, 0, loc)
	if !candidate.After(localNow) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate.UTC(), nil
}

// newCronTaskNextFire returns the computeNext callback CronTaskRepository's
// ClaimDue and RecomputeMissingNextRunAt invoke. A parse failure can only
// happen if a row's cron_expr was corrupted after validation at creation
// time; rather than wedge the row forever it logs and defers an hour,
// mirroring the teacher's Dispatcher.computeNext fallback.
func newCronTaskNextFire(logger *slog.Logger) func(*domain.CronTask) time.Time {
	return func(t *domain.CronTask) time.Time {
		next, err := computeNextInTimezone(t.CronExpr, t.Timezone, time.Now().UTC())
		if err != nil {
			logger.Error("cron task next-fire computation failed", "cron_task_id", t.ID, "error", err)
			return time.Now().UTC().Add(time.Hour)
		}
		return next
	}
}

// newChainNextFire is the TaskChain equivalent, used only when
// TriggerType == ChainTriggerCron.
func newChainNextFire(logger *slog.Logger) func(*domain.TaskChain) time.Time {
	return func(c *domain.TaskChain) time.Time {
		next, err := computeNextInTimezone(c.CronExpr, c.Timezone, time.Now().UTC())
		if err != nil {
			logger.Error("chain next-fire computation failed", "chain_id", c.ID, "error", err)
			return time.Now().UTC().Add(time.Hour)
		}
		return next
	}
}

// newProcessMonitorNextExpectedStart computes when a ProcessMonitor's next
// start ping should arrive, branching on its schedule type (§4.8).
func newProcessMonitorNextExpectedStart(logger *slog.Logger) func(*domain.ProcessMonitor) time.Time {
	return func(m *domain.ProcessMonitor) time.Time {
		now := time.Now().UTC()
		switch m.ScheduleType {
		case domain.MonitorScheduleCron:
			next, err := computeNextInTimezone(m.CronExpr, m.Timezone, now)
			if err != nil {
				logger.Error("process monitor cron next-fire failed", "monitor_id", m.ID, "error", err)
				return now.Add(time.Hour)
			}
			return next
		case domain.MonitorScheduleInterval:
			return now.Add(m.Interval)
		case domain.MonitorScheduleExactTime:
			next, err := nextExactTime(m.ExactTime, m.Timezone, now)
			if err != nil {
				logger.Error("process monitor exact-time next-fire failed", "monitor_id", m.ID, "error", err)
				return now.Add(24 * time.Hour)
			}
			return next
		default:
			logger.Error("process monitor has unknown schedule type", "monitor_id", m.ID, "schedule_type", m.ScheduleType)
			return now.Add(time.Hour)
		}
	}
}
