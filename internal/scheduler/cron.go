package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/Stepflow/internal/domain"
)

// ErrInvalidSchedule — schedule задан некорректно.
var ErrInvalidSchedule = errors.New("invalid schedule")

// MinIntervalSec — минимальный интервал между запусками.
const MinIntervalSec = 10

// cronParser — парсер cron-выражений (5 полей, дескрипторы вида @hourly).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CalculateNextDue вычисляет следующее время выполнения после from.
// Cron-выражение вычисляется в timezone schedule, результат — в UTC.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc, err := loadLocation(sched.Timezone)
	if err != nil {
		return time.Time{}, err
	}

	switch {
	case sched.IsCron():
		parsed, err := cronParser.Parse(sched.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: cron expression %q: %v", ErrInvalidSchedule, sched.CronExpr, err)
		}
		return parsed.Next(from.In(loc)).UTC(), nil

	case sched.IsInterval():
		return from.Add(time.Duration(sched.IntervalSec) * time.Second).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w: neither cron_expr nor interval_sec is set", ErrInvalidSchedule)
}

// ValidateCronExpr проверяет cron-выражение.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("%w: cron expression %q: %v", ErrInvalidSchedule, cronExpr, err)
	}
	return nil
}

// Validate проверяет schedule перед сохранением: ровно одно из
// cron_expr и interval_sec, допустимый интервал и timezone.
func Validate(sched *domain.Schedule) error {
	hasCron := sched.CronExpr != ""
	hasInterval := sched.IntervalSec != 0

	switch {
	case hasCron && hasInterval:
		return fmt.Errorf("%w: cron_expr and interval_sec are mutually exclusive", ErrInvalidSchedule)
	case !hasCron && !hasInterval:
		return fmt.Errorf("%w: cron_expr or interval_sec is required", ErrInvalidSchedule)
	case hasInterval && sched.IntervalSec < MinIntervalSec:
		return fmt.Errorf("%w: interval_sec must be at least %d", ErrInvalidSchedule, MinIntervalSec)
	case hasCron:
		if err := ValidateCronExpr(sched.CronExpr); err != nil {
			return err
		}
	}

	_, err := loadLocation(sched.Timezone)
	return err
}

// CalculateInitialNextDue вычисляет первое время выполнения нового schedule.
func CalculateInitialNextDue(sched *domain.Schedule, now time.Time) (time.Time, error) {
	return CalculateNextDue(sched, now)
}

// loadLocation загружает timezone; пустая строка — UTC.
func loadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q", ErrInvalidSchedule, tz)
	}
	return loc, nil
}
