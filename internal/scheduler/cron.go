package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/Conveyor/internal/domain"
)

// cronParser — парсер пятипольных cron-выражений.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextFire вычисляет первое срабатывание триггера после from.
// Учитывает timezone триггера; невалидный timezone — UTC.
func NextFire(sched domain.ScheduleTrigger, from time.Time) (time.Time, error) {
	loc := time.UTC
	if sched.Timezone != "" {
		if parsed, err := time.LoadLocation(sched.Timezone); err == nil {
			loc = parsed
		}
	}

	schedule, err := cronParser.Parse(sched.Cron)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", sched.Cron, err)
	}

	return schedule.Next(from.In(loc)).UTC(), nil
}

// ValidateCron проверяет валидность cron-выражения.
// Используется при регистрации pipeline.
func ValidateCron(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}
