package scheduler

import (
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestNextFire_Daily(t *testing.T) {
	sched := domain.ScheduleTrigger{Cron: "0 3 * * *"}
	from := time.Date(2026, 8, 20, 1, 0, 0, 0, time.UTC)

	next, err := NextFire(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := time.Date(2026, 8, 20, 3, 0, 0, 0, time.UTC)
	if !next.Equal(expected) {
		t.Errorf("expected %v, got %v", expected, next)
	}
}

func TestNextFire_AfterTodaysSlot(t *testing.T) {
	sched := domain.ScheduleTrigger{Cron: "0 3 * * *"}
	from := time.Date(2026, 8, 20, 4, 0, 0, 0, time.UTC)

	next, err := NextFire(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := time.Date(2026, 8, 21, 3, 0, 0, 0, time.UTC)
	if !next.Equal(expected) {
		t.Errorf("expected %v, got %v", expected, next)
	}
}

func TestNextFire_EveryFifteenMinutes(t *testing.T) {
	sched := domain.ScheduleTrigger{Cron: "*/15 * * * *"}
	from := time.Date(2026, 8, 20, 10, 7, 0, 0, time.UTC)

	next, err := NextFire(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := time.Date(2026, 8, 20, 10, 15, 0, 0, time.UTC)
	if !next.Equal(expected) {
		t.Errorf("expected %v, got %v", expected, next)
	}
}

func TestNextFire_Timezone(t *testing.T) {
	// 03:00 по Москве — 00:00 UTC
	sched := domain.ScheduleTrigger{Cron: "0 3 * * *", Timezone: "Europe/Moscow"}
	from := time.Date(2026, 8, 19, 22, 0, 0, 0, time.UTC)

	next, err := NextFire(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	if !next.Equal(expected) {
		t.Errorf("expected %v, got %v", expected, next)
	}
	if next.Location() != time.UTC {
		t.Error("NextFire should return UTC")
	}
}

func TestNextFire_InvalidTimezoneFallsBackToUTC(t *testing.T) {
	sched := domain.ScheduleTrigger{Cron: "0 3 * * *", Timezone: "Mars/Olympus"}
	from := time.Date(2026, 8, 20, 1, 0, 0, 0, time.UTC)

	next, err := NextFire(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := time.Date(2026, 8, 20, 3, 0, 0, 0, time.UTC)
	if !next.Equal(expected) {
		t.Errorf("expected UTC fallback %v, got %v", expected, next)
	}
}

func TestNextFire_InvalidCron(t *testing.T) {
	sched := domain.ScheduleTrigger{Cron: "not a cron"}

	if _, err := NextFire(sched, time.Now()); err == nil {
		t.Error("expected error for invalid cron")
	}
}

func TestValidateCron(t *testing.T) {
	valid := []string{"0 3 * * *", "*/15 * * * *", "30 6 1 * *", "0 0 * * 1-5"}
	for _, expr := range valid {
		if err := ValidateCron(expr); err != nil {
			t.Errorf("%q should be valid: %v", expr, err)
		}
	}

	invalid := []string{"", "* * *", "61 * * * *", "0 3 * * * *"}
	for _, expr := range invalid {
		if err := ValidateCron(expr); err == nil {
			t.Errorf("%q should be invalid", expr)
		}
	}
}
