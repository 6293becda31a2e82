package server

import (
	"context"
	"testing"
	"time"
)

func TestJanitorDue(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)

	j := &Janitor{Cron: "0 * * * *"}
	j.last = base
	if j.due(base.Add(20 * time.Minute)) {
		t.Fatal("due before the hour boundary")
	}
	if !j.due(base.Add(31 * time.Minute)) {
		t.Fatal("not due after the hour boundary")
	}
	// The marker advanced, so the same boundary does not fire twice.
	if j.due(base.Add(32 * time.Minute)) {
		t.Fatal("fired twice for one boundary")
	}
}

func TestJanitorDueDefaultsAndFallback(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)

	// Empty spec means hourly.
	j := &Janitor{}
	j.last = base
	if !j.due(base.Add(31 * time.Minute)) {
		t.Fatal("default schedule did not fire on the hour")
	}

	// Garbage degrades to an hourly interval instead of never firing.
	j = &Janitor{Cron: "not a cron"}
	j.last = base
	if j.due(base.Add(30 * time.Minute)) {
		t.Fatal("fallback fired early")
	}
	if !j.due(base.Add(61 * time.Minute)) {
		t.Fatal("fallback never fired")
	}
}

func TestJanitorSweepWithoutRedis(t *testing.T) {
	// No redis and no engine: the sweep is a no-op, not a panic.
	j := &Janitor{}
	j.sweep(context.Background())
}
