package entitlement

import (
	"context"
	"testing"
	"time"

	"blurclient/internal/localstate"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	state, err := localstate.Open(":memory:")
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	t.Cleanup(func() { state.Close() })
	return NewStore(state)
}

func TestUnlockedDefaultsFalse(t *testing.T) {
	store := newTestStore(t)

	unlocked, err := store.IsUnlocked(context.Background())
	if err != nil {
		t.Fatalf("is unlocked: %v", err)
	}
	if unlocked {
		t.Fatalf("expected locked by default")
	}
}

func TestSetUnlockedPersists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetUnlocked(ctx, true); err != nil {
		t.Fatalf("set unlocked: %v", err)
	}
	unlocked, err := store.IsUnlocked(ctx)
	if err != nil {
		t.Fatalf("is unlocked: %v", err)
	}
	if !unlocked {
		t.Fatalf("expected unlocked after set")
	}
}

func TestTodaysUsageStartsAtZero(t *testing.T) {
	store := newTestStore(t)

	count, err := store.TodaysUsage(context.Background())
	if err != nil {
		t.Fatalf("todays usage: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
}

func TestRecordUsageIncrements(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.RecordUsage(ctx); err != nil {
		t.Fatalf("record usage: %v", err)
	}
	count, err := store.TodaysUsage(ctx)
	if err != nil {
		t.Fatalf("todays usage: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	if err := store.RecordUsage(ctx); err != nil {
		t.Fatalf("record usage again: %v", err)
	}
	count, err = store.TodaysUsage(ctx)
	if err != nil {
		t.Fatalf("todays usage: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestDayRolloverResetsCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC)
	store.WithClock(func() time.Time { return day })

	if err := store.RecordUsage(ctx); err != nil {
		t.Fatalf("record usage: %v", err)
	}
	count, err := store.TodaysUsage(ctx)
	if err != nil {
		t.Fatalf("todays usage: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	// Next calendar day: the stale record resets to zero.
	store.WithClock(func() time.Time { return day.Add(4 * time.Hour) })
	count, err = store.TodaysUsage(ctx)
	if err != nil {
		t.Fatalf("todays usage after rollover: %v", err)
	}
	if count != 0 {
		t.Fatalf("count after rollover = %d, want 0", count)
	}

	// A fresh success the new day counts from scratch.
	if err := store.RecordUsage(ctx); err != nil {
		t.Fatalf("record usage after rollover: %v", err)
	}
	count, err = store.TodaysUsage(ctx)
	if err != nil {
		t.Fatalf("todays usage: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestCorruptCounterResets(t *testing.T) {
	state, err := localstate.Open(":memory:")
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	t.Cleanup(func() { state.Close() })
	store := NewStore(state)
	ctx := context.Background()

	today := time.Now().Format("2006-01-02")
	if err := state.Set(ctx, "usage_day", today); err != nil {
		t.Fatalf("seed day: %v", err)
	}
	if err := state.Set(ctx, "usage_count", "not-a-number"); err != nil {
		t.Fatalf("seed count: %v", err)
	}

	count, err := store.TodaysUsage(ctx)
	if err != nil {
		t.Fatalf("todays usage: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0 after corrupt record", count)
	}
}
