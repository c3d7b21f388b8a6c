package entitlement

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"blurclient/internal/localstate"
)

const (
	unlockKey    = "unlock_state"
	usageDayKey  = "usage_day"
	usageUsedKey = "usage_count"

	dayFormat = "2006-01-02"
)

// FreeDailyLimit is the number of processing calls a locked identity may
// consume per calendar day.
const FreeDailyLimit = 1

// Store owns the unlocked flag and the per-day usage counter. Both are
// durable. A single logical writer is assumed; two processes sharing the
// same state database may under- or over-count usage, which is an accepted
// limitation rather than something this store masks.
type Store struct {
	state *localstate.Store
	now   func() time.Time
}

func NewStore(state *localstate.Store) *Store {
	return &Store{state: state, now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// IsUnlocked reports whether the paid tier is active. Defaults to false
// when the flag has never been set.
func (s *Store) IsUnlocked(ctx context.Context) (bool, error) {
	value, ok, err := s.state.Get(ctx, unlockKey)
	if err != nil {
		return false, err
	}
	return ok && value == "true", nil
}

// SetUnlocked persists the unlocked flag immediately. Idempotent.
func (s *Store) SetUnlocked(ctx context.Context, unlocked bool) error {
	return s.state.Set(ctx, unlockKey, strconv.FormatBool(unlocked))
}

// TodaysUsage returns the number of processing calls consumed today. A
// stored record from an earlier day is reset to (today, 0) as a side effect.
func (s *Store) TodaysUsage(ctx context.Context) (int, error) {
	today := s.today()
	day, ok, err := s.state.Get(ctx, usageDayKey)
	if err != nil {
		return 0, err
	}
	if !ok || day != today {
		if err := s.writeUsage(ctx, today, 0); err != nil {
			return 0, err
		}
		return 0, nil
	}
	raw, _, err := s.state.Get(ctx, usageUsedKey)
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(raw)
	if err != nil || count < 0 {
		// Corrupt counter, start the day over.
		if err := s.writeUsage(ctx, today, 0); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return count, nil
}

// RecordUsage increments today's counter by one. Callers invoke it at most
// once per confirmed successful processing call; failed or aborted calls
// must not reach here.
func (s *Store) RecordUsage(ctx context.Context) error {
	count, err := s.TodaysUsage(ctx)
	if err != nil {
		return err
	}
	if err := s.writeUsage(ctx, s.today(), count+1); err != nil {
		return fmt.Errorf("entitlement: record usage: %w", err)
	}
	return nil
}

func (s *Store) writeUsage(ctx context.Context, day string, count int) error {
	if err := s.state.Set(ctx, usageDayKey, day); err != nil {
		return err
	}
	return s.state.Set(ctx, usageUsedKey, strconv.Itoa(count))
}

func (s *Store) today() string {
	return s.now().Format(dayFormat)
}
