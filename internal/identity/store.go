package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"blurclient/internal/localstate"
)

const userIDKey = "user_id"

// Store owns the durable anonymous identifier for this device profile. The
// identifier is generated once and never regenerated while a value exists.
type Store struct {
	state *localstate.Store
}

func NewStore(state *localstate.Store) *Store {
	return &Store{state: state}
}

// Ensure returns the existing identifier, creating and persisting a fresh
// one on first use. Idempotent.
func (s *Store) Ensure(ctx context.Context) (string, error) {
	existing, ok, err := s.state.Get(ctx, userIDKey)
	if err != nil {
		return "", err
	}
	if ok && existing != "" {
		return existing, nil
	}
	id := uuid.NewString()
	if err := s.state.Set(ctx, userIDKey, id); err != nil {
		return "", fmt.Errorf("identity: persist user id: %w", err)
	}
	return id, nil
}

// Current returns the stored identifier, or the empty string when the
// identity has never been initialized.
func (s *Store) Current(ctx context.Context) (string, error) {
	id, _, err := s.state.Get(ctx, userIDKey)
	return id, err
}
