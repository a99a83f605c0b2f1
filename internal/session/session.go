package session

import (
	"context"
	"errors"

	"wb-margin-bot/internal/dialog"
)

// ErrNotFound means the user has no stored dialogue. Callers treat it as idle.
var ErrNotFound = errors.New("session not found")

type Store interface {
	Load(ctx context.Context, userID int64) (dialog.State, error)
	Save(ctx context.Context, userID int64, st dialog.State) error
	Clear(ctx context.Context, userID int64) error
}

// LoadOrIdle returns the stored state, or an idle one when nothing is stored.
func LoadOrIdle(ctx context.Context, s Store, userID int64) (dialog.State, error) {
	st, err := s.Load(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return dialog.State{Step: dialog.StepIdle}, nil
	}
	return st, err
}
