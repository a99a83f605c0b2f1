package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wb-margin-bot/internal/margin"
	"wb-margin-bot/internal/storage"
)

var ErrQuotaExceeded = errors.New("free calculations are used up")

type Repository interface {
	UpsertUser(ctx context.Context, u storage.User) error
	GetUser(ctx context.Context, id int64) (storage.User, error)
	SaveCalculation(ctx context.Context, rec margin.Record) (int64, error)
	SetSubscription(ctx context.Context, userID int64, until time.Time) error
}

type Decision struct {
	Allowed   bool
	Remaining int
	// Unlimited means an active subscription; Remaining is meaningless then.
	Unlimited bool
}

type Status struct {
	User      storage.User
	Decision  Decision
	FreeLimit int
}

type Service struct {
	repo      Repository
	freeLimit int
	now       func() time.Time
}

func NewService(repo Repository, freeLimit int) *Service {
	return &Service{
		repo:      repo,
		freeLimit: freeLimit,
		now:       time.Now,
	}
}

// EnsureUser records the Telegram user, refreshing the names on every call.
func (s *Service) EnsureUser(ctx context.Context, id int64, username, firstName string) error {
	if err := s.repo.UpsertUser(ctx, storage.User{ID: id, Username: username, FirstName: firstName}); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// CanCalculate checks whether the user may start a calculation. A refusal is returned as a
// Decision with Allowed false together with ErrQuotaExceeded.
func (s *Service) CanCalculate(ctx context.Context, userID int64) (Decision, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return Decision{}, err
	}

	d := s.decide(u)
	if !d.Allowed {
		return d, ErrQuotaExceeded
	}
	return d, nil
}

// RecordCalculation persists the result and counts it against the free quota.
func (s *Service) RecordCalculation(ctx context.Context, userID int64, r margin.Result) error {
	if _, err := s.repo.SaveCalculation(ctx, margin.NewRecord(userID, r, s.now())); err != nil {
		return fmt.Errorf("record calculation: %w", err)
	}
	return nil
}

// ActivateSubscription extends the subscription by days, starting from the later of now and the
// current expiry. It returns the new expiry.
func (s *Service) ActivateSubscription(ctx context.Context, userID int64, days int) (time.Time, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}

	start := s.now()
	if u.HasSubscription(start) {
		start = *u.SubscriptionUntil
	}
	until := start.AddDate(0, 0, days)

	if err := s.repo.SetSubscription(ctx, userID, until); err != nil {
		return time.Time{}, fmt.Errorf("activate subscription: %w", err)
	}
	return until, nil
}

func (s *Service) Status(ctx context.Context, userID int64) (Status, error) {
	u, err := s.user(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	return Status{User: u, Decision: s.decide(u), FreeLimit: s.freeLimit}, nil
}

func (s *Service) user(ctx context.Context, userID int64) (storage.User, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		if err := s.repo.UpsertUser(ctx, storage.User{ID: userID}); err != nil {
			return storage.User{}, fmt.Errorf("create user: %w", err)
		}
		return storage.User{ID: userID}, nil
	}
	if err != nil {
		return storage.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Service) decide(u storage.User) Decision {
	if u.HasSubscription(s.now()) {
		return Decision{Allowed: true, Unlimited: true}
	}

	remaining := max(s.freeLimit-u.CalculationsCount, 0)
	return Decision{Allowed: remaining > 0, Remaining: remaining}
}
