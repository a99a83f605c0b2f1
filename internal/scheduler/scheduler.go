package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"wb-margin-bot/internal/config"
	"wb-margin-bot/internal/storage"
)

const jobTimeout = 2 * time.Minute

type Warmer interface {
	Warm(ctx context.Context) error
}

type SubscriptionLister interface {
	ListExpiringSubscriptions(ctx context.Context, from, to time.Time) ([]storage.User, error)
}

type Notifier interface {
	NotifySubscriptionExpiring(ctx context.Context, user storage.User) error
}

// Scheduler runs periodic jobs: category cache warm-up and subscription expiry reminders.
type Scheduler struct {
	cron     *cron.Cron
	warmer   Warmer
	lister   SubscriptionLister
	notifier Notifier
	cfg      config.Schedule
	logger   *zap.Logger
	now      func() time.Time

	mu sync.Mutex
	// remindedUntil is the upper bound of the last reminder window; users expiring before it
	// were already notified.
	remindedUntil time.Time
}

func New(cfg config.Schedule, warmer Warmer, lister SubscriptionLister, notifier Notifier, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:     cron.New(),
		warmer:   warmer,
		lister:   lister,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run registers the jobs and blocks until ctx is cancelled. An empty schedule disables its job.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.CategoryWarm != "" {
		if _, err := s.cron.AddFunc(s.cfg.CategoryWarm, func() { s.WarmCategories(ctx) }); err != nil {
			return fmt.Errorf("schedule category warm-up %q: %w", s.cfg.CategoryWarm, err)
		}
	}
	if s.cfg.ExpiryReminder != "" {
		if _, err := s.cron.AddFunc(s.cfg.ExpiryReminder, func() { s.RemindExpiring(ctx) }); err != nil {
			return fmt.Errorf("schedule expiry reminders %q: %w", s.cfg.ExpiryReminder, err)
		}
	}

	s.logger.Info("starting scheduler", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()

	<-ctx.Done()

	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()

	return nil
}

func (s *Scheduler) WarmCategories(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	if err := s.warmer.Warm(ctx); err != nil {
		s.logger.Warn("failed to warm category cache", zap.Error(err))
		return
	}
	s.logger.Debug("category cache warmed")
}

// RemindExpiring notifies users whose subscription ends within the lead time. Each user is
// reminded once per expiry date.
func (s *Scheduler) RemindExpiring(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	from := s.remindedUntil
	if from.Before(now) {
		from = now
	}
	to := now.Add(s.cfg.ReminderLeadTime)
	if !to.After(from) {
		return 0
	}

	users, err := s.lister.ListExpiringSubscriptions(ctx, from, to)
	if err != nil {
		s.logger.Error("failed to list expiring subscriptions", zap.Error(err))
		return 0
	}

	sent := 0
	for _, u := range users {
		if err := s.notifier.NotifySubscriptionExpiring(ctx, u); err != nil {
			s.logger.Warn("failed to send expiry reminder",
				zap.Int64("user_id", u.ID),
				zap.Error(err))
			continue
		}
		sent++
	}

	s.remindedUntil = to
	s.logger.Info("expiry reminders sent", zap.Int("users", len(users)), zap.Int("sent", sent))

	return sent
}
