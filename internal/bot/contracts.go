package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wb-margin-bot/internal/category"
	"wb-margin-bot/internal/margin"
	"wb-margin-bot/internal/quota"
	"wb-margin-bot/internal/storage"
)

// Sender is the part of tgbotapi.BotAPI the bot talks through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type QuotaService interface {
	EnsureUser(ctx context.Context, id int64, username, firstName string) error
	CanCalculate(ctx context.Context, userID int64) (quota.Decision, error)
	RecordCalculation(ctx context.Context, userID int64, r margin.Result) error
	ActivateSubscription(ctx context.Context, userID int64, days int) (time.Time, error)
	Status(ctx context.Context, userID int64) (quota.Status, error)
}

type CategoryService interface {
	SearchByName(ctx context.Context, name string) ([]category.Category, error)
	Commission(ctx context.Context, categoryID int) (category.Commission, error)
}

type HistoryRepository interface {
	ListCalculations(ctx context.Context, userID int64, limit int) ([]storage.Calculation, error)
	Stats(ctx context.Context, now time.Time) (storage.Stats, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, userID int64, action string) (bool, error)
}
