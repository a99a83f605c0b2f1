package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"wb-margin-bot/internal/storage"
)

// NotifySubscriptionExpiring reminds the user that the subscription ends soon.
func (b *Bot) NotifySubscriptionExpiring(ctx context.Context, user storage.User) error {
	if user.SubscriptionUntil == nil {
		return errors.New("user has no subscription")
	}

	text := fmt.Sprintf(`⏰ <b>Подписка скоро закончится</b>

Ваша подписка действует до <b>%s</b>.
Продлите ее, чтобы расчеты оставались безлимитными.`, formatDate(*user.SubscriptionUntil))

	msg := tgbotapi.NewMessage(user.ID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = b.createSubscriptionKeyboard()

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send expiry reminder: %w", err)
	}
	return nil
}

// NotifyAdminsSubscription tells every admin about a new or extended subscription.
func (b *Bot) NotifyAdminsSubscription(ctx context.Context, from *tgbotapi.User, until time.Time) {
	if len(b.cfg.Bot.AdminIDs) == 0 {
		return
	}

	text := fmt.Sprintf("💎 Пользователь %s (id %d) оформил подписку до %s",
		displayName(from.UserName, from.FirstName), from.ID, formatDate(until))

	for _, adminID := range b.cfg.Bot.AdminIDs {
		if _, err := b.api.Send(tgbotapi.NewMessage(adminID, text)); err != nil {
			b.logger.Warn("Failed to notify admin",
				zap.Int64("admin_id", adminID),
				zap.Error(err))
		}
	}
}
