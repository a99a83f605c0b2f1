package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (b *Bot) isAdmin(userID int64) bool {
	return b.cfg.IsAdmin(userID)
}

// handleAdminStats shows usage totals; for everybody else /stats does not exist.
func (b *Bot) handleAdminStats(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if !b.isAdmin(msg.From.ID) {
		b.HandleUnknownCommand(ctx, msg)
		return
	}

	stats, err := b.history.Stats(ctx, b.now())
	if err != nil {
		b.logger.Error("Failed to get statistics", zap.Error(err))
		b.sendError(chatID, "Ошибка при получении статистики")
		return
	}

	text := fmt.Sprintf(
		"📊 <b>Статистика</b>\n\n"+
			"👤 Пользователей: %d\n"+
			"🧮 Всего расчетов: %d\n"+
			"📅 Расчетов за сегодня: %d\n"+
			"💎 Активных подписок: %d",
		stats.Users,
		stats.Calculations,
		stats.CalculationsToday,
		stats.ActiveSubscriptions,
	)

	b.sendHTML(chatID, text, nil)
}
