package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"wb-margin-bot/internal/dialog"
	"wb-margin-bot/internal/margin"
	"wb-margin-bot/internal/quota"
	"wb-margin-bot/internal/storage"
)

const rateLimitedText = "⚠️ Слишком много запросов. Подождите немного и попробуйте снова."

func (b *Bot) HandleStart(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	b.clearState(ctx, msg.From.ID)

	status, err := b.quota.Status(ctx, msg.From.ID)
	if err != nil {
		b.logger.Error("Failed to get user status",
			zap.Int64("user_id", msg.From.ID),
			zap.Error(err))
	}

	name := msg.From.FirstName
	if name == "" {
		name = "друг"
	}

	limitText := fmt.Sprintf("🎁 У вас <b>%d бесплатных расчетов</b>", status.Decision.Remaining)
	if status.Decision.Unlimited {
		limitText = "✨ У вас активная подписка, расчеты безлимитны!"
	}

	text := fmt.Sprintf(`👋 Привет, <b>%s</b>!

Я помогу рассчитать маржу товара на <b>Wildberries</b>.

📊 <b>Что я умею:</b>
• Рассчитывать чистую прибыль с единицы товара
• Подбирать категорию и комиссию WB по названию товара
• Учитывать логистику, хранение и возвраты
• Показывать маржу, наценку и рентабельность
• Давать рекомендации по рентабельности

%s

Нажмите /calculate, чтобы начать расчет!`, escape(name), limitText)

	b.sendHTML(chatID, text, b.createMainMenuKeyboard())

	if b.cfg.Bot.MiniAppURL != "" {
		b.sendHTML(chatID, "Расчет в удобной форме доступен в мини-приложении:", b.createMiniAppKeyboard())
	}
}

func (b *Bot) HandleCalculate(ctx context.Context, msg *tgbotapi.Message) {
	b.startCalculation(ctx, msg.Chat.ID, msg.From.ID)
}

func (b *Bot) HandleCancel(ctx context.Context, msg *tgbotapi.Message) {
	b.cancel(ctx, msg.Chat.ID, msg.From.ID)
}

func (b *Bot) cancel(ctx context.Context, chatID, userID int64) {
	st, ok := b.loadState(ctx, chatID, userID)
	if !ok {
		return
	}

	b.clearState(ctx, userID)

	if st.Step == "" || st.Step == dialog.StepIdle {
		b.showMainMenu(chatID, "Нет активного расчета. Выберите действие:")
		return
	}
	b.showMainMenu(chatID, "❌ Расчет отменен. Нажмите /calculate, чтобы начать заново.")
}

func (b *Bot) HandleStatus(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	b.waitPendingWrite(ctx, msg.From.ID)
	status, err := b.quota.Status(ctx, msg.From.ID)
	if err != nil {
		b.logger.Error("Failed to get user status",
			zap.Int64("user_id", msg.From.ID),
			zap.Error(err))
		b.sendError(chatID, "Не удалось получить статус")
		return
	}

	if status.Decision.Unlimited {
		b.sendHTML(chatID, fmt.Sprintf(`⭐ <b>Подписка активна</b>

📅 Действует до: <b>%s</b>
📊 Всего расчетов: <b>%d</b>

Пользуйтесь без ограничений! 🎉`,
			formatDate(*status.User.SubscriptionUntil),
			status.User.CalculationsCount,
		), nil)
		return
	}

	text := fmt.Sprintf(`📊 <b>Ваш статус</b>

🎁 Бесплатных расчетов: <b>%d из %d</b>
📊 Всего расчетов: <b>%d</b>
⭐ Подписка: <b>не активна</b>`,
		status.Decision.Remaining,
		status.FreeLimit,
		status.User.CalculationsCount,
	)

	var markup any
	if status.Decision.Remaining == 0 {
		text += "\n\n⚠️ Бесплатные расчеты закончились! Оформите подписку для безлимитных расчетов."
		markup = b.createSubscriptionKeyboard()
	}
	b.sendHTML(chatID, text, markup)
}

func (b *Bot) HandleSubscribe(ctx context.Context, msg *tgbotapi.Message) {
	b.showSubscription(msg.Chat.ID)
}

func (b *Bot) showSubscription(chatID int64) {
	text := fmt.Sprintf(`💎 <b>Подписка WB Margin Pro</b>

<b>Стоимость:</b> %d ₽ за %d дней

<b>Что входит:</b>
✅ Безлимитные расчеты маржи
✅ История и выгрузка расчетов в Excel
✅ Приоритетная поддержка`,
		b.cfg.Quota.SubscriptionPrice,
		b.cfg.Quota.SubscriptionDays,
	)

	b.sendHTML(chatID, text, b.createSubscriptionKeyboard())
}

func (b *Bot) activateSubscription(ctx context.Context, chatID int64, from *tgbotapi.User) {
	until, err := b.quota.ActivateSubscription(ctx, from.ID, b.cfg.Quota.SubscriptionDays)
	if err != nil {
		b.logger.Error("Failed to activate subscription",
			zap.Int64("user_id", from.ID),
			zap.Error(err))
		b.sendError(chatID, "Не удалось оформить подписку, попробуйте позже")
		return
	}

	b.logger.Info("Subscription activated",
		zap.Int64("user_id", from.ID),
		zap.Time("until", until))

	b.showMainMenu(chatID, fmt.Sprintf("✅ Подписка активна до %s. Расчеты безлимитны!", formatDate(until)))
	b.NotifyAdminsSubscription(ctx, from, until)
}

func (b *Bot) HandleHelp(ctx context.Context, msg *tgbotapi.Message) {
	helpText := `📚 <b>Справка по боту</b>

<b>Команды:</b>
/start - Начать работу с ботом
/calculate - Рассчитать маржу товара
/cancel - Отменить текущий расчет
/status - Проверить статус подписки
/subscribe - Оформить подписку
/history - Последние расчеты
/export - Выгрузить историю в Excel
/help - Показать эту справку

<b>Как рассчитывается маржа:</b>
<code>Прибыль = Цена − Себестоимость − Комиссия WB − Логистика − Хранение − Возвраты</code>
<code>Маржа (%) = Прибыль / Цена × 100</code>

<b>Рекомендуемая маржа:</b>
🔥 Более 30% - отличная
👍 15-30% - нормальная
⚠️ Менее 15% - рискованная

<i>Точную комиссию смотрите в личном кабинете WB</i>`

	b.sendHTML(msg.Chat.ID, helpText, nil)
}

func (b *Bot) HandleHistory(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	calcs, err := b.history.ListCalculations(ctx, msg.From.ID, historyLimit)
	if err != nil {
		b.logger.Error("Failed to list calculations",
			zap.Int64("user_id", msg.From.ID),
			zap.Error(err))
		b.sendError(chatID, "Не удалось получить историю расчетов")
		return
	}

	if len(calcs) == 0 {
		b.sendHTML(chatID, "📜 История пуста. Нажмите /calculate, чтобы сделать первый расчет.", nil)
		return
	}

	var sb strings.Builder
	sb.WriteString("📜 <b>Последние расчеты</b>\n")
	for i, c := range calcs {
		fmt.Fprintf(&sb, "\n%d. %s\n   Цена %s, прибыль <b>%s</b>, маржа <b>%s</b>\n",
			i+1,
			formatDate(c.CreatedAt),
			margin.FormatMoney(c.SellingPrice),
			margin.FormatMoney(c.Profit),
			margin.FormatPercent(c.MarginPercent),
		)
	}
	sb.WriteString("\nВыгрузить всю историю: /export")

	b.sendHTML(chatID, sb.String(), nil)
}

func (b *Bot) HandleExport(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	calcs, err := b.history.ListCalculations(ctx, msg.From.ID, 0)
	if err != nil {
		b.logger.Error("Failed to list calculations",
			zap.Int64("user_id", msg.From.ID),
			zap.Error(err))
		b.sendError(chatID, "Не удалось получить историю расчетов")
		return
	}
	if len(calcs) == 0 {
		b.sendHTML(chatID, "📜 История пуста, выгружать нечего.", nil)
		return
	}

	path, err := storage.ExportCalculations(b.exportDir, msg.From.ID, calcs, b.now())
	if err != nil {
		b.logger.Error("Failed to export calculations", zap.Error(err))
		b.sendError(chatID, "Не удалось сформировать файл")
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			b.logger.Warn("Failed to remove export file", zap.String("path", path), zap.Error(err))
		}
	}()

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	doc.Caption = fmt.Sprintf("📊 История расчетов: %d", len(calcs))

	if _, err := b.api.Send(doc); err != nil {
		b.logger.Error("Failed to send Excel file", zap.Error(err))
		b.sendError(chatID, "Не удалось отправить файл")
	}
}

func (b *Bot) HandleDefault(ctx context.Context, msg *tgbotapi.Message) {
	b.sendError(msg.Chat.ID, "Я не понимаю это сообщение. Нажмите /calculate для нового расчета или /help для справки.")
}

func (b *Bot) HandleUnknownCommand(ctx context.Context, msg *tgbotapi.Message) {
	b.sendError(msg.Chat.ID, "Неизвестная команда. Список команд: /help")
}

func (b *Bot) showMainMenu(chatID int64, text string) {
	b.sendHTML(chatID, text, b.createMainMenuKeyboard())
}

func (b *Bot) showSubscriptionOffer(chatID int64) {
	text := fmt.Sprintf(`⚠️ <b>Лимит бесплатных расчетов исчерпан!</b>

Вы использовали все %d бесплатных расчетов.

⭐ <b>Подписка «Безлимит»</b>
✅ Неограниченное количество расчетов
💰 <b>%d ₽ за %d дней</b>`,
		b.cfg.Quota.FreeCalculationsLimit,
		b.cfg.Quota.SubscriptionPrice,
		b.cfg.Quota.SubscriptionDays,
	)

	b.sendHTML(chatID, text, b.createSubscriptionKeyboard())
}

// checkQuota reports whether the user may start a calculation and explains it when not.
func (b *Bot) checkQuota(ctx context.Context, chatID, userID int64) (quota.Decision, bool) {
	b.waitPendingWrite(ctx, userID)

	decision, err := b.quota.CanCalculate(ctx, userID)
	if errors.Is(err, quota.ErrQuotaExceeded) {
		b.showSubscriptionOffer(chatID)
		return decision, false
	}
	if err != nil {
		b.logger.Error("Failed to check quota",
			zap.Int64("user_id", userID),
			zap.Error(err))
		b.sendError(chatID, "Не удалось проверить лимит расчетов, попробуйте позже")
		return decision, false
	}
	return decision, true
}
