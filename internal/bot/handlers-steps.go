package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"wb-margin-bot/internal/category"
	"wb-margin-bot/internal/dialog"
	"wb-margin-bot/internal/margin"
	"wb-margin-bot/pkg/metrics"
)

const maxProductNameLength = 200

var stepPrompts = map[dialog.Step]string{
	dialog.StepCostPrice:     "💰 Введите <b>себестоимость</b> товара (в рублях):\n\n<i>Сумма, которую вы платите за товар, включая доставку до склада WB</i>",
	dialog.StepSellingPrice:  "🏷 Введите <b>цену продажи</b> на Wildberries (в рублях):",
	dialog.StepCommission:    "📊 Введите <b>комиссию WB</b> (в процентах):\n\n<i>Обычно 15-25% в зависимости от категории товара</i>",
	dialog.StepLogistics:     "🚚 Введите стоимость <b>логистики WB</b> (в рублях):\n\n<i>Стоимость доставки до покупателя</i>",
	dialog.StepStorage:       "📦 Введите стоимость <b>хранения</b> (в рублях):\n\n<i>Общая стоимость хранения единицы товара на складе WB</i>",
	dialog.StepReturnPercent: "↩️ Введите <b>процент возвратов</b>:\n\n<i>Доля заказов, которые покупатели возвращают</i>",
	dialog.StepReturnCost:    "💸 Введите стоимость <b>обработки одного возврата</b> (в рублях):",
}

func (b *Bot) startCalculation(ctx context.Context, chatID, userID int64) {
	decision, ok := b.checkQuota(ctx, chatID, userID)
	if !ok {
		return
	}

	st := dialog.State{Step: dialog.StepProductName, UpdatedAt: b.now()}
	if !b.saveState(ctx, chatID, userID, st) {
		return
	}

	limitText := fmt.Sprintf("🎁 Осталось бесплатных расчетов: %d", decision.Remaining)
	if decision.Unlimited {
		limitText = "♾ Безлимит (подписка активна)"
	}

	b.sendHTML(chatID, fmt.Sprintf(`📊 <b>Новый расчет маржи</b>

%s

🛍 Введите <b>название товара</b>, чтобы подобрать категорию и комиссию WB, или нажмите «Пропустить».`, limitText),
		b.createProductKeyboard())
}

func (b *Bot) handleProductName(ctx context.Context, msg *tgbotapi.Message, st dialog.State) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	if isSkipText(text) {
		b.startFields(ctx, chatID, msg.From.ID, st, nil)
		return
	}

	st.ProductName = truncate(text, maxProductNameLength)
	b.searchCategory(ctx, chatID, msg.From.ID, st)
}

// handleCategoryText treats text typed while the category buttons are shown as a new search.
func (b *Bot) handleCategoryText(ctx context.Context, msg *tgbotapi.Message, st dialog.State) {
	b.handleProductName(ctx, msg, st)
}

func (b *Bot) searchCategory(ctx context.Context, chatID, userID int64, st dialog.State) {
	cats, err := b.categories.SearchByName(ctx, st.ProductName)
	switch {
	case errors.Is(err, category.ErrQueryTooShort):
		b.sendError(chatID, fmt.Sprintf("Название должно содержать минимум %d символа", category.MinQueryLength))
		return
	case err != nil:
		metrics.UpstreamErrors.WithLabelValues("search").Inc()
		b.logger.Warn("Category search failed",
			zap.String("query", st.ProductName),
			zap.Error(err))
		b.sendHTML(chatID, "⚠️ Не удалось подобрать категорию, комиссию нужно будет ввести вручную.", nil)
		b.startFields(ctx, chatID, userID, st, nil)
		return
	case len(cats) == 0:
		b.sendHTML(chatID, "🔍 Категория не найдена, комиссию нужно будет ввести вручную.", nil)
		b.startFields(ctx, chatID, userID, st, nil)
		return
	case len(cats) == 1:
		b.selectCategory(ctx, chatID, userID, st, cats[0])
		return
	}

	if len(cats) > maxCategoryButtons {
		cats = cats[:maxCategoryButtons]
	}

	st.Step = dialog.StepCategorySelect
	st.UpdatedAt = b.now()
	if !b.saveState(ctx, chatID, userID, st) {
		return
	}

	b.sendHTML(chatID,
		fmt.Sprintf("🔍 Для «%s» нашлось несколько категорий. Выберите подходящую:", escape(st.ProductName)),
		b.createCategoryKeyboard(cats))
}

func (b *Bot) handleCategoryCallback(ctx context.Context, chatID, userID int64, payload string) {
	st, ok := b.loadState(ctx, chatID, userID)
	if !ok {
		return
	}
	if st.Step != dialog.StepCategorySelect {
		b.logger.Debug("Stale category button", zap.Int64("user_id", userID), zap.String("step", string(st.Step)))
		return
	}

	if payload == callbackCategorySkip {
		b.startFields(ctx, chatID, userID, st, nil)
		return
	}

	id, err := strconv.Atoi(payload)
	if err != nil {
		b.logger.Warn("Bad category callback", zap.String("payload", payload))
		return
	}

	// the search result is cached, so the name is resolved without another upstream call
	selected := category.Category{ID: id}
	if cats, err := b.categories.SearchByName(ctx, st.ProductName); err == nil {
		for _, c := range cats {
			if c.ID == id {
				selected = c
				break
			}
		}
	}

	b.selectCategory(ctx, chatID, userID, st, selected)
}

func (b *Bot) selectCategory(ctx context.Context, chatID, userID int64, st dialog.State, c category.Category) {
	st.CategoryID = c.ID
	st.CategoryName = c.Name

	commission, err := b.categories.Commission(ctx, c.ID)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("commission").Inc()
		b.logger.Warn("Commission lookup failed",
			zap.Int("category_id", c.ID),
			zap.Error(err))
	}

	var prefill *float64
	text := fmt.Sprintf("✅ Категория: <b>%s</b>", escape(c.Name))
	if !commission.Fallback {
		prefill = &commission.Percent
		text += fmt.Sprintf("\n📊 Комиссия WB: <b>%s</b>", margin.FormatPercent(commission.Percent))
	} else {
		text += "\n📊 Комиссию для этой категории нужно будет ввести вручную."
	}
	b.sendHTML(chatID, text, nil)

	b.startFields(ctx, chatID, userID, st, prefill)
}

func (b *Bot) startFields(ctx context.Context, chatID, userID int64, prev dialog.State, commission *float64) {
	st := b.machine.Start(prev, commission)
	if !b.saveState(ctx, chatID, userID, st) {
		return
	}
	b.promptStep(chatID, st, "")
}

func (b *Bot) promptStep(chatID int64, st dialog.State, header string) {
	n, total := b.machine.Position(st)

	var sb strings.Builder
	if header != "" {
		sb.WriteString(header)
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "<b>Шаг %d из %d</b>\n\n", n, total)
	sb.WriteString(stepPrompts[st.Step])

	b.sendHTML(chatID, sb.String(), b.createStepKeyboard(st.Step))
}

func (b *Bot) handleFieldInput(ctx context.Context, msg *tgbotapi.Message, st dialog.State) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	field, _ := st.Field()

	next, out, err := b.machine.Accept(st, msg.Text)
	if err != nil {
		b.logger.Error("Calculation failed",
			zap.Int64("user_id", userID),
			zap.String("step", string(st.Step)),
			zap.Error(err))
		b.clearState(ctx, userID)
		b.showMainMenu(chatID, "❌ Ошибка при расчете. Начните заново: /calculate")
		return
	}

	if out.Err != nil {
		reply := tgbotapi.NewMessage(chatID, "❌ "+out.Err.Message)
		reply.ReplyMarkup = b.createStepKeyboard(st.Step)
		b.sendMessage(reply)
		return
	}

	if !out.Completed {
		if !b.saveState(ctx, chatID, userID, next) {
			return
		}
		v, _ := next.Draft.Value(field)
		b.promptStep(chatID, next, fmt.Sprintf("✅ %s: <b>%s</b>", field.Label(), formatFieldValue(field, v)))
		return
	}

	b.clearState(ctx, userID)
	b.finishCalculation(ctx, chatID, userID, st, out.Result)
}

func (b *Bot) finishCalculation(ctx context.Context, chatID, userID int64, st dialog.State, result margin.Result) {
	metrics.Calculations.WithLabelValues("bot").Inc()

	// read before the write below is counted
	status, err := b.quota.Status(ctx, userID)
	if err != nil {
		b.logger.Warn("Failed to get user status", zap.Int64("user_id", userID), zap.Error(err))
	}

	b.recordInBackground(ctx, userID, result)

	var sb strings.Builder
	if st.ProductName != "" {
		fmt.Fprintf(&sb, "🛍 <b>%s</b>\n", escape(st.ProductName))
		if st.CategoryName != "" {
			fmt.Fprintf(&sb, "📂 %s\n", escape(st.CategoryName))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(margin.Format(result))

	lastFree := false
	if err == nil && !status.Decision.Unlimited {
		remaining := max(status.Decision.Remaining-1, 0)
		if remaining > 0 {
			fmt.Fprintf(&sb, "\n\n🎁 Осталось бесплатных расчетов: %d", remaining)
		} else {
			sb.WriteString("\n\n⚠️ Это был последний бесплатный расчет!")
			lastFree = true
		}
	}

	b.showMainMenu(chatID, sb.String())
	b.sendHTML(chatID, "Что дальше?", b.createAfterCalculationKeyboard(lastFree))
}

// recordInBackground stores the calculation without holding up the reply. The next quota check of
// the same user waits for it, see waitPendingWrite.
func (b *Bot) recordInBackground(ctx context.Context, userID int64, result margin.Result) {
	done := make(chan struct{})

	b.pendingMu.Lock()
	b.pending[userID] = done
	b.pendingMu.Unlock()

	b.background.Go(func() {
		defer func() {
			b.pendingMu.Lock()
			if b.pending[userID] == done {
				delete(b.pending, userID)
			}
			b.pendingMu.Unlock()
			close(done)
		}()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()

		if err := b.quota.RecordCalculation(ctx, userID, result); err != nil {
			b.logger.Error("Failed to record calculation",
				zap.Int64("user_id", userID),
				zap.Error(err))
		}
	})
}

func (b *Bot) waitPendingWrite(ctx context.Context, userID int64) {
	b.pendingMu.Lock()
	done := b.pending[userID]
	b.pendingMu.Unlock()

	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func formatFieldValue(field margin.Field, v float64) string {
	if field.IsPercent() {
		return margin.FormatPercent(v)
	}
	return margin.FormatMoney(v)
}
