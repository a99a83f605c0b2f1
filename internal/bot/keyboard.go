package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wb-margin-bot/internal/category"
	"wb-margin-bot/internal/dialog"
	"wb-margin-bot/internal/margin"
)

const (
	buttonCalculate = "📊 Рассчитать маржу"
	buttonStatus    = "📈 Мой статус"
	buttonSubscribe = "💎 Подписка"
	buttonHistory   = "📜 История"
	buttonHelp      = "❓ Помощь"
	buttonCancel    = "❌ Отмена"
	buttonSkip      = "⏭ Пропустить"

	buttonSkipStorage = "0 ₽ (пропустить)"
	buttonSkipReturns = "0% (пропустить)"

	callbackCancel         = "cancel_calculation"
	callbackNewCalculation = "new_calculation"
	callbackSubscribe      = "subscribe"
	callbackActivate       = "subscribe_activate"
	callbackBackToMenu     = "back_to_menu"
	callbackCategoryPrefix = "category:"
	callbackCategorySkip   = "skip"

	maxCategoryButtons = 6
)

// menuButtons maps reply keyboard buttons to commands.
var menuButtons = map[string]string{
	buttonCalculate: "calculate",
	buttonStatus:    "status",
	buttonSubscribe: "subscribe",
	buttonHistory:   "history",
	buttonHelp:      "help",
	buttonCancel:    "cancel",
}

func (b *Bot) createMainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonCalculate),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonStatus),
			tgbotapi.NewKeyboardButton(buttonSubscribe),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonHistory),
			tgbotapi.NewKeyboardButton(buttonHelp),
		),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func (b *Bot) createProductKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonCancel),
		),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

// createStepKeyboard returns the quick answers for a field step.
func (b *Bot) createStepKeyboard(step dialog.Step) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton

	switch step {
	case dialog.StepCommission:
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("15%"),
			tgbotapi.NewKeyboardButton("19%"),
			tgbotapi.NewKeyboardButton("22%"),
		))
	case dialog.StepStorage:
		if suggested := b.cfg.Quota.DefaultStorageCost(); suggested > 0 {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(margin.FormatMoney(suggested)),
			))
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonSkipStorage),
		))
	case dialog.StepReturnPercent:
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("5%"),
			tgbotapi.NewKeyboardButton("10%"),
			tgbotapi.NewKeyboardButton("20%"),
		), tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(buttonSkipReturns),
		))
	case dialog.StepReturnCost:
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("50"),
			tgbotapi.NewKeyboardButton("100"),
		))
	}

	rows = append(rows, tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(buttonCancel),
	))

	keyboard := tgbotapi.NewReplyKeyboard(rows...)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func (b *Bot) createCategoryKeyboard(cats []category.Category) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(cats)+2)

	for _, c := range cats {
		label := c.Name
		if c.ParentName != "" {
			label = fmt.Sprintf("%s (%s)", c.Name, c.ParentName)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(truncate(label, 60), fmt.Sprintf("%s%d", callbackCategoryPrefix, c.ID)),
		))
	}

	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(buttonSkip, callbackCategoryPrefix+callbackCategorySkip),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(buttonCancel, callbackCancel),
		),
	)

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) createSubscriptionKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💳 Оформить подписку", callbackActivate),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 Назад", callbackBackToMenu),
		),
	)
}

func (b *Bot) createAfterCalculationKeyboard(offerSubscription bool) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Новый расчет", callbackNewCalculation),
		),
	}
	if offerSubscription {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⭐ Получить безлимит", callbackSubscribe),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) createMiniAppKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🧮 Открыть калькулятор", b.cfg.Bot.MiniAppURL),
		),
	)
}
