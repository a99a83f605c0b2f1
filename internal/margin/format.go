package margin

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatMoney renders an amount with two decimals, e.g. "695.00 ₽".
func FormatMoney(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + " ₽"
}

// FormatPercent renders a percentage with two decimals, e.g. "46.33%".
func FormatPercent(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}

func profitMark(r Result) string {
	if r.Profit >= 0 {
		return "✅"
	}
	return "❌"
}

func marginMark(r Result) string {
	switch {
	case r.MarginPercent >= 30:
		return "🔥"
	case r.MarginPercent >= 15:
		return "👍"
	case r.MarginPercent >= 0:
		return "⚠️"
	default:
		return "📉"
	}
}

// Recommendation gives a one-line verdict for the report.
func Recommendation(r Result) string {
	switch {
	case r.Profit < 0:
		return "Товар убыточный: снизьте себестоимость или поднимите цену."
	case r.MarginPercent < 10:
		return "Маржа низкая. Для устойчивой работы на маркетплейсе ориентируйтесь на 20% и выше."
	case r.MarginPercent < 20:
		return "Маржа приемлемая, но есть запас для роста."
	case r.MarginPercent < 30:
		return "Хорошая маржа для работы на WB."
	default:
		return "Отличная маржа, товар высокорентабельный 🚀"
	}
}

// Format renders the Telegram HTML report.
func Format(r Result) string {
	in := r.Input
	var b strings.Builder

	b.WriteString("📊 <b>Результат расчета маржи</b>\n\n")

	b.WriteString("<b>Входные данные:</b>\n")
	fmt.Fprintf(&b, "├ Себестоимость: %s\n", FormatMoney(in.CostPrice))
	fmt.Fprintf(&b, "├ Цена продажи: %s\n", FormatMoney(in.SellingPrice))
	fmt.Fprintf(&b, "├ Комиссия WB: %s\n", FormatPercent(in.CommissionPercent))
	fmt.Fprintf(&b, "├ Логистика: %s\n", FormatMoney(in.LogisticsCost))
	fmt.Fprintf(&b, "└ Хранение: %s\n", FormatMoney(in.StorageCost))
	if in.ReturnPercent > 0 {
		fmt.Fprintf(&b, "  Возвраты: %s × %s\n", FormatPercent(in.ReturnPercent), FormatMoney(in.ReturnCostPerUnit))
	}

	b.WriteString("\n<b>Расчет:</b>\n")
	fmt.Fprintf(&b, "├ Выручка: %s\n", FormatMoney(r.Revenue))
	fmt.Fprintf(&b, "├ Комиссия WB: -%s\n", FormatMoney(r.CommissionAmount))
	if r.ReturnCostTotal > 0 {
		fmt.Fprintf(&b, "├ Возвраты: -%s\n", FormatMoney(r.ReturnCostTotal))
	}
	if extra := in.DeliveryToYouCost + in.PackagingCost + in.OtherExpenses; extra > 0 {
		fmt.Fprintf(&b, "├ Доп. расходы: -%s\n", FormatMoney(extra))
	}
	fmt.Fprintf(&b, "└ <b>Итого затрат:</b> %s\n", FormatMoney(r.TotalCosts))

	b.WriteString("\n<b>Результат:</b>\n")
	fmt.Fprintf(&b, "%s Чистая прибыль: <b>%s</b>\n", profitMark(r), FormatMoney(r.Profit))
	fmt.Fprintf(&b, "%s Маржа: <b>%s</b>\n", marginMark(r), FormatPercent(r.MarginPercent))
	fmt.Fprintf(&b, "📈 Наценка: <b>%s</b>\n", FormatPercent(r.Markup))
	fmt.Fprintf(&b, "💼 Рентабельность затрат: <b>%s</b>\n", FormatPercent(r.CostProfitability))

	fmt.Fprintf(&b, "\n💡 <i>%s</i>", Recommendation(r))

	return b.String()
}
