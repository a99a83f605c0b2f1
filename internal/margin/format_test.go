package margin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	rq := require.New(t)

	r, err := Compute(profitableInput())
	rq.NoError(err)

	out := Format(r)
	rq.Contains(out, "Результат расчета маржи")
	rq.Contains(out, "Комиссия WB: -225.00 ₽")
	rq.Contains(out, "Итого затрат:</b> 805.00 ₽")
	rq.Contains(out, "✅ Чистая прибыль: <b>695.00 ₽</b>")
	rq.Contains(out, "🔥 Маржа: <b>46.33%</b>")
	rq.Contains(out, "Наценка: <b>200.00%</b>")
	rq.NotContains(out, "Возвраты")
}

func TestFormat_LossAndReturns(t *testing.T) {
	rq := require.New(t)

	r, err := Compute(Input{
		CostPrice:         1000,
		SellingPrice:      900,
		CommissionPercent: 20,
		ReturnPercent:     10,
		ReturnCostPerUnit: 100,
	})
	rq.NoError(err)

	out := Format(r)
	rq.Contains(out, "❌ Чистая прибыль: <b>-290.00 ₽</b>")
	rq.Contains(out, "📉 Маржа")
	rq.Contains(out, "Возвраты: -10.00 ₽")
	rq.Contains(out, "убыточный")
}

func TestRecommendation(t *testing.T) {
	testCases := []struct {
		name   string
		result Result
		want   string
	}{
		{name: "loss", result: Result{Profit: -1, MarginPercent: -5}, want: "убыточный"},
		{name: "low", result: Result{Profit: 5, MarginPercent: 5}, want: "низкая"},
		{name: "acceptable", result: Result{Profit: 15, MarginPercent: 15}, want: "приемлемая"},
		{name: "good", result: Result{Profit: 25, MarginPercent: 25}, want: "Хорошая"},
		{name: "excellent", result: Result{Profit: 30, MarginPercent: 30}, want: "Отличная"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Contains(t, Recommendation(tc.result), tc.want)
		})
	}
}
