package margin

import (
	"fmt"
	"math"
)

// Result is the derived report for one Input. Values are full precision; rounding happens only when
// formatting.
type Result struct {
	Input             Input   `json:"input"`
	Revenue           float64 `json:"revenue"`
	CommissionAmount  float64 `json:"commissionAmount"`
	ReturnCostTotal   float64 `json:"returnCostTotal"`
	TotalCosts        float64 `json:"totalCosts"`
	Profit            float64 `json:"profit"`
	MarginPercent     float64 `json:"marginPercent"`
	Markup            float64 `json:"markup"`
	CostProfitability float64 `json:"costProfitability"`
}

// Compute derives the report. It expects input that passed Validate; anything that would produce
// NaN or Inf, a negative cost or a percentage outside [0,100] fails with ErrInvalidEngineInvocation.
func Compute(in Input) (Result, error) {
	for _, field := range Fields {
		if err := checkInvocation(field, in.Get(field)); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrInvalidEngineInvocation, err)
		}
	}

	r := Result{Input: in}
	r.Revenue = in.SellingPrice
	r.CommissionAmount = in.SellingPrice * in.CommissionPercent / 100
	r.ReturnCostTotal = (in.ReturnPercent / 100) * in.ReturnCostPerUnit

	acquisition := acquisitionCost(in)
	r.TotalCosts = acquisition + r.CommissionAmount + in.LogisticsCost + in.StorageCost + r.ReturnCostTotal
	r.Profit = r.Revenue - r.TotalCosts

	if r.Revenue > 0 {
		r.MarginPercent = r.Profit / r.Revenue * 100
	}
	if in.CostPrice > 0 {
		r.Markup = (in.SellingPrice - in.CostPrice) / in.CostPrice * 100
	}
	if acquisition > 0 {
		r.CostProfitability = r.Profit / acquisition * 100
	}

	return r, nil
}

// acquisitionCost is the pre-commission cost basis: purchase, delivery to the seller, packaging and
// other expenses.
func acquisitionCost(in Input) float64 {
	return in.CostPrice + in.DeliveryToYouCost + in.PackagingCost + in.OtherExpenses
}

// checkInvocation is looser than Validate: zero prices are allowed and handled by guarded division.
func checkInvocation(field Field, v float64) *FieldError {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return newFieldError(field, ErrMissingOrInvalid)
	}
	if v < 0 || (field.IsPercent() && v > 100) {
		return newFieldError(field, ErrOutOfRange)
	}
	return nil
}
