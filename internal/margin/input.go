package margin

import (
	"math"
	"strings"
)

// Input is the canonical calculation input. Monetary values are per unit.
type Input struct {
	CostPrice         float64 `json:"costPrice"`
	SellingPrice      float64 `json:"sellingPrice"`
	CommissionPercent float64 `json:"commissionPercent"`
	LogisticsCost     float64 `json:"logisticsCost"`
	StorageCost       float64 `json:"storageCost"`
	ReturnPercent     float64 `json:"returnPercent"`
	ReturnCostPerUnit float64 `json:"returnCostPerUnit"`
	PackagingCost     float64 `json:"packagingCost"`
	OtherExpenses     float64 `json:"otherExpenses"`
	DeliveryToYouCost float64 `json:"deliveryToYouCost"`
}

func (in Input) Get(field Field) float64 {
	switch field {
	case FieldCostPrice:
		return in.CostPrice
	case FieldSellingPrice:
		return in.SellingPrice
	case FieldCommissionPercent:
		return in.CommissionPercent
	case FieldLogisticsCost:
		return in.LogisticsCost
	case FieldStorageCost:
		return in.StorageCost
	case FieldReturnPercent:
		return in.ReturnPercent
	case FieldReturnCostPerUnit:
		return in.ReturnCostPerUnit
	case FieldPackagingCost:
		return in.PackagingCost
	case FieldOtherExpenses:
		return in.OtherExpenses
	case FieldDeliveryToYouCost:
		return in.DeliveryToYouCost
	}
	return 0
}

func (in *Input) set(field Field, v float64) {
	switch field {
	case FieldCostPrice:
		in.CostPrice = v
	case FieldSellingPrice:
		in.SellingPrice = v
	case FieldCommissionPercent:
		in.CommissionPercent = v
	case FieldLogisticsCost:
		in.LogisticsCost = v
	case FieldStorageCost:
		in.StorageCost = v
	case FieldReturnPercent:
		in.ReturnPercent = v
	case FieldReturnCostPerUnit:
		in.ReturnCostPerUnit = v
	case FieldPackagingCost:
		in.PackagingCost = v
	case FieldOtherExpenses:
		in.OtherExpenses = v
	case FieldDeliveryToYouCost:
		in.DeliveryToYouCost = v
	}
}

// Raw is unparsed user text keyed by field.
type Raw map[Field]string

// Validate parses and range-checks every field and reports all problems at once.
// Optional fields that are blank resolve to 0.
func Validate(raw Raw) (Input, FieldErrors) {
	var (
		in   Input
		errs FieldErrors
	)

	for _, field := range Fields {
		v, present, fe := parseField(field, raw[field])
		if fe != nil {
			errs = append(errs, fe)
			continue
		}
		if !present && field.Required() {
			errs = append(errs, newFieldError(field, ErrMissingOrInvalid))
			continue
		}
		in.set(field, v)
	}

	if len(errs) > 0 {
		return Input{}, errs
	}
	return in, nil
}

// parseField returns present=false for blank text.
func parseField(field Field, text string) (float64, bool, *FieldError) {
	if strings.TrimSpace(text) == "" {
		return 0, false, nil
	}

	v, ok := ParseDecimal(text)
	if !ok {
		return 0, true, newFieldError(field, ErrMissingOrInvalid)
	}

	if fe := checkValue(field, v); fe != nil {
		return 0, true, fe
	}
	return v, true, nil
}

func checkValue(field Field, v float64) *FieldError {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return newFieldError(field, ErrMissingOrInvalid)
	}

	switch fieldInfos[field].bound {
	case boundPositive:
		if v <= 0 {
			return newFieldError(field, ErrMissingOrInvalid)
		}
	case boundPercent:
		if v < 0 || v > 100 {
			return newFieldError(field, ErrOutOfRange)
		}
	default:
		if v < 0 {
			return newFieldError(field, ErrOutOfRange)
		}
	}
	return nil
}
