package margin

// Field names one MarginInput value. The string form is used in JSON payloads and session state.
type Field string

const (
	FieldCostPrice         Field = "costPrice"
	FieldSellingPrice      Field = "sellingPrice"
	FieldCommissionPercent Field = "commissionPercent"
	FieldLogisticsCost     Field = "logisticsCost"
	FieldStorageCost       Field = "storageCost"
	FieldReturnPercent     Field = "returnPercent"
	FieldReturnCostPerUnit Field = "returnCostPerUnit"
	FieldPackagingCost     Field = "packagingCost"
	FieldOtherExpenses     Field = "otherExpenses"
	FieldDeliveryToYouCost Field = "deliveryToYouCost"
)

type bound int

const (
	boundNonNegative bound = iota
	boundPositive
	boundPercent
)

type fieldInfo struct {
	label    string
	bound    bound
	required bool
}

var fieldInfos = map[Field]fieldInfo{
	FieldCostPrice:         {label: "Себестоимость", bound: boundPositive, required: true},
	FieldSellingPrice:      {label: "Цена продажи", bound: boundPositive, required: true},
	FieldCommissionPercent: {label: "Комиссия WB", bound: boundPercent, required: true},
	FieldLogisticsCost:     {label: "Логистика", bound: boundNonNegative, required: true},
	FieldStorageCost:       {label: "Хранение", bound: boundNonNegative, required: true},
	FieldReturnPercent:     {label: "Процент возврата", bound: boundPercent},
	FieldReturnCostPerUnit: {label: "Стоимость возврата", bound: boundNonNegative},
	FieldPackagingCost:     {label: "Упаковка", bound: boundNonNegative},
	FieldOtherExpenses:     {label: "Прочие расходы", bound: boundNonNegative},
	FieldDeliveryToYouCost: {label: "Доставка до вас", bound: boundNonNegative},
}

// Fields lists every input field in canonical order.
var Fields = []Field{
	FieldCostPrice,
	FieldSellingPrice,
	FieldCommissionPercent,
	FieldLogisticsCost,
	FieldStorageCost,
	FieldReturnPercent,
	FieldReturnCostPerUnit,
	FieldPackagingCost,
	FieldOtherExpenses,
	FieldDeliveryToYouCost,
}

func (f Field) Valid() bool {
	_, ok := fieldInfos[f]
	return ok
}

func (f Field) Required() bool {
	return fieldInfos[f].required
}

func (f Field) IsPercent() bool {
	return fieldInfos[f].bound == boundPercent
}

// Label is the human readable (Russian) name of the field.
func (f Field) Label() string {
	if s, ok := fieldInfos[f]; ok {
		return s.label
	}
	return string(f)
}
