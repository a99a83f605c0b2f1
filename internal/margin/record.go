package margin

import "time"

// Record is the flat history row: input and result side by side.
type Record struct {
	UserID            int64     `db:"user_id" json:"userId"`
	CostPrice         float64   `db:"cost_price" json:"costPrice"`
	SellingPrice      float64   `db:"selling_price" json:"sellingPrice"`
	CommissionPercent float64   `db:"wb_commission" json:"commissionPercent"`
	LogisticsCost     float64   `db:"logistics" json:"logisticsCost"`
	StorageCost       float64   `db:"storage" json:"storageCost"`
	ReturnPercent     float64   `db:"return_percent" json:"returnPercent"`
	ReturnCostPerUnit float64   `db:"return_cost_per_unit" json:"returnCostPerUnit"`
	PackagingCost     float64   `db:"packaging_cost" json:"packagingCost"`
	OtherExpenses     float64   `db:"other_expenses" json:"otherExpenses"`
	DeliveryToYouCost float64   `db:"delivery_cost" json:"deliveryToYouCost"`
	CommissionAmount  float64   `db:"commission_amount" json:"commissionAmount"`
	TotalCosts        float64   `db:"total_costs" json:"totalCosts"`
	Profit            float64   `db:"profit" json:"profit"`
	MarginPercent     float64   `db:"margin_percent" json:"marginPercent"`
	Markup            float64   `db:"markup" json:"markup"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
}

func NewRecord(userID int64, r Result, at time.Time) Record {
	in := r.Input
	return Record{
		UserID:            userID,
		CostPrice:         in.CostPrice,
		SellingPrice:      in.SellingPrice,
		CommissionPercent: in.CommissionPercent,
		LogisticsCost:     in.LogisticsCost,
		StorageCost:       in.StorageCost,
		ReturnPercent:     in.ReturnPercent,
		ReturnCostPerUnit: in.ReturnCostPerUnit,
		PackagingCost:     in.PackagingCost,
		OtherExpenses:     in.OtherExpenses,
		DeliveryToYouCost: in.DeliveryToYouCost,
		CommissionAmount:  r.CommissionAmount,
		TotalCosts:        r.TotalCosts,
		Profit:            r.Profit,
		MarginPercent:     r.MarginPercent,
		Markup:            r.Markup,
		CreatedAt:         at,
	}
}

// Input rebuilds the calculation input stored in the row.
func (rec Record) Input() Input {
	return Input{
		CostPrice:         rec.CostPrice,
		SellingPrice:      rec.SellingPrice,
		CommissionPercent: rec.CommissionPercent,
		LogisticsCost:     rec.LogisticsCost,
		StorageCost:       rec.StorageCost,
		ReturnPercent:     rec.ReturnPercent,
		ReturnCostPerUnit: rec.ReturnCostPerUnit,
		PackagingCost:     rec.PackagingCost,
		OtherExpenses:     rec.OtherExpenses,
		DeliveryToYouCost: rec.DeliveryToYouCost,
	}
}
