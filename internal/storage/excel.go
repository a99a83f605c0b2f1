package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
)

const historySheet = "Расчеты"

var historyHeaders = []string{
	"ID", "Дата", "Себестоимость", "Цена продажи", "Комиссия WB, %", "Логистика", "Хранение",
	"Возвраты, %", "Стоимость возврата", "Упаковка", "Прочие расходы", "Доставка до вас",
	"Комиссия WB, ₽", "Итого затрат", "Прибыль", "Маржа, %", "Наценка, %",
}

// ExportCalculations writes the user's history into dir and returns the file path.
func ExportCalculations(dir string, userID int64, calcs []Calculation, now time.Time) (string, error) {
	const operation = "storage.ExportCalculations"

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return "", fmt.Errorf("%s: failed to name sheet: %w", operation, err)
	}

	for col, header := range historyHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(historySheet, cell, header)
	}

	for row, c := range calcs {
		data := []any{
			c.ID,
			c.CreatedAt.Format("2006-01-02 15:04"),
			c.CostPrice,
			c.SellingPrice,
			c.CommissionPercent,
			c.LogisticsCost,
			c.StorageCost,
			c.ReturnPercent,
			c.ReturnCostPerUnit,
			c.PackagingCost,
			c.OtherExpenses,
			c.DeliveryToYouCost,
			c.CommissionAmount,
			c.TotalCosts,
			c.Profit,
			c.MarginPercent,
			c.Markup,
		}
		for col, value := range data {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(historySheet, cell, value)
		}
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return "", fmt.Errorf("%s: failed to create style: %w", operation, err)
	}
	last, _ := excelize.CoordinatesToCellName(len(historyHeaders), 1)
	f.SetCellStyle(historySheet, "A1", last, style)
	f.SetColWidth(historySheet, "A", "Q", 16)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%s: failed to create reports directory: %w", operation, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("calculations_%d_%s.xlsx", userID, now.Format("20060102_150405")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("%s: failed to save Excel file: %w", operation, err)
	}

	return path, nil
}
