package margin

import (
	"errors"
	"strings"
)

// Page is a wizard page number, 1 to 4.
type Page int

const (
	PageProduct Page = iota + 1
	PageCosts
	PageFees
	PagePrice
)

// FieldProductName is the page-1 text field. It is not an engine input.
const FieldProductName Field = "productName"

var (
	ErrPageLocked = errors.New("page has not been reached yet")
	ErrLastPage   = errors.New("already on the last page")
	ErrNotReady   = errors.New("calculation is available on the last page only")
)

var pageFields = map[Page][]Field{
	PageCosts: {FieldCostPrice, FieldDeliveryToYouCost, FieldPackagingCost, FieldOtherExpenses},
	PageFees:  {FieldCommissionPercent, FieldLogisticsCost, FieldStorageCost, FieldReturnPercent, FieldReturnCostPerUnit},
	PagePrice: {FieldSellingPrice},
}

// PageOf reports the wizard page an engine field lives on.
func PageOf(field Field) (Page, bool) {
	for page, fields := range pageFields {
		for _, f := range fields {
			if f == field {
				return page, true
			}
		}
	}
	return 0, false
}

// WizardDefaults pre-fill page 3 when it is first entered.
type WizardDefaults struct {
	CommissionPercent float64 `json:"commissionPercent"`
	StorageCost       float64 `json:"storageCost"`
}

// Wizard is the four page form: product and category, acquisition costs, marketplace fees, selling
// price. Pages can be revisited; changing page 1 invalidates everything after it.
type Wizard struct {
	ID           string         `json:"id"`
	Page         Page           `json:"page"`
	Furthest     Page           `json:"furthest"`
	ProductName  string         `json:"productName"`
	CategoryID   int            `json:"categoryId,omitempty"`
	CategoryName string         `json:"categoryName,omitempty"`
	Draft        Draft          `json:"draft"`
	Defaults     WizardDefaults `json:"defaults"`
}

func NewWizard(id string, defaults WizardDefaults) *Wizard {
	return &Wizard{
		ID:       id,
		Page:     PageProduct,
		Furthest: PageProduct,
		Defaults: defaults,
	}
}

// SetProduct changes the product name. A different name drops the category and pages 2-4.
func (w *Wizard) SetProduct(name string) {
	name = strings.TrimSpace(name)
	if name == w.ProductName {
		return
	}

	w.ProductName = name
	w.CategoryID = 0
	w.CategoryName = ""
	w.resetDownstream()
}

// SetCategory selects a category. Categories are compared by id: the same id only refreshes a
// non-empty name and keeps every entered value. A different category drops pages 2-4 and a known
// commission is then pre-filled.
func (w *Wizard) SetCategory(id int, name string, commission *float64) error {
	if id == w.CategoryID {
		if name != "" {
			w.CategoryName = name
		}
		return nil
	}

	w.CategoryID = id
	w.CategoryName = name
	w.resetDownstream()

	if commission != nil {
		if fe := w.Draft.SetValue(FieldCommissionPercent, *commission); fe != nil {
			return fe
		}
	}
	return nil
}

func (w *Wizard) resetDownstream() {
	w.Draft.Reset()
	w.Page = PageProduct
	w.Furthest = PageProduct
}

// Set edits an engine field on any page that has already been reached.
func (w *Wizard) Set(field Field, text string) error {
	page, ok := PageOf(field)
	if !ok {
		return newFieldError(field, ErrMissingOrInvalid)
	}
	if page > w.Furthest {
		return ErrPageLocked
	}

	if fe := w.Draft.Set(field, text); fe != nil {
		return fe
	}
	return nil
}

// Next validates the current page and moves forward. On failure the page does not change.
func (w *Wizard) Next() error {
	if w.Page >= PagePrice {
		return ErrLastPage
	}

	if errs := w.checkPage(w.Page); len(errs) > 0 {
		return errs
	}

	w.Page++
	if w.Page > w.Furthest {
		w.Furthest = w.Page
	}
	if w.Page == PageFees {
		w.applyFeeDefaults()
	}
	return nil
}

// Back moves one page back; on page 1 it does nothing.
func (w *Wizard) Back() {
	if w.Page > PageProduct {
		w.Page--
	}
}

// Calculate runs the engine once every page is complete.
func (w *Wizard) Calculate() (Result, error) {
	if w.Page != PagePrice {
		return Result{}, ErrNotReady
	}

	for page := PageProduct; page <= PagePrice; page++ {
		if errs := w.checkPage(page); len(errs) > 0 {
			return Result{}, errs
		}
	}

	in, errs := w.Draft.Input()
	if len(errs) > 0 {
		return Result{}, errs
	}
	return Compute(in)
}

func (w *Wizard) checkPage(page Page) FieldErrors {
	var errs FieldErrors

	if page == PageProduct {
		if w.ProductName == "" {
			errs = append(errs, &FieldError{
				Field:   FieldProductName,
				Kind:    ErrMissingOrInvalid,
				Message: "Название товара: введите название",
			})
		}
		return errs
	}

	for _, field := range pageFields[page] {
		if field.Required() && !w.Draft.Has(field) {
			errs = append(errs, newFieldError(field, ErrMissingOrInvalid))
		}
	}
	return errs
}

func (w *Wizard) applyFeeDefaults() {
	if !w.Draft.Has(FieldCommissionPercent) {
		_ = w.Draft.SetValue(FieldCommissionPercent, w.Defaults.CommissionPercent)
	}
	if !w.Draft.Has(FieldStorageCost) {
		_ = w.Draft.SetValue(FieldStorageCost, w.Defaults.StorageCost)
	}
}
