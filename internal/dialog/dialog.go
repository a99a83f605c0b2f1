package dialog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"wb-margin-bot/internal/margin"
)

type Step string

const (
	StepIdle Step = "idle"

	// Steps driven by the bot before the field collection starts.
	StepProductName    Step = "product_name"
	StepCategorySelect Step = "category_select"

	StepCostPrice     Step = "cost_price"
	StepSellingPrice  Step = "selling_price"
	StepCommission    Step = "commission"
	StepLogistics     Step = "logistics"
	StepStorage       Step = "storage"
	StepReturnPercent Step = "return_percent"
	StepReturnCost    Step = "return_cost"
	StepComplete      Step = "complete"
)

var stepFields = map[Step]margin.Field{
	StepCostPrice:     margin.FieldCostPrice,
	StepSellingPrice:  margin.FieldSellingPrice,
	StepCommission:    margin.FieldCommissionPercent,
	StepLogistics:     margin.FieldLogisticsCost,
	StepStorage:       margin.FieldStorageCost,
	StepReturnPercent: margin.FieldReturnPercent,
	StepReturnCost:    margin.FieldReturnCostPerUnit,
}

// skippable steps accept the skip button and resolve to 0.
var skippable = map[Step]bool{
	StepStorage:       true,
	StepReturnPercent: true,
	StepReturnCost:    true,
}

var ErrNotCollecting = errors.New("dialog is not collecting a field")

// State is one user's dialogue. It is stored between messages.
type State struct {
	Step         Step         `json:"step"`
	Draft        margin.Draft `json:"draft"`
	ProductName  string       `json:"product_name,omitempty"`
	CategoryID   int          `json:"category_id,omitempty"`
	CategoryName string       `json:"category_name,omitempty"`
	// Prefilled marks a commission taken from the category; its step is skipped.
	Prefilled bool      `json:"prefilled,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s State) Collecting() bool {
	_, ok := stepFields[s.Step]
	return ok
}

func (s State) Field() (margin.Field, bool) {
	f, ok := stepFields[s.Step]
	return f, ok
}

// Outcome describes what one accepted message did.
type Outcome struct {
	// Err is set when the value was rejected; the step did not change.
	Err       *margin.FieldError
	Completed bool
	Input     margin.Input
	Result    margin.Result
}

// Machine walks the ordered field steps. It holds no per-user data.
type Machine struct {
	askReturns bool
	now        func() time.Time
}

func NewMachine(askReturns bool) Machine {
	return Machine{askReturns: askReturns, now: time.Now}
}

// Start enters cost_price. Product and category carry over, and so does a commission
// pre-filled from the category.
func (m Machine) Start(prev State, commission *float64) State {
	st := State{
		Step:         StepCostPrice,
		ProductName:  prev.ProductName,
		CategoryID:   prev.CategoryID,
		CategoryName: prev.CategoryName,
		UpdatedAt:    m.now(),
	}

	if commission != nil {
		if fe := st.Draft.SetValue(margin.FieldCommissionPercent, *commission); fe == nil {
			st.Prefilled = true
		}
	}
	return st
}

// Cancel discards the dialogue from any step.
func (m Machine) Cancel() State {
	return State{Step: StepIdle, UpdatedAt: m.now()}
}

// Accept consumes one message for the current step. Invalid input keeps the step and reports a
// field error. The last valid field computes the result and returns the dialogue to idle.
func (m Machine) Accept(st State, text string) (State, Outcome, error) {
	field, ok := st.Field()
	if !ok {
		return st, Outcome{}, fmt.Errorf("%w: %s", ErrNotCollecting, st.Step)
	}

	if skippable[st.Step] && isSkip(text) {
		text = "0"
	}

	if fe := st.Draft.Set(field, text); fe != nil {
		return st, Outcome{Err: fe}, nil
	}

	st.Step = m.next(st)
	st.UpdatedAt = m.now()

	if st.Step != StepComplete {
		return st, Outcome{}, nil
	}

	in, errs := st.Draft.Input()
	if len(errs) > 0 {
		return st, Outcome{}, fmt.Errorf("%w: %w", margin.ErrInvalidEngineInvocation, errs)
	}

	res, err := margin.Compute(in)
	if err != nil {
		return st, Outcome{}, err
	}

	return State{Step: StepIdle, UpdatedAt: m.now()}, Outcome{
		Completed: true,
		Input:     in,
		Result:    res,
	}, nil
}

func (m Machine) sequence() []Step {
	steps := []Step{StepCostPrice, StepSellingPrice, StepCommission, StepLogistics, StepStorage}
	if m.askReturns {
		steps = append(steps, StepReturnPercent, StepReturnCost)
	}
	return steps
}

func (m Machine) active(st State, step Step) bool {
	switch step {
	case StepCommission:
		return !st.Prefilled
	case StepReturnCost:
		v, _ := st.Draft.Value(margin.FieldReturnPercent)
		return v > 0
	}
	return true
}

func (m Machine) next(st State) Step {
	seq := m.sequence()
	for i, step := range seq {
		if step != st.Step {
			continue
		}
		for _, candidate := range seq[i+1:] {
			if m.active(st, candidate) {
				return candidate
			}
		}
	}
	return StepComplete
}

// Position returns the 1-based number of the current step and the number of steps the dialogue
// will ask in total, for "Шаг N из M" prompts.
func (m Machine) Position(st State) (int, int) {
	n, total := 0, 0
	for _, step := range m.sequence() {
		if !m.active(st, step) {
			continue
		}
		// return_cost is counted only once it becomes relevant
		total++
		if step == st.Step {
			n = total
		}
	}
	return n, total
}

func isSkip(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return strings.Contains(t, "пропуст") || t == "skip" || t == "-"
}
