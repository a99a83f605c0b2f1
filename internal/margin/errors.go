package margin

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingOrInvalid        = errors.New("missing or invalid")
	ErrOutOfRange              = errors.New("out of range")
	ErrInvalidEngineInvocation = errors.New("compute called with unvalidated input")
)

// FieldError is a recoverable, field-scoped validation failure.
type FieldError struct {
	Field   Field
	Kind    error
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Kind)
}

func (e *FieldError) Unwrap() error {
	return e.Kind
}

// FieldErrors collects every field error found in one validation pass.
type FieldErrors []*FieldError

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Error())
	}
	return strings.Join(parts, "; ")
}

// Lookup returns the error reported for field, if any.
func (e FieldErrors) Lookup(field Field) (*FieldError, bool) {
	for _, fe := range e {
		if fe.Field == field {
			return fe, true
		}
	}
	return nil, false
}

func newFieldError(field Field, kind error) *FieldError {
	return &FieldError{
		Field:   field,
		Kind:    kind,
		Message: messageFor(field, kind),
	}
}

func messageFor(field Field, kind error) string {
	label := field.Label()
	s, ok := fieldInfos[field]
	if !ok {
		return fmt.Sprintf("%s: некорректное значение", label)
	}

	switch {
	case s.bound == boundPercent:
		if errors.Is(kind, ErrOutOfRange) {
			return fmt.Sprintf("%s: процент должен быть от 0 до 100", label)
		}
		return fmt.Sprintf("%s: введите процент числом от 0 до 100, например 15 или 17,5", label)
	case s.bound == boundPositive:
		return fmt.Sprintf("%s: введите число больше 0, например 500 или 499,90", label)
	case errors.Is(kind, ErrOutOfRange):
		return fmt.Sprintf("%s: значение не может быть отрицательным", label)
	default:
		return fmt.Sprintf("%s: введите неотрицательное число, например 50 или 0", label)
	}
}
