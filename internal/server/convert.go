package server

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"wb-margin-bot/internal/margin"
)

type fieldErrorDTO struct {
	Field   string `json:"field"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func newFieldErrorDTOs(errs margin.FieldErrors) []fieldErrorDTO {
	out := make([]fieldErrorDTO, 0, len(errs))
	for _, fe := range errs {
		out = append(out, fieldErrorDTO{
			Field:   string(fe.Field),
			Kind:    kindName(fe.Kind),
			Message: fe.Message,
		})
	}
	return out
}

func kindName(err error) string {
	switch {
	case errors.Is(err, margin.ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, margin.ErrPageLocked):
		return "page_locked"
	default:
		return "missing_or_invalid"
	}
}

// rawValue turns a JSON scalar into the text the engine parser accepts.
func rawValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}

func invalidValue(field margin.Field) *margin.FieldError {
	return &margin.FieldError{
		Field:   field,
		Kind:    margin.ErrMissingOrInvalid,
		Message: fmt.Sprintf("%s: ожидается число или строка", field.Label()),
	}
}

// toRaw converts a request body into raw engine input. Unknown or non scalar fields are reported.
func toRaw(body map[string]any) (margin.Raw, margin.FieldErrors) {
	raw := make(margin.Raw, len(body))
	var errs margin.FieldErrors

	for _, key := range sortedKeys(body) {
		field := margin.Field(key)
		if !field.Valid() {
			errs = append(errs, &margin.FieldError{
				Field:   field,
				Kind:    margin.ErrMissingOrInvalid,
				Message: fmt.Sprintf("Неизвестное поле %q", key),
			})
			continue
		}

		text, ok := rawValue(body[key])
		if !ok {
			errs = append(errs, invalidValue(field))
			continue
		}
		raw[field] = text
	}

	return raw, errs
}

// mergeFieldErrors appends the errors of more for fields that errs does not report yet.
func mergeFieldErrors(errs, more margin.FieldErrors) margin.FieldErrors {
	for _, fe := range more {
		if _, ok := errs.Lookup(fe.Field); !ok {
			errs = append(errs, fe)
		}
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
