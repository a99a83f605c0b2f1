package req

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"wb-margin-bot/pkg/httpx"
)

var (
	json     = jsoniter.ConfigCompatibleWithStandardLibrary         //nolint:gochecknoglobals // skip
	validate = validator.New(validator.WithRequiredStructEnabled()) //nolint:gochecknoglobals // skip
)

// FieldProblem describes one rejected request field.
type FieldProblem struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func Read(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return httpx.BadRequest("Invalid JSON", fmt.Errorf("json.Decode: %w", err))
	}

	// maps and slices carry no validation tags
	if reflect.Indirect(reflect.ValueOf(dest)).Kind() != reflect.Struct {
		return nil
	}

	if err := validate.StructCtx(r.Context(), dest); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			problems := make([]FieldProblem, 0, len(verrs))
			for _, fe := range verrs {
				problems = append(problems, FieldProblem{Field: fe.Field(), Rule: fe.Tag()})
			}
			return &httpx.StatusError{
				Status:  http.StatusBadRequest,
				Message: "Validation error",
				Fields:  problems,
				Err:     err,
			}
		}
		return httpx.BadRequest("Validation error", err)
	}

	return nil
}
