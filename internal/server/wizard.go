package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"wb-margin-bot/internal/margin"
	"wb-margin-bot/internal/session"
	"wb-margin-bot/pkg/contextx"
	"wb-margin-bot/pkg/httpx"
	"wb-margin-bot/pkg/httpx/reply"
	"wb-margin-bot/pkg/httpx/req"
	"wb-margin-bot/pkg/metrics"
)

type wizardPatchRequest struct {
	ProductName  *string        `json:"productName" validate:"omitempty,max=200"`
	CategoryID   *int           `json:"categoryId" validate:"omitempty,gt=0"`
	CategoryName string         `json:"categoryName" validate:"max=200"`
	Fields       map[string]any `json:"fields" validate:"omitempty,max=16"`
}

type wizardResultResponse struct {
	Wizard *margin.Wizard `json:"wizard"`
	Result margin.Result  `json:"result"`
}

func (s *Server) postWizard(w http.ResponseWriter, r *http.Request) error {
	reply.Created(r.Context(), w, s.wizards.Create())

	return nil
}

func (s *Server) getWizard(w http.ResponseWriter, r *http.Request) error {
	wz, err := s.wizards.Get(chi.URLParam(r, "id"))
	if err != nil {
		return wizardError(err)
	}

	reply.OK(r.Context(), w, wz)

	return nil
}

func (s *Server) patchWizard(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var request wizardPatchRequest
	if err := req.Read(r, &request); err != nil {
		return fmt.Errorf("req.Read: %w", err)
	}

	// the lookup happens before the wizard is locked
	var commission *float64
	if request.CategoryID != nil {
		c, err := s.categories.Commission(ctx, *request.CategoryID)
		if err != nil {
			metrics.UpstreamErrors.WithLabelValues("commission").Inc()
			contextx.LoggerFromContextOrDefault(ctx).Warn("commission lookup failed, wizard keeps defaults",
				zap.Int("category_id", *request.CategoryID),
				zap.Error(err))
		}
		if !c.Fallback {
			commission = &c.Percent
		}
	}

	wz, err := s.wizards.Update(id, func(wz *margin.Wizard) error {
		if request.ProductName != nil {
			wz.SetProduct(*request.ProductName)
		}
		if request.CategoryID != nil {
			if err := wz.SetCategory(*request.CategoryID, request.CategoryName, commission); err != nil {
				return err
			}
		}
		return applyFields(wz, request.Fields)
	})
	if err != nil {
		return wizardError(err)
	}

	reply.OK(ctx, w, wz)

	return nil
}

// applyFields sets every field it can and reports the rest together.
func applyFields(wz *margin.Wizard, fields map[string]any) error {
	var errs margin.FieldErrors

	for _, key := range sortedKeys(fields) {
		field := margin.Field(key)

		text, ok := rawValue(fields[key])
		if !ok {
			errs = append(errs, invalidValue(field))
			continue
		}

		err := wz.Set(field, text)
		var fe *margin.FieldError
		switch {
		case err == nil:
		case errors.As(err, &fe):
			errs = append(errs, fe)
		case errors.Is(err, margin.ErrPageLocked):
			errs = append(errs, &margin.FieldError{
				Field:   field,
				Kind:    margin.ErrPageLocked,
				Message: fmt.Sprintf("%s: сначала заполните предыдущие шаги", field.Label()),
			})
		default:
			return err
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (s *Server) postWizardNext(w http.ResponseWriter, r *http.Request) error {
	wz, err := s.wizards.Update(chi.URLParam(r, "id"), func(wz *margin.Wizard) error {
		return wz.Next()
	})
	if err != nil {
		return wizardError(err)
	}

	reply.OK(r.Context(), w, wz)

	return nil
}

func (s *Server) postWizardBack(w http.ResponseWriter, r *http.Request) error {
	wz, err := s.wizards.Update(chi.URLParam(r, "id"), func(wz *margin.Wizard) error {
		wz.Back()
		return nil
	})
	if err != nil {
		return wizardError(err)
	}

	reply.OK(r.Context(), w, wz)

	return nil
}

func (s *Server) postWizardCalculate(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	wz, err := s.wizards.Get(chi.URLParam(r, "id"))
	if err != nil {
		return wizardError(err)
	}

	result, err := wz.Calculate()
	if errors.Is(err, margin.ErrInvalidEngineInvocation) {
		contextx.LoggerFromContextOrDefault(ctx).Error("wizard compute", zap.Error(err))
		return fmt.Errorf("wizard.Calculate: %w", err)
	}
	if err != nil {
		return wizardError(err)
	}

	metrics.Calculations.WithLabelValues("wizard").Inc()
	reply.OK(ctx, w, wizardResultResponse{Wizard: wz, Result: result})

	return nil
}

func wizardError(err error) error {
	var errs margin.FieldErrors
	var fe *margin.FieldError

	switch {
	case errors.Is(err, session.ErrWizardNotFound):
		return httpx.NotFound("Мастер расчета не найден или устарел", err)
	case errors.As(err, &errs):
		return httpx.Unprocessable(validationMessage, newFieldErrorDTOs(errs), err)
	case errors.As(err, &fe):
		return httpx.Unprocessable(validationMessage, newFieldErrorDTOs(margin.FieldErrors{fe}), err)
	case errors.Is(err, margin.ErrLastPage), errors.Is(err, margin.ErrNotReady):
		return httpx.BadRequest(err.Error(), err)
	default:
		return err
	}
}
