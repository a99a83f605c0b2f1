package server

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"wb-margin-bot/internal/margin"
	"wb-margin-bot/pkg/contextx"
	"wb-margin-bot/pkg/httpx"
	"wb-margin-bot/pkg/httpx/reply"
	"wb-margin-bot/pkg/httpx/req"
	"wb-margin-bot/pkg/metrics"
)

const validationMessage = "Проверьте введенные данные"

func (s *Server) postCalculate(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var body map[string]any
	if err := req.Read(r, &body); err != nil {
		return fmt.Errorf("req.Read: %w", err)
	}

	raw, errs := toRaw(body)
	in, validationErrs := margin.Validate(raw)
	errs = mergeFieldErrors(errs, validationErrs)
	if len(errs) > 0 {
		return httpx.Unprocessable(validationMessage, newFieldErrorDTOs(errs), errs)
	}

	result, err := margin.Compute(in)
	if err != nil {
		contextx.LoggerFromContextOrDefault(ctx).Error("compute after validate", zap.Error(err))
		return fmt.Errorf("margin.Compute: %w", err)
	}

	metrics.Calculations.WithLabelValues("api").Inc()
	reply.OK(ctx, w, result)

	return nil
}
