package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"wb-margin-bot/internal/category"
	"wb-margin-bot/pkg/contextx"
	"wb-margin-bot/pkg/httpx"
	"wb-margin-bot/pkg/httpx/reply"
	"wb-margin-bot/pkg/metrics"
)

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	reply.JSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok", Timestamp: s.now().UTC()})
}

func (s *Server) getCategories(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	cats, err := s.categories.ListParentCategories(ctx)
	if err != nil {
		return upstreamError("Не удалось получить категории", "categories", err)
	}

	reply.List(ctx, w, cats)

	return nil
}

func (s *Server) searchCategories(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	cats, err := s.categories.SearchByName(ctx, r.URL.Query().Get("name"))
	if errors.Is(err, category.ErrQueryTooShort) {
		return httpx.BadRequest(
			fmt.Sprintf("Название товара должно содержать минимум %d символа", category.MinQueryLength),
			err,
		)
	}
	if err != nil {
		return upstreamError("Не удалось выполнить поиск категорий", "search", err)
	}

	reply.List(ctx, w, cats)

	return nil
}

func (s *Server) getSubjects(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	id, err := pathID(r, "id")
	if err != nil {
		return err
	}

	cats, err := s.categories.Subjects(ctx, id)
	if err != nil {
		return upstreamError("Не удалось получить подкатегории", "subjects", err)
	}

	reply.List(ctx, w, cats)

	return nil
}

// getCommission never fails on upstream errors; the default commission is returned as fallback.
func (s *Server) getCommission(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	id, err := pathID(r, "categoryId")
	if err != nil {
		return err
	}

	commission, err := s.categories.Commission(ctx, id)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("commission").Inc()
		contextx.LoggerFromContextOrDefault(ctx).Warn("commission lookup failed, using default",
			zap.Int("category_id", id),
			zap.Error(err))
	}

	reply.OK(ctx, w, commission)

	return nil
}

func pathID(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)

	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, httpx.BadRequest(fmt.Sprintf("Некорректный идентификатор категории: %q", raw), err)
	}
	return id, nil
}

func upstreamError(message, operation string, err error) error {
	if errors.Is(err, category.ErrUpstreamLookupFailed) {
		metrics.UpstreamErrors.WithLabelValues(operation).Inc()
		return httpx.BadGateway(message, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}
