package reply

import (
	"context"
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"wb-margin-bot/pkg/contextx"
	"wb-margin-bot/pkg/httpx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // skip

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Count   *int   `json:"count,omitempty"`
	Error   string `json:"error,omitempty"`
	Fields  any    `json:"fields,omitempty"`
	TraceID string `json:"traceId,omitempty"`
}

func JSON(ctx context.Context, w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger(ctx).Error("json.Encode", zap.Error(err))
	}
}

func OK(ctx context.Context, w http.ResponseWriter, data any) {
	JSON(ctx, w, http.StatusOK, Envelope{Success: true, Data: data})
}

func Created(ctx context.Context, w http.ResponseWriter, data any) {
	JSON(ctx, w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// List replies with data and its count.
func List[T any](ctx context.Context, w http.ResponseWriter, data []T) {
	if data == nil {
		data = []T{}
	}
	count := len(data)
	JSON(ctx, w, http.StatusOK, Envelope{Success: true, Data: data, Count: &count})
}

func Error(ctx context.Context, w http.ResponseWriter, err error) {
	response := Envelope{
		Error:   "Internal server error",
		TraceID: traceID(ctx),
	}
	status := http.StatusInternalServerError

	var se *httpx.StatusError
	if errors.As(err, &se) {
		status = se.Status
		response.Error = se.Message
		response.Fields = se.Fields
	}

	if status >= http.StatusInternalServerError {
		logger(ctx).Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		logger(ctx).Info("request rejected", zap.Int("status", status), zap.Error(err))
	}

	JSON(ctx, w, status, response)
}

func traceID(ctx context.Context) string {
	traceID, err := contextx.TraceIDFromContext(ctx)
	if err != nil {
		return ""
	}

	return traceID.String()
}
