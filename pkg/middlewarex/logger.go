package middlewarex

import (
	"net/http"

	"go.uber.org/zap"

	"wb-margin-bot/pkg/contextx"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

// Logger puts a request scoped logger into the context.
func Logger(base *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			traceID, err := contextx.TraceIDFromContext(ctx)
			if err != nil {
				base.Error("contextx.TraceIDFromContext", zap.Error(err))
			}

			ctx = contextx.WithLogger(
				ctx,
				base.With(
					zap.Stringer("trace_id", traceID),
					zap.Stringer("url", r.URL),
					zap.String("method", r.Method),
					zap.String("ip", r.RemoteAddr),
				),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
