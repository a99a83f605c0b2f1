package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"wb-margin-bot/internal/category"
	"wb-margin-bot/internal/margin"
	"wb-margin-bot/pkg/middlewarex"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

type categoryService interface {
	ListParentCategories(ctx context.Context) ([]category.Category, error)
	Subjects(ctx context.Context, parentID int) ([]category.Category, error)
	SearchByName(ctx context.Context, name string) ([]category.Category, error)
	Commission(ctx context.Context, categoryID int) (category.Commission, error)
}

type wizardStore interface {
	Create() *margin.Wizard
	Get(id string) (*margin.Wizard, error)
	Update(id string, fn func(w *margin.Wizard) error) (*margin.Wizard, error)
}

type Options struct {
	Addr        string
	CORSOrigins []string
}

// Server is the HTTP API of the mini app: category proxy, one shot calculation and the wizard.
type Server struct {
	categories categoryService
	wizards    wizardStore
	opts       Options
	logger     *zap.Logger
	now        func() time.Time
}

func New(categories categoryService, wizards wizardStore, opts Options, logger *zap.Logger) *Server {
	return &Server{
		categories: categories,
		wizards:    wizards,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(
		middlewarex.TraceID,
		middlewarex.Logger(s.logger),
		middlewarex.Recovery,
		middlewarex.Metrics,
		cors.Handler(cors.Options{
			AllowedOrigins:   s.opts.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Trace-Id"},
			ExposedHeaders:   []string{"X-Trace-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
	)

	s.RegisterRoutes(r)

	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout) //nolint:govet
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("server.Shutdown", zap.Error(err))
		}
	}()

	s.logger.Info("http server started", zap.String("address", s.opts.Addr))

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("httpServer.ListenAndServe: %w", err)
	}

	s.logger.Info("http server stopped", zap.String("address", s.opts.Addr))

	return nil
}
