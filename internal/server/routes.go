package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"wb-margin-bot/pkg/httpx"
	"wb-margin-bot/pkg/httpx/reply"
)

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/health", s.getHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/categories", func(r chi.Router) {
			r.Get("/", handler(s.getCategories))
			r.Get("/search", handler(s.searchCategories))
			r.Get("/{id}/subjects", handler(s.getSubjects))
		})
		r.Get("/commission/{categoryId}", handler(s.getCommission))

		r.Post("/calculate", handler(s.postCalculate))

		r.Route("/wizard", func(r chi.Router) {
			r.Post("/", handler(s.postWizard))
			r.Get("/{id}", handler(s.getWizard))
			r.Patch("/{id}", handler(s.patchWizard))
			r.Post("/{id}/next", handler(s.postWizardNext))
			r.Post("/{id}/back", handler(s.postWizardBack))
			r.Post("/{id}/calculate", handler(s.postWizardCalculate))
		})
	})

	r.NotFound(handler(func(http.ResponseWriter, *http.Request) error {
		return httpx.NotFound("Not found", nil)
	}))
	r.MethodNotAllowed(handler(func(http.ResponseWriter, *http.Request) error {
		return &httpx.StatusError{Status: http.StatusMethodNotAllowed, Message: "Method not allowed"}
	}))
}

func handler(f func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := f(w, r); err != nil {
			reply.Error(r.Context(), w, err)
		}
	}
}
