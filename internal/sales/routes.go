package sales

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.Create)
	r.Get("/sales/{id}", h.Show)
	r.Post("/sales/{id}/cancel", h.Cancel)
}
