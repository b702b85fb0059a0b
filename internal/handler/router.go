package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/lombard-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса ломбарда.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(custommiddleware.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/loans", h.CreateLoan)
			r.Get("/loans", h.GetLoans)
			r.Get("/loans/overdue", h.GetOverdueLoans)
			r.Get("/loans/{id}", h.GetLoan)
			r.Post("/loans/{id}/close", h.CloseLoan)

			r.Get("/customers/{customerID}/loans", h.GetCustomerLoans)

			r.Get("/rates/gold", h.GetGoldRate)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
