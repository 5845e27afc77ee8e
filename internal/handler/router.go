package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/bol-fulfillment/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса комплектации.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			if h.authMiddleware != nil {
				r.Use(h.authMiddleware.Middleware)
			}

			r.Post("/orders/fetch", h.FetchOrders)
			r.Get("/orders", h.ListOrders)
			r.Post("/orders/{orderID}/pick", h.PickItem)
			r.Post("/orders/{orderID}/ship", h.ShipOrder)

			r.Get("/picking", h.PickingList)
			r.Get("/picking/export", h.ExportPickingList)

			r.Get("/labels/{tracking}", h.Label)

			r.Post("/prices/update", h.StartPriceUpdate)
			r.Get("/prices/progress", h.PriceProgress)
			r.Get("/prices/reports", h.Reports)
			r.Get("/prices/reports/{name}", h.Report)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
