package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	custommiddleware "github.com/mmeshcher/zapshift-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса доставки посылок.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/", h.Live)

	r.Route("/parcels", func(r chi.Router) {
		r.Get("/", h.ListParcels)
		r.Post("/", h.CreateParcel)
		r.Get("/{id}", h.GetParcel)
		r.Delete("/{id}", h.DeleteParcel)
	})

	// Старый и текущий маршруты создания чекаут-сессии обслуживаются
	// одним обработчиком с единой конвенцией минимальных единиц валюты.
	r.Post("/create-checkout-session", h.CreateCheckoutSession)
	r.Post("/payment-checkout-session", h.CreateCheckoutSession)

	r.Patch("/payment-success", h.ConfirmPayment)

	r.Get("/payments", h.ListPayments)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
