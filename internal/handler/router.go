package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/confmerch-system/internal/middleware"
)

// SetupRouter настраивает маршруты API сервиса заказов.
func SetupRouter(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.GzipMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.ListCatalog)
		r.Get("/events/{slug}", func(w http.ResponseWriter, req *http.Request) {
			h.GetEventBySlug(w, req, chi.URLParam(req, "slug"))
		})
		r.Post("/orders", h.SubmitOrder)
		r.Post("/orders/preview", h.PreviewCost)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Get("/orders", h.ListOrders)
				r.Get("/orders/{id}", func(w http.ResponseWriter, req *http.Request) {
					h.GetOrder(w, req, chi.URLParam(req, "id"))
				})
				r.Put("/orders/{id}", func(w http.ResponseWriter, req *http.Request) {
					h.EditOrder(w, req, chi.URLParam(req, "id"))
				})
				r.Patch("/orders/{id}/status", func(w http.ResponseWriter, req *http.Request) {
					h.UpdateOrderStatus(w, req, chi.URLParam(req, "id"))
				})

				r.Get("/products", h.ListProducts)
				r.Post("/products", h.CreateProduct)
				r.Put("/products/{id}", withInt64Param(h, "id", h.UpdateProduct))

				r.Get("/events", h.ListEvents)
				r.Post("/events", h.CreateEvent)
				r.Put("/events/{id}", withInt64Param(h, "id", h.UpdateEvent))

				r.Get("/users", h.ListUsers)
				r.Post("/users", h.CreateUser)
				r.Put("/users/{id}/permissions", withInt64Param(h, "id", h.UpdateUserPermissions))
			})
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

func withInt64Param(h *Handler, name string, fn func(http.ResponseWriter, *http.Request, int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		fn(w, r, id)
	}
}
