// Package httpapi is the web embodiment of the checkout: cart and checkout
// endpoints for the signed-in shopper and the gateway return endpoint.
package httpapi

import (
	"net/http"

	"checkout-core/internal/address"
	"checkout-core/internal/checkout"
	"checkout-core/internal/logger"
	"checkout-core/internal/metrics"
	"checkout-core/internal/middleware"
	"checkout-core/internal/order"
	"checkout-core/internal/returnurl"
	"checkout-core/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

type Deps struct {
	Registry  *Registry
	Journal   checkout.Journal
	Addresses address.Book
	Orders    order.Finalizer
	Metrics   *metrics.Checkout
	Limiter   *middleware.RateLimiter
}

type Options struct {
	JWTSecret     string
	GatewaySecret string
	// ReturnRedirect is where /payment/return sends the browser once the
	// outcome is handled. Empty serves a short page instead.
	ReturnRedirect string
	AllowedOrigins []string
}

type Handlers struct {
	deps Deps
}

func NewRouter(deps Deps, opts Options) http.Handler {
	h := &Handlers{deps: deps}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Device-ID"},
		ExposedHeaders:   []string{"Location", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, deps.Metrics.Snapshot())
	})

	r.Group(func(r chi.Router) {
		if deps.Limiter != nil {
			r.Use(deps.Limiter.Middleware)
		}
		r.Method(http.MethodGet, "/payment/return",
			returnurl.NewHandler(returnurl.SinkFunc(h.deliverReturn), opts.GatewaySecret, opts.ReturnRedirect))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(opts.JWTSecret))
		if deps.Limiter != nil {
			r.Use(deps.Limiter.Middleware)
		}

		r.Get("/cart", h.getCart)
		r.Post("/cart/lines", h.addLine)
		r.Put("/cart/lines/{key}", h.setQuantity)
		r.Delete("/cart/lines/{key}", h.removeLine)

		r.Get("/checkout", h.getCheckout)
		r.Post("/checkout/prepare", h.prepare)
		r.Post("/checkout/start", h.start)
		r.Post("/checkout/cancel", h.cancel)
		r.Post("/checkout/retry-finalize/{intentId}", h.retryFinalize)

		r.Get("/orders/{orderId}", h.getOrder)
	})

	return r
}
