package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/jcmexdev/marketplace-gateway/internal/api-gateway/infra/httpx/middlewares"
	"github.com/jcmexdev/marketplace-gateway/internal/pkg/observability"
)

type RouterOptions struct {
	// Metrics enables request metrics and the /metrics endpoint.
	Metrics *observability.Metrics
	// RateLimitPerMinute caps requests per client IP; 0 disables the limit.
	RateLimitPerMinute int
	// RequestTimeout bounds each request, including receipt waits.
	RequestTimeout time.Duration
}

func NewRouter(handler *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachTracingMetadata)
	r.Use(middlewares.RequestLogger)
	r.Use(recoverer)
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/healthz", handler.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if opts.RateLimitPerMinute > 0 {
			r.Use(httprate.Limit(opts.RateLimitPerMinute, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(rateLimited),
			))
		}
		if opts.RequestTimeout > 0 {
			r.Use(requestTimeout(opts.RequestTimeout))
		}
		r.Use(opts.Metrics.Middleware)

		r.Post("/product/create", handler.CreateProduct)
		r.Post("/product/update", handler.UpdateProduct)
		r.Post("/product/purchase", handler.PurchaseProduct)
		r.Get("/product/{id}", handler.GetProduct)
		r.Get("/seller/products", handler.SellerProducts)
		r.Get("/orders/{buyer}", handler.OrdersOf)
		r.Get("/buyer/orders", handler.BuyerOrders)
		r.Get("/port", handler.Port)
	})
	return r
}
