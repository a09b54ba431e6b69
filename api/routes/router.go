package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/mandi-backend/api/controllers"
	"github.com/angelmondragon/mandi-backend/api/middleware"
	"github.com/angelmondragon/mandi-backend/internal/catalog"
	"github.com/angelmondragon/mandi-backend/internal/grouporders"
	"github.com/angelmondragon/mandi-backend/internal/orders"
	"github.com/angelmondragon/mandi-backend/pkg/config"
	"github.com/angelmondragon/mandi-backend/pkg/db"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
	"github.com/angelmondragon/mandi-backend/pkg/logger"
	"github.com/angelmondragon/mandi-backend/pkg/metrics"
	"github.com/angelmondragon/mandi-backend/pkg/redis"
)

// RedisDeps is the Redis surface the HTTP layer needs. A nil value disables
// idempotency replay and rate limiting.
type RedisDeps interface {
	redis.IdempotencyStore
	middleware.WindowLimiter
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient RedisDeps,
	httpMetrics *metrics.HTTPMetrics,
	gatherer prometheus.Gatherer,
	catalogService catalog.Service,
	ordersService orders.Service,
	groupOrdersService grouporders.Service,
	deadLetters controllers.DeadLetterLister,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
		middleware.Logging(logg, httpMetrics),
	)

	readyDeps := map[string]controllers.Pinger{"db": dbP}
	var (
		idemStore redis.IdempotencyStore
		limiter   middleware.WindowLimiter
	)
	if redisClient != nil {
		readyDeps["redis"] = redisClient
		idemStore = redisClient
		limiter = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readyDeps, logg))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	idem := middleware.NewIdempotency(idemStore, cfg.FeatureFlags.RequireIdemKey, logg)
	once := idem.Guard(middleware.IdempotencyTTL)
	onceCritical := idem.Guard(middleware.IdempotencyTTLCritical)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(limiter, cfg.HTTP.RateLimit, cfg.HTTP.RateLimitWindow, logg))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(catalogService, logg))
			r.Get("/{productId}", controllers.GetProduct(catalogService, logg))
		})

		r.Route("/supplier/products", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleSupplier, enums.ActorRoleAdmin))
			r.With(once).Post("/", controllers.SupplierCreateProduct(catalogService, logg))
			r.Patch("/{productId}", controllers.SupplierUpdateProduct(catalogService, logg))
			r.Delete("/{productId}", controllers.SupplierRemoveProduct(catalogService, logg))
			r.With(once).Post("/{productId}/stock", controllers.SupplierAdjustStock(catalogService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.ActorRoleVendor), onceCritical).Post("/", controllers.SubmitOrder(ordersService, logg))
			r.Get("/", controllers.ListOrders(ordersService, logg))
			r.Get("/{orderId}", controllers.GetOrder(ordersService, logg))
			r.With(once).Post("/{orderId}/status", controllers.AdvanceOrderStatus(ordersService, logg))
		})
		r.With(middleware.RequireRole(logg, enums.ActorRoleVendor), onceCritical).Post("/checkout", controllers.Checkout(ordersService, logg))

		r.Route("/group-orders", func(r chi.Router) {
			vendorOnly := middleware.RequireRole(logg, enums.ActorRoleVendor)
			r.Get("/", controllers.ListGroupOrders(groupOrdersService, logg))
			r.With(vendorOnly, once).Post("/", controllers.CreateGroupOrder(groupOrdersService, logg))
			r.Get("/{groupOrderId}", controllers.GetGroupOrder(groupOrdersService, logg))
			r.With(vendorOnly, once).Post("/{groupOrderId}/join", controllers.JoinGroupOrder(groupOrdersService, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleVendor, enums.ActorRoleAdmin), once).
				Post("/{groupOrderId}/cancel", controllers.CancelGroupOrder(groupOrdersService, logg))
		})

		r.Route("/admin/group-orders", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
			r.With(once).Post("/{groupOrderId}/settlement/retry", controllers.RetrySettlement(groupOrdersService, logg))
			r.Get("/{groupOrderId}/settlement/failures", controllers.ListSettlementFailures(groupOrdersService, logg))
		})
		r.With(middleware.RequireRole(logg, enums.ActorRoleAdmin)).
			Get("/admin/outbox/dead-letters", controllers.ListDeadLetters(deadLetters, logg))
	})

	return r
}
