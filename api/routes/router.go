package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/planmint/planmint-backend/api/controllers"
	webhookcontrollers "github.com/planmint/planmint-backend/api/controllers/webhooks"
	"github.com/planmint/planmint-backend/api/middleware"
	"github.com/planmint/planmint-backend/internal/aiplan"
	"github.com/planmint/planmint-backend/internal/billing"
	"github.com/planmint/planmint-backend/internal/content"
	"github.com/planmint/planmint-backend/internal/entitlements"
	"github.com/planmint/planmint-backend/internal/plans"
	"github.com/planmint/planmint-backend/internal/products"
	"github.com/planmint/planmint-backend/internal/usage"
	"github.com/planmint/planmint-backend/internal/users"
	razorpaywebhook "github.com/planmint/planmint-backend/internal/webhooks/razorpay"
	"github.com/planmint/planmint-backend/pkg/config"
	"github.com/planmint/planmint-backend/pkg/db"
	"github.com/planmint/planmint-backend/pkg/enums"
	"github.com/planmint/planmint-backend/pkg/logger"
	"github.com/planmint/planmint-backend/pkg/razorpay"
)

// RedisStore is the subset of the redis client the router touches directly:
// health checks and rate-limit counters.
type RedisStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    RedisStore
	Razorpay *razorpay.Client

	UsersRepo       users.Repository
	Resolver        *entitlements.Resolver
	ProductsService *products.Service
	BillingService  *billing.Service
	PlansService    *plans.Service
	AIPlanService   *aiplan.Service
	UsageService    *usage.Service
	ContentService  *content.Service

	WebhookService *razorpaywebhook.Service
	WebhookGuard   *razorpaywebhook.IdempotencyGuard
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	webhookPolicy := middleware.NewRateLimitPolicy("webhook", cfg.RateLimit.WebhookWindow, cfg.RateLimit.WebhookIPLimit, 0)
	aiPolicy := middleware.NewRateLimitPolicy("ai", cfg.RateLimit.AIWindow, cfg.RateLimit.AIIPLimit, cfg.RateLimit.AIUserLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, deps.Redis))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, deps.Redis, logg)).
			Post("/razorpay", webhookcontrollers.RazorpayWebhook(deps.WebhookService, deps.Razorpay, deps.WebhookGuard, logg))
	})

	r.Route("/api/v1/content", func(r chi.Router) {
		r.With(middleware.OptionalAuth(cfg.JWT, logg)).
			Get("/{type}", controllers.ContentPublic(deps.ContentService, deps.Resolver, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Post("/auth/sync", controllers.AuthSync(deps.UsersRepo, logg))

		r.Get("/entitlements", controllers.Entitlements(deps.Resolver, logg))

		r.Route("/billing", func(r chi.Router) {
			r.Get("/products", controllers.BillingProducts(deps.ProductsService, logg))
			r.Post("/orders", controllers.BillingCheckout(deps.BillingService, logg))
			r.Post("/verify", controllers.BillingVerify(deps.BillingService, logg))
			r.Get("/subscription", controllers.BillingSubscription(deps.BillingService, logg))
			r.Delete("/subscription", controllers.BillingCancelSubscription(deps.BillingService, logg))
		})

		r.Route("/plans", func(r chi.Router) {
			r.Get("/", controllers.PlansList(deps.PlansService, logg))
			r.Post("/", controllers.PlansCreate(deps.PlansService, logg))
			r.Post("/import", controllers.PlansImport(deps.PlansService, logg))
			r.Get("/{planID}", controllers.PlansGet(deps.PlansService, logg))
			r.Delete("/{planID}", controllers.PlansDelete(deps.PlansService, logg))
		})

		r.With(middleware.RateLimit(aiPolicy, deps.Redis, logg)).
			Post("/ai/plan", controllers.AIGeneratePlan(deps.AIPlanService, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin.String(), logg))

		r.Route("/users", func(r chi.Router) {
			r.Get("/", controllers.AdminUsersList(deps.UsersRepo, logg))
			r.Patch("/{userID}/tier", controllers.AdminUpdateUserTier(deps.UsersRepo, logg))
			r.Patch("/{userID}/role", controllers.AdminUpdateUserRole(deps.UsersRepo, logg))
			r.Post("/{userID}/ai-reset", controllers.AdminResetAIUsage(deps.UsageService, logg))
			r.Post("/{userID}/grant", controllers.AdminGrantProduct(deps.BillingService, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.AdminProductsList(deps.ProductsService, logg))
			r.Post("/", controllers.AdminCreateProduct(deps.ProductsService, logg))
			r.Patch("/{productID}", controllers.AdminDeactivateProduct(deps.ProductsService, logg))
			r.Post("/{productID}/features", controllers.AdminSetProductFeature(deps.ProductsService, logg))
			r.Delete("/{productID}/features/{featureID}", controllers.AdminRemoveProductFeature(deps.ProductsService, logg))
		})

		r.Route("/content", func(r chi.Router) {
			r.Get("/", controllers.AdminContentList(deps.ContentService, logg))
			r.Post("/", controllers.AdminContentCreate(deps.ContentService, logg))
			r.Patch("/{entryID}", controllers.AdminContentUpdate(deps.ContentService, logg))
			r.Post("/{entryID}/publish", controllers.AdminContentPublish(deps.ContentService, logg))
			r.Delete("/{entryID}", controllers.AdminContentDelete(deps.ContentService, logg))
		})

		r.Post("/features", controllers.AdminCreateFeature(deps.ProductsService, logg))
		r.Get("/orders", controllers.AdminOrdersList(deps.BillingService, logg))
	})

	return r
}
