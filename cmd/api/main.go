package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/planmint/planmint-backend/api"
	"github.com/planmint/planmint-backend/api/routes"
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
	"github.com/planmint/planmint-backend/pkg/genai"
	"github.com/planmint/planmint-backend/pkg/logger"
	"github.com/planmint/planmint-backend/pkg/migrate"
	"github.com/planmint/planmint-backend/pkg/razorpay"
	"github.com/planmint/planmint-backend/pkg/redis"
	"github.com/planmint/planmint-backend/pkg/seed"
)

const webhookGuardScope = "razorpay_webhook"

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}
	if cfg.FeatureFlags.SeedCatalog {
		if err := seed.Catalog(ctx, dbClient.DB(), logg); err != nil {
			logg.Error(ctx, "failed to seed product catalog", err)
			os.Exit(1)
		}
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	razorpayClient, err := razorpay.NewClient(ctx, cfg.Razorpay, logg)
	if err != nil {
		logg.Error(ctx, "failed to create razorpay client", err)
		os.Exit(1)
	}
	geminiClient, err := genai.NewClient(ctx, cfg.Gemini, logg)
	if err != nil {
		logg.Error(ctx, "failed to create gemini client", err)
		os.Exit(1)
	}

	gdb := dbClient.DB()
	usersRepo := users.NewRepository(gdb)
	billingRepo := billing.NewRepository(gdb)
	plansRepo := plans.NewRepository(gdb)

	productsSvc, err := products.NewService(products.ServiceParams{
		Repo: products.NewRepository(gdb),
	})
	if err != nil {
		logg.Error(ctx, "failed to create products service", err)
		os.Exit(1)
	}
	resolver, err := entitlements.NewResolver(entitlements.ResolverParams{
		Users:         usersRepo,
		Subscriptions: billingRepo,
		Plans:         plansRepo,
	})
	if err != nil {
		logg.Error(ctx, "failed to create entitlement resolver", err)
		os.Exit(1)
	}
	billingSvc, err := billing.NewService(billing.ServiceParams{
		Repo:              billingRepo,
		Users:             usersRepo,
		Products:          productsSvc,
		Payments:          razorpayClient,
		TransactionRunner: dbClient,
		Logger:            logg,
		GrantWindow:       time.Duration(cfg.Billing.GrantWindowDays) * 24 * time.Hour,
	})
	if err != nil {
		logg.Error(ctx, "failed to create billing service", err)
		os.Exit(1)
	}
	plansSvc, err := plans.NewService(plans.ServiceParams{
		Repo:              plansRepo,
		Entitlements:      resolver,
		TransactionRunner: dbClient,
	})
	if err != nil {
		logg.Error(ctx, "failed to create plans service", err)
		os.Exit(1)
	}
	usageSvc, err := usage.NewService(usage.ServiceParams{Users: usersRepo})
	if err != nil {
		logg.Error(ctx, "failed to create usage service", err)
		os.Exit(1)
	}
	contentSvc, err := content.NewService(content.ServiceParams{
		Repo:              content.NewRepository(gdb),
		TransactionRunner: dbClient,
	})
	if err != nil {
		logg.Error(ctx, "failed to create content service", err)
		os.Exit(1)
	}
	aiPlanSvc, err := aiplan.NewService(aiplan.ServiceParams{
		Entitlements: resolver,
		Usage:        usageSvc,
		Generator:    geminiClient,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create ai plan service", err)
		os.Exit(1)
	}
	webhookSvc, err := razorpaywebhook.NewService(razorpaywebhook.ServiceParams{
		Billing: billingSvc,
	})
	if err != nil {
		logg.Error(ctx, "failed to create webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := razorpaywebhook.NewIdempotencyGuard(redisClient, cfg.Billing.WebhookEventTTL, webhookGuardScope)
	if err != nil {
		logg.Error(ctx, "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.Deps{
		Config:          cfg,
		Logger:          logg,
		DB:              dbClient,
		Redis:           redisClient,
		Razorpay:        razorpayClient,
		UsersRepo:       usersRepo,
		Resolver:        resolver,
		ProductsService: productsSvc,
		BillingService:  billingSvc,
		PlansService:    plansSvc,
		AIPlanService:   aiPlanSvc,
		UsageService:    usageSvc,
		ContentService:  contentSvc,
		WebhookService:  webhookSvc,
		WebhookGuard:    webhookGuard,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	runCtx := logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "addr": addr})
	logg.Info(runCtx, "starting api server")

	signalCtx, stop := signal.NotifyContext(runCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(addr, router, logg)
	if err := server.Run(signalCtx); err != nil {
		logg.Error(runCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
