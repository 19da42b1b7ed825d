package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/planmint/planmint-backend/api/middleware"
	"github.com/planmint/planmint-backend/api/responses"
	"github.com/planmint/planmint-backend/api/validators"
	"github.com/planmint/planmint-backend/internal/billing"
	"github.com/planmint/planmint-backend/internal/products"
	"github.com/planmint/planmint-backend/pkg/db/models"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
	"github.com/planmint/planmint-backend/pkg/logger"
)

const timeFormat = time.RFC3339

type productFeatureView struct {
	Key   string `json:"key"`
	Value any    `json:"value,omitempty"`
}

type productView struct {
	ID           uuid.UUID            `json:"id"`
	Key          string               `json:"key"`
	Name         string               `json:"name"`
	Price        int64                `json:"price"`
	DisplayPrice string               `json:"display_price"`
	Currency     string               `json:"currency"`
	Features     []productFeatureView `json:"features"`
}

func toProductView(product models.Product) productView {
	view := productView{
		ID:           product.ID,
		Key:          product.Key,
		Name:         product.Name,
		Price:        product.Price,
		DisplayPrice: decimal.NewFromInt(product.Price).Shift(-2).StringFixed(2),
		Currency:     product.Currency,
		Features:     []productFeatureView{},
	}
	for _, pf := range product.ProductFeatures {
		if pf.Feature.Key == "" {
			continue
		}
		feature := productFeatureView{Key: pf.Feature.Key}
		if len(pf.Value) > 0 {
			feature.Value = pf.Value
		}
		view.Features = append(view.Features, feature)
	}
	return view
}

// BillingProducts lists the purchasable catalog with feature payloads.
func BillingProducts(svc *products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		rows, err := svc.ListActive(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		views := make([]productView, 0, len(rows))
		for _, row := range rows {
			views = append(views, toProductView(row))
		}
		responses.WriteSuccess(w, views)
	}
}

type createOrderPayload struct {
	ProductKey string `json:"product_key" validate:"required"`
}

// BillingCheckout opens a payment-provider order for the product and hands
// the client what it needs to launch checkout.
func BillingCheckout(svc *billing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var payload createOrderPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		dto, err := svc.Checkout(ctx, userID, payload.ProductKey)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

// BillingVerify confirms a client-reported payment and provisions through
// the same reconciliation path the webhook uses.
func BillingVerify(svc *billing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var payload billing.VerifyParams
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.VerifyClientPayment(ctx, userID, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"verified":             true,
			"subscription_created": result.SubscriptionCreated,
		})
	}
}

type subscriptionView struct {
	ID               uuid.UUID `json:"id"`
	Status           string    `json:"status"`
	Provider         string    `json:"provider"`
	ProductKey       string    `json:"product_key,omitempty"`
	StartedAt        string    `json:"started_at"`
	CurrentPeriodEnd *string   `json:"current_period_end,omitempty"`
}

// BillingSubscription returns the caller's entitling subscription, or null.
func BillingSubscription(svc *billing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		sub, err := svc.Subscription(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if sub == nil {
			responses.WriteSuccess(w, nil)
			return
		}

		view := subscriptionView{
			ID:        sub.ID,
			Status:    sub.Status.String(),
			Provider:  sub.Provider,
			StartedAt: sub.StartedAt.Format(timeFormat),
		}
		if sub.Product != nil {
			view.ProductKey = sub.Product.Key
		}
		if sub.CurrentPeriodEnd != nil {
			formatted := sub.CurrentPeriodEnd.Format(timeFormat)
			view.CurrentPeriodEnd = &formatted
		}
		responses.WriteSuccess(w, view)
	}
}

// BillingCancelSubscription cancels the caller's subscription immediately.
func BillingCancelSubscription(svc *billing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		if err := svc.CancelSubscription(ctx, userID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "canceled"})
	}
}
