package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/planmint/planmint-backend/api/responses"
	"github.com/planmint/planmint-backend/api/validators"
	"github.com/planmint/planmint-backend/internal/billing"
	"github.com/planmint/planmint-backend/internal/products"
	"github.com/planmint/planmint-backend/internal/usage"
	"github.com/planmint/planmint-backend/internal/users"
	"github.com/planmint/planmint-backend/pkg/enums"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
	"github.com/planmint/planmint-backend/pkg/logger"
	"github.com/planmint/planmint-backend/pkg/pagination"
)

func parsePagination(r *http.Request) (pagination.Params, error) {
	params := pagination.Params{
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}
	if limitStr := strings.TrimSpace(r.URL.Query().Get("limit")); limitStr != "" {
		value, err := strconv.Atoi(limitStr)
		if err != nil || value <= 0 {
			return params, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a positive integer")
		}
		params.Limit = value
	}
	return params, nil
}

func pathUserID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id")
	}
	return id, nil
}

// AdminUsersList pages through all accounts for the CMS.
func AdminUsersList(repo users.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if repo == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user repository unavailable"))
			return
		}

		params, err := parsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rows, nextCursor, err := repo.List(ctx, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list users"))
			return
		}
		dtos := make([]*users.UserDTO, 0, len(rows))
		for i := range rows {
			dtos = append(dtos, users.FromModel(&rows[i]))
		}
		responses.WriteSuccess(w, map[string]any{
			"users":       dtos,
			"next_cursor": nextCursor,
		})
	}
}

type updateTierPayload struct {
	Tier string `json:"tier" validate:"required"`
}

// AdminUpdateUserTier sets the legacy tier badge directly. It does not touch
// subscriptions; the resolver prefers product features when one is active.
func AdminUpdateUserTier(repo users.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if repo == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user repository unavailable"))
			return
		}

		userID, err := pathUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload updateTierPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		tier, err := enums.ParseTier(payload.Tier)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tier"))
			return
		}

		if err := repo.UpdateTier(ctx, userID, tier); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update tier"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"tier": tier.String()})
	}
}

type updateRolePayload struct {
	Role string `json:"role" validate:"required"`
}

// AdminUpdateUserRole promotes or demotes a CMS account.
func AdminUpdateUserRole(repo users.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if repo == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user repository unavailable"))
			return
		}

		userID, err := pathUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload updateRolePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		role, err := enums.ParseRole(payload.Role)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid role"))
			return
		}

		if err := repo.UpdateRole(ctx, userID, role); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update role"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"role": role.String()})
	}
}

// AdminResetAIUsage zeroes a user's AI generation counter.
func AdminResetAIUsage(svc *usage.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "usage service unavailable"))
			return
		}

		userID, err := pathUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.ResetAIUsage(ctx, userID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"ai_usage_count": 0})
	}
}

type grantProductPayload struct {
	// Empty key revokes the user's active grant instead of assigning one.
	ProductKey string `json:"product_key"`
}

// AdminGrantProduct assigns a product to a user without a payment.
func AdminGrantProduct(svc *billing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		userID, err := pathUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload grantProductPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := svc.GrantProduct(ctx, userID, payload.ProductKey)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, sub)
	}
}

// AdminProductsList returns the catalog including deactivated entries.
func AdminProductsList(svc *products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		rows, err := svc.ListAll(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// AdminCreateProduct adds a catalog entry.
func AdminCreateProduct(svc *products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		var payload products.CreateProductInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		product, err := svc.Create(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, product)
	}
}

// AdminDeactivateProduct soft-deletes a catalog entry. Referenced products
// are never hard-deleted.
func AdminDeactivateProduct(svc *products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		productID, err := uuid.Parse(chi.URLParam(r, "productID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid product id"))
			return
		}

		product, err := svc.Deactivate(ctx, productID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

// AdminSetProductFeature attaches or updates a feature value on a product.
func AdminSetProductFeature(svc *products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		productID, err := uuid.Parse(chi.URLParam(r, "productID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid product id"))
			return
		}
		var payload products.SetFeatureInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.SetFeature(ctx, productID, payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

// AdminRemoveProductFeature detaches a feature from a product.
func AdminRemoveProductFeature(svc *products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		productID, err := uuid.Parse(chi.URLParam(r, "productID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid product id"))
			return
		}
		featureID, err := uuid.Parse(chi.URLParam(r, "featureID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid feature id"))
			return
		}

		if err := svc.RemoveFeature(ctx, productID, featureID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "removed"})
	}
}

// AdminCreateFeature registers a feature definition.
func AdminCreateFeature(svc *products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		var payload products.CreateFeatureInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		feature, err := svc.CreateFeature(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, feature)
	}
}

// AdminOrdersList pages through the payment ledger.
func AdminOrdersList(svc *billing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		params, err := parsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		query := billing.ListOrdersQuery{Pagination: params}
		if rawUserID := strings.TrimSpace(r.URL.Query().Get("user_id")); rawUserID != "" {
			userID, err := uuid.Parse(rawUserID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id"))
				return
			}
			query.UserID = &userID
		}
		if rawStatus := strings.TrimSpace(r.URL.Query().Get("status")); rawStatus != "" {
			status, err := enums.ParseOrderStatus(rawStatus)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			query.Status = &status
		}

		orders, nextCursor, err := svc.ListOrders(ctx, query)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"orders":      orders,
			"next_cursor": nextCursor,
		})
	}
}
