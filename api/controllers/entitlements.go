package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/planmint/planmint-backend/api/middleware"
	"github.com/planmint/planmint-backend/api/responses"
	"github.com/planmint/planmint-backend/internal/entitlements"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
	"github.com/planmint/planmint-backend/pkg/logger"
)

type entitlementsResponse struct {
	Source      string                               `json:"source"`
	Tier        string                               `json:"tier"`
	ProductKey  *string                              `json:"product_key,omitempty"`
	Features    map[string]entitlements.FeatureValue `json:"features"`
	MaxPlanDays int                                  `json:"max_plan_days"`
	CanUseAI    bool                                 `json:"can_use_ai"`
}

// Entitlements returns the caller's resolved feature set. Clients use it to
// render gates; the server re-resolves on every mutating call regardless.
func Entitlements(resolver *entitlements.Resolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if resolver == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement resolver unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		res, err := resolver.Resolve(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		maxDays, err := resolver.MaxPlanDays(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		canUseAI, err := resolver.CanUseAIGeneration(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := entitlementsResponse{
			Source:      string(res.Source),
			Tier:        string(res.Tier),
			Features:    res.Features,
			MaxPlanDays: maxDays,
			CanUseAI:    canUseAI,
		}
		if res.Product != nil {
			key := res.Product.Key
			resp.ProductKey = &key
		}
		responses.WriteSuccess(w, resp)
	}
}
