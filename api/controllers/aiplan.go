package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/planmint/planmint-backend/api/middleware"
	"github.com/planmint/planmint-backend/api/responses"
	"github.com/planmint/planmint-backend/api/validators"
	"github.com/planmint/planmint-backend/internal/aiplan"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
	"github.com/planmint/planmint-backend/pkg/logger"
)

type generatePlanPayload struct {
	Goal string `json:"goal" validate:"required,min=3,max=2000"`
}

// AIGeneratePlan runs one metered AI plan generation for the caller.
func AIGeneratePlan(svc *aiplan.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ai service unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var payload generatePlanPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Generate(ctx, userID, payload.Goal)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
