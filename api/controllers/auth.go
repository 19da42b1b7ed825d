package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/planmint/planmint-backend/api/middleware"
	"github.com/planmint/planmint-backend/api/responses"
	"github.com/planmint/planmint-backend/api/validators"
	"github.com/planmint/planmint-backend/internal/users"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
	"github.com/planmint/planmint-backend/pkg/logger"
)

type authSyncPayload struct {
	Name string `json:"name" validate:"omitempty,max=120"`
}

// AuthSync provisions the account row for the authenticated identity. The
// identity provider is the source of truth for id and email; clients call
// this once after sign-in so the first authenticated request always finds a
// user row. The optional body carries profile fields the token does not.
func AuthSync(repo users.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if repo == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user repository unavailable"))
			return
		}

		userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		email := middleware.EmailFromContext(ctx)
		if email == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "token has no email claim"))
			return
		}

		var payload authSyncPayload
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}
		var name *string
		if trimmed := validators.SanitizeString(payload.Name, 120); trimmed != "" {
			name = &trimmed
		}

		user, err := users.Sync(ctx, repo, users.SyncParams{ID: userID, Email: email, Name: name})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, users.FromModel(user))
	}
}
