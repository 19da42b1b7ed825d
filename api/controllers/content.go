package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/planmint/planmint-backend/api/middleware"
	"github.com/planmint/planmint-backend/api/responses"
	"github.com/planmint/planmint-backend/api/validators"
	"github.com/planmint/planmint-backend/internal/content"
	"github.com/planmint/planmint-backend/internal/entitlements"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
	"github.com/planmint/planmint-backend/pkg/logger"
)

// ContentPublic serves published entries by content type. With ?slug= it
// returns a single entry plus an accessible flag: tier-gated entries stay
// readable as teasers, and the flag tells the client whether the caller's
// entitlements unlock the body.
func ContentPublic(service *content.Service, resolver *entitlements.Resolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "content service unavailable"))
			return
		}

		typeKey := chi.URLParam(r, "type")
		locale := strings.TrimSpace(r.URL.Query().Get("locale"))
		slug := strings.TrimSpace(r.URL.Query().Get("slug"))

		if slug != "" {
			entry, err := service.GetPublishedBySlug(ctx, typeKey, slug, locale)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if entry == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "entry not found"))
				return
			}
			accessible, err := entryAccessible(r, resolver, entry.RequiresTier)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, map[string]any{
				"entry":      content.FromEntry(entry),
				"accessible": accessible,
			})
			return
		}

		limit, offset := 0, 0
		if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
			limit, _ = strconv.Atoi(v)
		}
		if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
			offset, _ = strconv.Atoi(v)
		}
		rows, err := service.ListPublished(ctx, typeKey, locale, limit, offset)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"entries": content.FromEntries(rows)})
	}
}

// entryAccessible decides whether the caller may read a tier-gated entry.
// Anonymous callers never may; signed-in callers need a product or tier that
// matches the requirement, with any paid grant unlocking everything.
func entryAccessible(r *http.Request, resolver *entitlements.Resolver, requiresTier *string) (bool, error) {
	if requiresTier == nil || strings.TrimSpace(*requiresTier) == "" {
		return true, nil
	}
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return false, nil
	}
	if resolver == nil {
		return false, nil
	}
	res, err := resolver.Resolve(r.Context(), userID)
	if err != nil {
		if domainErr := pkgerrors.As(err); domainErr != nil && domainErr.Code() == pkgerrors.CodeNotFound {
			return false, nil
		}
		return false, err
	}

	required := strings.ToUpper(strings.TrimSpace(*requiresTier))
	if res.Product != nil {
		key := strings.ToUpper(res.Product.Key)
		if key == required || strings.Contains(key, "PRO") || strings.Contains(key, "TEAM") {
			return true, nil
		}
	}
	return strings.ToUpper(string(res.Tier)) == required || res.Tier.IsPaid(), nil
}

// AdminContentList shows the most recently touched entries.
func AdminContentList(service *content.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "content service unavailable"))
			return
		}
		rows, err := service.ListEntries(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"entries": content.FromEntries(rows)})
	}
}

type createEntryPayload struct {
	ContentType string `json:"content_type" validate:"required,max=100"`
	content.DraftInput
}

// AdminContentCreate drafts a new entry under a content type.
func AdminContentCreate(service *content.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "content service unavailable"))
			return
		}
		actorID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var payload createEntryPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entry, err := service.CreateDraft(ctx, actorID, payload.ContentType, payload.DraftInput)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, content.FromEntry(entry))
	}
}

func pathEntryID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid entry id")
	}
	return id, nil
}

// AdminContentUpdate patches an entry, snapshotting a revision first.
func AdminContentUpdate(service *content.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "content service unavailable"))
			return
		}
		actorID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}
		entryID, err := pathEntryID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var patch content.EntryPatch
		if err := validators.DecodeJSONBody(r, &patch); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entry, err := service.UpdateEntry(ctx, entryID, actorID, patch)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, content.FromEntry(entry))
	}
}

type publishEntryPayload struct {
	PublishAt *time.Time `json:"publish_at,omitempty"`
}

// AdminContentPublish publishes an entry now, or schedules a future date.
func AdminContentPublish(service *content.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "content service unavailable"))
			return
		}
		entryID, err := pathEntryID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload publishEntryPayload
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		entry, err := service.PublishEntry(ctx, entryID, payload.PublishAt)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, content.FromEntry(entry))
	}
}

// AdminContentDelete removes an entry and its revisions.
func AdminContentDelete(service *content.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "content service unavailable"))
			return
		}
		entryID, err := pathEntryID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := service.DeleteEntry(ctx, entryID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"deleted": true})
	}
}
