package content

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planmint/planmint-backend/pkg/db/models"
	"github.com/planmint/planmint-backend/pkg/enums"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	adminListLimit   = 50
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
}

// Service owns CMS content: draft creation, revisioned updates, publishing,
// and the published read surface.
type Service struct {
	repo     Repository
	txRunner txRunner
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.TransactionRunner == nil {
		return nil, errors.New("transaction runner is required")
	}
	return &Service{repo: params.Repo, txRunner: params.TransactionRunner}, nil
}

// DraftInput is the operator-supplied body of a new entry.
type DraftInput struct {
	Title        *string         `json:"title,omitempty" validate:"omitempty,max=200"`
	Slug         *string         `json:"slug,omitempty" validate:"omitempty,max=200"`
	Data         json.RawMessage `json:"data,omitempty"`
	Locale       *string         `json:"locale,omitempty" validate:"omitempty,max=16"`
	RequiresTier *string         `json:"requires_tier,omitempty" validate:"omitempty,max=32"`
}

// CreateDraft makes a draft entry under the given content type, creating the
// type on first use.
func (s *Service) CreateDraft(ctx context.Context, creatorID uuid.UUID, typeKey string, input DraftInput) (*models.Entry, error) {
	key := normalizeTypeKey(typeKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "content type is required")
	}

	var entry *models.Entry
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		ct, err := repo.FindTypeByKey(ctx, key)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find content type")
		}
		if ct == nil {
			ct = &models.ContentType{Key: key, Name: key}
			if err := repo.CreateType(ctx, ct); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create content type")
			}
		}

		data := input.Data
		if len(data) == 0 {
			data = json.RawMessage(`{}`)
		}
		entry = &models.Entry{
			ContentTypeID: ct.ID,
			Title:         input.Title,
			Slug:          input.Slug,
			Data:          data,
			Locale:        input.Locale,
			RequiresTier:  input.RequiresTier,
			Status:        enums.EntryStatusDraft,
			CreatedByID:   creatorID,
		}
		if err := repo.CreateEntry(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create entry")
		}
		entry.ContentType = ct
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// EntryPatch carries partial updates; nil fields keep the stored value.
type EntryPatch struct {
	Title        *string         `json:"title,omitempty" validate:"omitempty,max=200"`
	Slug         *string         `json:"slug,omitempty" validate:"omitempty,max=200"`
	Data         json.RawMessage `json:"data,omitempty"`
	RequiresTier *string         `json:"requires_tier,omitempty" validate:"omitempty,max=32"`
}

// UpdateEntry snapshots the current body as a revision, then applies the
// patch. Both writes commit together.
func (s *Service) UpdateEntry(ctx context.Context, entryID, updaterID uuid.UUID, patch EntryPatch) (*models.Entry, error) {
	var updated *models.Entry
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		entry, err := repo.FindEntryByID(ctx, entryID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find entry")
		}
		if entry == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "entry not found")
		}

		rev := &models.EntryRevision{EntryID: entry.ID, Data: entry.Data, CreatedBy: updaterID}
		if err := repo.CreateRevision(ctx, rev); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "snapshot revision")
		}

		if patch.Title != nil {
			entry.Title = patch.Title
		}
		if patch.Slug != nil {
			entry.Slug = patch.Slug
		}
		if len(patch.Data) > 0 {
			entry.Data = patch.Data
		}
		if patch.RequiresTier != nil {
			entry.RequiresTier = patch.RequiresTier
		}
		if err := repo.UpdateEntry(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update entry")
		}
		updated = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// PublishEntry publishes immediately, or schedules when publishAt is in the
// future.
func (s *Service) PublishEntry(ctx context.Context, entryID uuid.UUID, publishAt *time.Time) (*models.Entry, error) {
	entry, err := s.repo.FindEntryByID(ctx, entryID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find entry")
	}
	if entry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "entry not found")
	}

	now := time.Now().UTC()
	if publishAt != nil && publishAt.After(now) {
		entry.Status = enums.EntryStatusScheduled
		entry.PublishedAt = publishAt
	} else {
		entry.Status = enums.EntryStatusPublished
		entry.PublishedAt = &now
	}
	if err := s.repo.UpdateEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "publish entry")
	}
	return entry, nil
}

// DeleteEntry removes the entry and its revisions.
func (s *Service) DeleteEntry(ctx context.Context, entryID uuid.UUID) error {
	entry, err := s.repo.FindEntryByID(ctx, entryID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find entry")
	}
	if entry == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "entry not found")
	}
	if err := s.repo.DeleteEntry(ctx, entryID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete entry")
	}
	return nil
}

// ListEntries returns the most recently touched entries for the CMS.
func (s *Service) ListEntries(ctx context.Context) ([]models.Entry, error) {
	rows, err := s.repo.ListEntries(ctx, adminListLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list entries")
	}
	return rows, nil
}

// ListPublished pages through published entries of a type. An unknown type
// yields an empty list, not an error.
func (s *Service) ListPublished(ctx context.Context, typeKey, locale string, limit, offset int) ([]models.Entry, error) {
	ct, err := s.repo.FindTypeByKey(ctx, normalizeTypeKey(typeKey))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find content type")
	}
	if ct == nil {
		return []models.Entry{}, nil
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.repo.ListPublished(ctx, ct.ID, strings.TrimSpace(locale), limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list published entries")
	}
	return rows, nil
}

// GetPublishedBySlug fetches one published entry, nil when absent.
func (s *Service) GetPublishedBySlug(ctx context.Context, typeKey, slug, locale string) (*models.Entry, error) {
	ct, err := s.repo.FindTypeByKey(ctx, normalizeTypeKey(typeKey))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find content type")
	}
	if ct == nil {
		return nil, nil
	}
	entry, err := s.repo.FindPublishedBySlug(ctx, ct.ID, strings.TrimSpace(slug), strings.TrimSpace(locale))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find published entry")
	}
	return entry, nil
}

func normalizeTypeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
