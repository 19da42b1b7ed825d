package content

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planmint/planmint-backend/pkg/db/models"
	"github.com/planmint/planmint-backend/pkg/enums"
)

// Repository persists content types, entries, and their revisions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindTypeByKey(ctx context.Context, key string) (*models.ContentType, error)
	CreateType(ctx context.Context, ct *models.ContentType) error
	CreateEntry(ctx context.Context, entry *models.Entry) error
	FindEntryByID(ctx context.Context, id uuid.UUID) (*models.Entry, error)
	UpdateEntry(ctx context.Context, entry *models.Entry) error
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	CreateRevision(ctx context.Context, rev *models.EntryRevision) error
	ListEntries(ctx context.Context, limit int) ([]models.Entry, error)
	ListPublished(ctx context.Context, typeID uuid.UUID, locale string, limit, offset int) ([]models.Entry, error)
	FindPublishedBySlug(ctx context.Context, typeID uuid.UUID, slug, locale string) (*models.Entry, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) FindTypeByKey(ctx context.Context, key string) (*models.ContentType, error) {
	var ct models.ContentType
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&ct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ct, nil
}

func (r *repository) CreateType(ctx context.Context, ct *models.ContentType) error {
	return r.db.WithContext(ctx).Create(ct).Error
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.Entry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindEntryByID(ctx context.Context, id uuid.UUID) (*models.Entry, error) {
	var entry models.Entry
	if err := r.db.WithContext(ctx).
		Preload("ContentType").
		First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) UpdateEntry(ctx context.Context, entry *models.Entry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

func (r *repository) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entry_id = ?", id).Delete(&models.EntryRevision{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Entry{}, "id = ?", id).Error
	})
}

func (r *repository) CreateRevision(ctx context.Context, rev *models.EntryRevision) error {
	return r.db.WithContext(ctx).Create(rev).Error
}

func (r *repository) ListEntries(ctx context.Context, limit int) ([]models.Entry, error) {
	var rows []models.Entry
	if err := r.db.WithContext(ctx).
		Preload("ContentType").
		Order("updated_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListPublished(ctx context.Context, typeID uuid.UUID, locale string, limit, offset int) ([]models.Entry, error) {
	query := r.db.WithContext(ctx).
		Where("content_type_id = ? AND status = ?", typeID, enums.EntryStatusPublished)
	if locale != "" {
		query = query.Where("locale = ?", locale)
	}
	var rows []models.Entry
	if err := query.
		Order("published_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindPublishedBySlug(ctx context.Context, typeID uuid.UUID, slug, locale string) (*models.Entry, error) {
	query := r.db.WithContext(ctx).
		Where("content_type_id = ? AND slug = ? AND status = ?", typeID, slug, enums.EntryStatusPublished)
	if locale != "" {
		query = query.Where("locale = ?", locale)
	}
	var entry models.Entry
	if err := query.First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}
