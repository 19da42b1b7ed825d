package products

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/planmint/planmint-backend/pkg/db/models"
)

// Repository handles product catalog persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByKey(ctx context.Context, key string) (*models.Product, error)
	List(ctx context.Context, includeInactive bool) ([]models.Product, error)
	UpsertFeature(ctx context.Context, feature *models.Feature) error
	FindFeatureByKey(ctx context.Context, key string) (*models.Feature, error)
	ListFeatures(ctx context.Context) ([]models.Feature, error)
	UpsertProductFeature(ctx context.Context, pf *models.ProductFeature) error
	DeleteProductFeature(ctx context.Context, productID, featureID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a product repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repository) Update(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Preload("ProductFeatures.Feature").
		First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindByKey(ctx context.Context, key string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Preload("ProductFeatures.Feature").
		Where("key = ?", key).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) List(ctx context.Context, includeInactive bool) ([]models.Product, error) {
	query := r.db.WithContext(ctx).
		Preload("ProductFeatures.Feature").
		Order("key ASC")
	if !includeInactive {
		query = query.Where("active = ?", true)
	}
	var products []models.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// UpsertFeature creates the feature if absent; an existing key keeps its row.
func (r *repository) UpsertFeature(ctx context.Context, feature *models.Feature) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"description", "updated_at"}),
		}).
		Create(feature).Error
}

func (r *repository) FindFeatureByKey(ctx context.Context, key string) (*models.Feature, error) {
	var feature models.Feature
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&feature).Error; err != nil {
		return nil, err
	}
	return &feature, nil
}

func (r *repository) ListFeatures(ctx context.Context) ([]models.Feature, error) {
	var features []models.Feature
	if err := r.db.WithContext(ctx).Order("key ASC").Find(&features).Error; err != nil {
		return nil, err
	}
	return features, nil
}

// UpsertProductFeature enforces the one-row-per-(product,feature) invariant
// through the unique index rather than a read-then-write.
func (r *repository) UpsertProductFeature(ctx context.Context, pf *models.ProductFeature) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}, {Name: "feature_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(pf).Error
}

func (r *repository) DeleteProductFeature(ctx context.Context, productID, featureID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("product_id = ? AND feature_id = ?", productID, featureID).
		Delete(&models.ProductFeature{}).Error
}
