package products

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planmint/planmint-backend/pkg/db/models"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
)

// ServiceParams groups dependencies for the catalog service.
type ServiceParams struct {
	Repo Repository
}

// Service exposes the purchasable product catalog.
type Service struct {
	repo Repository
}

// NewService builds a catalog service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	return &Service{repo: params.Repo}, nil
}

// ListActive returns products available for checkout.
func (s *Service) ListActive(ctx context.Context) ([]models.Product, error) {
	products, err := s.repo.List(ctx, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}
	return products, nil
}

// ListAll returns the full catalog including deactivated products.
func (s *Service) ListAll(ctx context.Context) ([]models.Product, error) {
	products, err := s.repo.List(ctx, true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}
	return products, nil
}

// FindActiveByKey resolves a product key for checkout. Missing or inactive
// keys surface as an invalid-product failure.
func (s *Service) FindActiveByKey(ctx context.Context, key string) (*models.Product, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidProduct, "product key is required")
	}
	product, err := s.repo.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidProduct, "unknown product").
				WithDetails(map[string]string{"key": key})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find product")
	}
	if !product.Active {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidProduct, "product is inactive").
			WithDetails(map[string]string{"key": key})
	}
	return product, nil
}

// CreateProductInput describes a new catalog entry.
type CreateProductInput struct {
	Key         string  `json:"key" validate:"required,min=2,max=64"`
	Name        string  `json:"name" validate:"required,min=2,max=128"`
	Description *string `json:"description,omitempty"`
	Price       int64   `json:"price" validate:"min=0"`
	Currency    string  `json:"currency" validate:"required,len=3"`
}

// Create adds a product to the catalog.
func (s *Service) Create(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	product := &models.Product{
		Key:         strings.ToUpper(strings.TrimSpace(input.Key)),
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Price:       input.Price,
		Currency:    strings.ToUpper(strings.TrimSpace(input.Currency)),
		Active:      true,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "create product")
	}
	return product, nil
}

// Deactivate soft-deletes a product. Subscriptions keep their reference.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find product")
	}
	product.Active = false
	if err := s.repo.Update(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deactivate product")
	}
	return product, nil
}

// SetFeatureInput attaches or updates a feature value on a product.
type SetFeatureInput struct {
	FeatureKey  string          `json:"feature_key" validate:"required,min=2,max=64"`
	Description *string         `json:"description,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
}

// SetFeature upserts the feature definition and its product binding.
func (s *Service) SetFeature(ctx context.Context, productID uuid.UUID, input SetFeatureInput) error {
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find product")
	}

	key := strings.ToUpper(strings.TrimSpace(input.FeatureKey))
	feature := &models.Feature{Key: key, Description: input.Description}
	if err := s.repo.UpsertFeature(ctx, feature); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert feature")
	}
	stored, err := s.repo.FindFeatureByKey(ctx, key)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load feature")
	}

	pf := &models.ProductFeature{
		ProductID: product.ID,
		FeatureID: stored.ID,
		Value:     input.Value,
	}
	if err := s.repo.UpsertProductFeature(ctx, pf); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert product feature")
	}
	return nil
}

// CreateFeatureInput registers a capability definition without binding it
// to a product.
type CreateFeatureInput struct {
	Key         string  `json:"key" validate:"required,min=2,max=64"`
	Description *string `json:"description,omitempty"`
}

// CreateFeature upserts a feature definition in the global registry.
func (s *Service) CreateFeature(ctx context.Context, input CreateFeatureInput) (*models.Feature, error) {
	key := strings.ToUpper(strings.TrimSpace(input.Key))
	feature := &models.Feature{Key: key, Description: input.Description}
	if err := s.repo.UpsertFeature(ctx, feature); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert feature")
	}
	stored, err := s.repo.FindFeatureByKey(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load feature")
	}
	return stored, nil
}

// RemoveFeature detaches a feature binding from a product. The feature
// definition stays in the registry.
func (s *Service) RemoveFeature(ctx context.Context, productID, featureID uuid.UUID) error {
	if _, err := s.repo.FindByID(ctx, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find product")
	}
	if err := s.repo.DeleteProductFeature(ctx, productID, featureID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete product feature")
	}
	return nil
}

// ListFeatures returns the global feature registry.
func (s *Service) ListFeatures(ctx context.Context) ([]models.Feature, error) {
	features, err := s.repo.ListFeatures(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list features")
	}
	return features, nil
}
