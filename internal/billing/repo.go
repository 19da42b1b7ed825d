package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planmint/planmint-backend/pkg/db/models"
	"github.com/planmint/planmint-backend/pkg/enums"
	"github.com/planmint/planmint-backend/pkg/pagination"
)

// Repository handles billing persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	UpdateOrder(ctx context.Context, order *models.Order) error
	FindOrderByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Order, error)
	ListOrders(ctx context.Context, params ListOrdersQuery) ([]models.Order, string, error)
	CreateSubscription(ctx context.Context, sub *models.UserSubscription) error
	FindSubscriptionByProviderSubID(ctx context.Context, providerSubID string) (*models.UserSubscription, error)
	FindEntitlingSubscription(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]models.UserSubscription, error)
	CancelActiveSubscriptions(ctx context.Context, userID uuid.UUID) error
}

// ListOrdersQuery configures the admin payment ledger query.
type ListOrdersQuery struct {
	UserID     *uuid.UUID
	Status     *enums.OrderStatus
	Pagination pagination.Params
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) UpdateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

func (r *repository) FindOrderByProviderOrderID(ctx context.Context, providerOrderID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("Product").
		Where("provider_order_id = ?", providerOrderID).
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListOrders(ctx context.Context, params ListOrdersQuery) ([]models.Order, string, error) {
	normalizedLimit := pagination.NormalizeLimit(params.Pagination.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(params.Pagination.Limit)

	cursor, err := pagination.ParseCursor(params.Pagination.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Preload("Product")
	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	query = query.Order("created_at DESC").Order("id DESC").Limit(limitWithBuffer)

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(orders) > normalizedLimit {
		orders = orders[:normalizedLimit]
		last := orders[len(orders)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return orders, nextCursor, nil
}

func (r *repository) CreateSubscription(ctx context.Context, sub *models.UserSubscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) FindSubscriptionByProviderSubID(ctx context.Context, providerSubID string) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	if err := r.db.WithContext(ctx).
		Where("provider_sub_id = ?", providerSubID).
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// FindEntitlingSubscription returns the subscription currently granting
// entitlements, most recent period end first as a defensive tie-break.
func (r *repository) FindEntitlingSubscription(ctx context.Context, userID uuid.UUID) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	if err := r.db.WithContext(ctx).
		Preload("Product.ProductFeatures.Feature").
		Where("user_id = ? AND status IN (?)", userID, enums.EntitlingSubscriptionStatuses).
		Order("current_period_end DESC").
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	if err := r.db.WithContext(ctx).
		Preload("Product").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) CancelActiveSubscriptions(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.UserSubscription{}).
		Where("user_id = ? AND status IN (?)", userID, enums.EntitlingSubscriptionStatuses).
		Updates(map[string]any{
			"status":     enums.SubscriptionStatusCanceled,
			"updated_at": time.Now().UTC(),
		}).Error
}
