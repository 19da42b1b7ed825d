package users

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planmint/planmint-backend/pkg/db/models"
	"github.com/planmint/planmint-backend/pkg/enums"
	"github.com/planmint/planmint-backend/pkg/pagination"
)

// Repository exposes user-related persistence operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, params pagination.Params) ([]models.User, string, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, email string, name *string) error
	UpdateTier(ctx context.Context, id uuid.UUID, tier enums.Tier) error
	UpdateRole(ctx context.Context, id uuid.UUID, role enums.Role) error
	IncrementAIUsage(ctx context.Context, id uuid.UUID) error
	ResetAIUsage(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) List(ctx context.Context, params pagination.Params) ([]models.User, string, error) {
	normalizedLimit := pagination.NormalizeLimit(params.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(params.Limit)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).Model(&models.User{})
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	query = query.Order("created_at DESC").Order("id DESC").Limit(limitWithBuffer)

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(users) > normalizedLimit {
		users = users[:normalizedLimit]
		last := users[len(users)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return users, nextCursor, nil
}

func (r *repository) UpdateProfile(ctx context.Context, id uuid.UUID, email string, name *string) error {
	updates := map[string]any{"email": email}
	if name != nil {
		updates["name"] = *name
	}
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumns(updates).Error
}

func (r *repository) UpdateTier(ctx context.Context, id uuid.UUID, tier enums.Tier) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("tier", tier).Error
}

func (r *repository) UpdateRole(ctx context.Context, id uuid.UUID, role enums.Role) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("role", role).Error
}

// IncrementAIUsage bumps the counter with a single UPDATE so concurrent
// callers cannot lose increments.
func (r *repository) IncrementAIUsage(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("ai_usage_count", gorm.Expr("ai_usage_count + 1")).Error
}

func (r *repository) ResetAIUsage(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("ai_usage_count", 0).Error
}
