package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Feature is a named capability definition in the global registry, created
// on demand by the CMS.
type Feature struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Key         string    `gorm:"column:key;type:text;not null;uniqueIndex"`
	Description *string   `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// ProductFeature attaches a feature to a product with a JSON value payload.
// The payload is either {"enabled":bool} for toggles or a numeric
// {"value":N}/{"limit":N} for limits; a NULL payload means plain enabled.
// At most one row exists per (product, feature) pair.
type ProductFeature struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_product_feature"`
	FeatureID uuid.UUID       `gorm:"column:feature_id;type:uuid;not null;uniqueIndex:idx_product_feature"`
	Value     json.RawMessage `gorm:"column:value;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`

	Feature Feature `gorm:"foreignKey:FeatureID"`
}
