package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a purchasable plan. Price is stored in minor currency units
// (paise for INR). Products referenced by subscriptions are never deleted,
// only deactivated.
type Product struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Key         string    `gorm:"column:key;type:text;not null;uniqueIndex"`
	Name        string    `gorm:"column:name;not null"`
	Description *string   `gorm:"column:description"`
	Price       int64     `gorm:"column:price;not null"`
	Currency    string    `gorm:"column:currency;type:varchar(3);not null;default:'INR'"`
	Active      bool      `gorm:"column:active;not null;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`

	ProductFeatures []ProductFeature `gorm:"foreignKey:ProductID"`
}
