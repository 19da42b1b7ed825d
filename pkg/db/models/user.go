package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/planmint/planmint-backend/pkg/enums"
)

// User represents the canonical identity entity. Accounts are created on
// first authentication against the external identity provider and never
// deleted. Tier is a denormalized convenience value maintained by payment
// reconciliation; the entitlement resolver only trusts it when no active
// subscription exists.
type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email        string     `gorm:"type:text;not null;uniqueIndex"`
	Name         *string    `gorm:"column:name"`
	Tier         enums.Tier `gorm:"column:tier;type:text;not null;default:'FREE'"`
	Role         enums.Role `gorm:"column:role;type:text;not null;default:'user'"`
	AIUsageCount int        `gorm:"column:ai_usage_count;not null;default:0"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
