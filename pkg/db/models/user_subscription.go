package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/planmint/planmint-backend/pkg/enums"
)

// UserSubscription is one entry in the subscription ledger. Rows are never
// hard-deleted; cancellation flips the status. ProviderSubID is the external
// idempotency key (the provider's payment id for checkout purchases, a
// synthetic id for manual CMS grants) and is unique across the ledger.
//
// The at-most-one-active-per-user invariant is enforced by the reconciliation
// logic, not a database constraint: every activating path cancels prior
// active rows inside the same transaction.
type UserSubscription struct {
	ID               uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	ProductID        uuid.UUID                `gorm:"column:product_id;type:uuid;not null"`
	Status           enums.SubscriptionStatus `gorm:"column:status;type:text;not null;default:'active'"`
	StartedAt        time.Time                `gorm:"column:started_at;not null"`
	CurrentPeriodEnd *time.Time               `gorm:"column:current_period_end"`
	Provider         string                   `gorm:"column:provider;not null"`
	ProviderSubID    string                   `gorm:"column:provider_sub_id;not null;uniqueIndex"`
	CreatedAt        time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                `gorm:"column:updated_at;autoUpdateTime"`

	Product *Product `gorm:"foreignKey:ProductID"`
}
