package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/planmint/planmint-backend/pkg/enums"
)

// Order records a payment-provider order. Metadata holds the raw provider
// payloads for audit and is merged on update, never replaced.
type Order struct {
	ID                uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Provider          string            `gorm:"column:provider;not null;default:'razorpay'"`
	ProviderOrderID   string            `gorm:"column:provider_order_id;not null;uniqueIndex"`
	UserID            uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	ProductID         uuid.UUID         `gorm:"column:product_id;type:uuid;not null"`
	Amount            int64             `gorm:"column:amount;not null"`
	Currency          string            `gorm:"column:currency;type:varchar(3);not null"`
	Status            enums.OrderStatus `gorm:"column:status;type:text;not null;default:'created'"`
	ProviderPaymentID *string           `gorm:"column:provider_payment_id"`
	Metadata          json.RawMessage   `gorm:"column:metadata;type:jsonb"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	Product *Product `gorm:"foreignKey:ProductID"`
}

// MergeMetadata folds the provided keys into the stored metadata object.
// Existing keys are overwritten, unrelated keys are preserved.
func (o *Order) MergeMetadata(extra map[string]json.RawMessage) error {
	merged := map[string]json.RawMessage{}
	if len(o.Metadata) > 0 {
		if err := json.Unmarshal(o.Metadata, &merged); err != nil {
			// Unreadable historical metadata is preserved under a salvage key
			// rather than dropped.
			salvaged, marshalErr := json.Marshal(string(o.Metadata))
			if marshalErr != nil {
				return marshalErr
			}
			merged = map[string]json.RawMessage{"_unparsed": salvaged}
		}
	}
	for k, v := range extra {
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	o.Metadata = out
	return nil
}
