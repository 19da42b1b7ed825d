package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planmint/planmint-backend/pkg/enums"
)

// ContentType groups entries under a key such as "faq" or "changelog".
// Types are created lazily the first time an entry references them.
type ContentType struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Key       string    `gorm:"column:key;not null;uniqueIndex"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ContentType) TableName() string { return "content_types" }

// BeforeCreate assigns the id client-side so callers can reference the row
// inside the same transaction.
func (ct *ContentType) BeforeCreate(*gorm.DB) error {
	if ct.ID == uuid.Nil {
		ct.ID = uuid.New()
	}
	return nil
}

// Entry is one piece of CMS content. Data holds the free-form document body.
// RequiresTier gates public reads behind a paid entitlement.
type Entry struct {
	ID            uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ContentTypeID uuid.UUID         `gorm:"column:content_type_id;type:uuid;not null;index"`
	Title         *string           `gorm:"column:title"`
	Slug          *string           `gorm:"column:slug;index"`
	Data          json.RawMessage   `gorm:"column:data;type:jsonb"`
	Locale        *string           `gorm:"column:locale"`
	RequiresTier  *string           `gorm:"column:requires_tier"`
	Status        enums.EntryStatus `gorm:"column:status;type:text;not null;default:'draft'"`
	PublishedAt   *time.Time        `gorm:"column:published_at"`
	CreatedByID   uuid.UUID         `gorm:"column:created_by_id;type:uuid;not null"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	ContentType *ContentType `gorm:"foreignKey:ContentTypeID"`
}

func (Entry) TableName() string { return "entries" }

func (e *Entry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// EntryRevision snapshots an entry's body before each update.
type EntryRevision struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	EntryID   uuid.UUID       `gorm:"column:entry_id;type:uuid;not null;index"`
	Data      json.RawMessage `gorm:"column:data;type:jsonb"`
	CreatedBy uuid.UUID       `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (EntryRevision) TableName() string { return "entry_revisions" }
