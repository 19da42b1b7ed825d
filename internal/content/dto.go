package content

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/planmint/planmint-backend/pkg/db/models"
	"github.com/planmint/planmint-backend/pkg/enums"
)

// EntryDTO is the transport shape for CMS entries.
type EntryDTO struct {
	ID           uuid.UUID         `json:"id"`
	ContentType  string            `json:"content_type,omitempty"`
	Title        *string           `json:"title,omitempty"`
	Slug         *string           `json:"slug,omitempty"`
	Data         json.RawMessage   `json:"data,omitempty"`
	Locale       *string           `json:"locale,omitempty"`
	RequiresTier *string           `json:"requires_tier,omitempty"`
	Status       enums.EntryStatus `json:"status"`
	PublishedAt  *time.Time        `json:"published_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func FromEntry(e *models.Entry) *EntryDTO {
	if e == nil {
		return nil
	}
	dto := &EntryDTO{
		ID:           e.ID,
		Title:        e.Title,
		Slug:         e.Slug,
		Data:         e.Data,
		Locale:       e.Locale,
		RequiresTier: e.RequiresTier,
		Status:       e.Status,
		PublishedAt:  e.PublishedAt,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
	if e.ContentType != nil {
		dto.ContentType = e.ContentType.Key
	}
	return dto
}

func FromEntries(rows []models.Entry) []*EntryDTO {
	dtos := make([]*EntryDTO, 0, len(rows))
	for i := range rows {
		dtos = append(dtos, FromEntry(&rows[i]))
	}
	return dtos
}
