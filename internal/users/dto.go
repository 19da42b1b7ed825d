package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/planmint/planmint-backend/pkg/db/models"
	"github.com/planmint/planmint-backend/pkg/enums"
)

// UserDTO is the transport shape returned by user-facing endpoints.
type UserDTO struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	Name         *string    `json:"name,omitempty"`
	Tier         enums.Tier `json:"tier"`
	Role         enums.Role `json:"role"`
	AIUsageCount int        `json:"ai_usage_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Tier:         u.Tier,
		Role:         u.Role,
		AIUsageCount: u.AIUsageCount,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}
