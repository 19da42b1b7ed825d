package usage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planmint/planmint-backend/internal/users"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
)

// ServiceParams groups dependencies for the usage metering service.
type ServiceParams struct {
	Users users.Repository
}

// Service meters AI generation usage. Enforcement of limits is the
// entitlements resolver's job; this service only moves the counter.
type Service struct {
	users users.Repository
}

// NewService builds a usage metering service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Users == nil {
		return nil, errors.New("users repo is required")
	}
	return &Service{users: params.Users}, nil
}

// IncrementAIUsage adds one consumed generation to the user's counter.
func (s *Service) IncrementAIUsage(ctx context.Context, userID uuid.UUID) error {
	if err := s.users.IncrementAIUsage(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "increment ai usage")
	}
	return nil
}

// ResetAIUsage zeroes the counter. Safe to repeat.
func (s *Service) ResetAIUsage(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	if err := s.users.ResetAIUsage(ctx, userID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reset ai usage")
	}
	return nil
}
