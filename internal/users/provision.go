package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planmint/planmint-backend/pkg/db/models"
	"github.com/planmint/planmint-backend/pkg/enums"
	pkgerrors "github.com/planmint/planmint-backend/pkg/errors"
)

// SyncParams carries the identity-provider claims used to provision an
// account on first authentication.
type SyncParams struct {
	ID    uuid.UUID
	Email string
	Name  *string
}

// Sync upserts the account row for an authenticated identity. The identity
// provider owns the user id; rows are created on first sight and the profile
// fields are refreshed on every call. An email already claimed by another row
// resolves to that row, so a re-issued identity id does not duplicate the
// account.
func Sync(ctx context.Context, repo Repository, params SyncParams) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if params.ID == uuid.Nil || email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and email are required")
	}

	user, err := repo.FindByID(ctx, params.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	if user != nil {
		if user.Email != email || (params.Name != nil && !equalName(user.Name, params.Name)) {
			if err := repo.UpdateProfile(ctx, user.ID, email, params.Name); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update profile")
			}
			user.Email = email
			if params.Name != nil {
				user.Name = params.Name
			}
		}
		return user, nil
	}

	existing, err := repo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user by email")
	}
	if existing != nil {
		return existing, nil
	}

	name := params.Name
	if name == nil {
		local := email
		if at := strings.Index(email, "@"); at > 0 {
			local = email[:at]
		}
		name = &local
	}
	created := &models.User{
		ID:    params.ID,
		Email: email,
		Name:  name,
		Tier:  enums.TierFree,
		Role:  enums.RoleUser,
	}
	if err := repo.Create(ctx, created); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}
	return created, nil
}

func equalName(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
