package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
)

var ErrUnknownSubject = errors.New("unknown subject")

type AdminDirectory interface {
	GetAdmin(ctx context.Context, id int64) (*domain.Admin, error)
	AdminTheaterIDs(ctx context.Context, adminID int64) ([]int64, error)
}

// Resolver turns verified claims into a Capability. Admin roles are read from
// the store, so a demoted admin loses access even with an old token.
type Resolver struct {
	admins AdminDirectory
}

func NewResolver(admins AdminDirectory) *Resolver {
	return &Resolver{admins: admins}
}

func (r *Resolver) Resolve(ctx context.Context, claims *Claims) (Capability, error) {
	const op = "auth.Resolver.Resolve"

	id, err := claims.SubjectID()
	if err != nil {
		return Capability{}, err
	}

	if claims.Role == domain.RoleUser || claims.Role == "" {
		return Capability{SubjectID: id, Role: domain.RoleUser}, nil
	}

	admin, err := r.admins.GetAdmin(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Capability{}, ErrUnknownSubject
		}
		return Capability{}, fmt.Errorf("%s: %w", op, err)
	}

	capab := Capability{SubjectID: admin.ID, Role: admin.Role}
	if admin.Role == domain.RoleTheaterAdmin {
		ids, err := r.admins.AdminTheaterIDs(ctx, admin.ID)
		if err != nil {
			return Capability{}, fmt.Errorf("%s: %w", op, err)
		}
		capab.TheaterScope = ids
	}

	return capab, nil
}
