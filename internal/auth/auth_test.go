package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeScopesTheaterAdmins(t *testing.T) {
	theaterAdmin := Capability{SubjectID: 1, Role: domain.RoleTheaterAdmin, TheaterScope: []int64{10}}
	super := Capability{SubjectID: 2, Role: domain.RoleSuperAdmin}
	plainAdmin := Capability{SubjectID: 3, Role: domain.RoleAdmin}
	user := Capability{SubjectID: 4, Role: domain.RoleUser}

	assert.NoError(t, Authorize(theaterAdmin, ActionScanTicket, 10))
	assert.ErrorIs(t, Authorize(theaterAdmin, ActionScanTicket, 11), domain.ErrForbidden)
	assert.NoError(t, Authorize(super, ActionScanTicket, 11))
	assert.ErrorIs(t, Authorize(plainAdmin, ActionScanTicket, 10), domain.ErrForbidden)
	assert.ErrorIs(t, Authorize(user, ActionScanTicket, 10), domain.ErrForbidden)

	assert.NoError(t, Authorize(plainAdmin, ActionManageMovie, 0))
	assert.ErrorIs(t, Authorize(theaterAdmin, ActionCreateTheater, 0), domain.ErrForbidden)
	assert.NoError(t, Authorize(super, ActionAssignAdmin, 0))
	assert.NoError(t, Authorize(super, ActionRemoveAdmin, 10))
	assert.ErrorIs(t, Authorize(theaterAdmin, ActionRemoveAdmin, 10), domain.ErrForbidden)
	assert.ErrorIs(t, Authorize(plainAdmin, ActionDeleteMovie, 0), domain.ErrForbidden)
	assert.NoError(t, Authorize(super, ActionDeleteMovie, 0))
	assert.ErrorIs(t, Authorize(super, Action("unknown"), 0), domain.ErrForbidden)

	assert.NoError(t, AuthorizeRole(theaterAdmin, ActionViewTicket))
	assert.ErrorIs(t, AuthorizeRole(plainAdmin, ActionViewTicket), ErrRoleNotAllowed)
}

func TestScopedTheaters(t *testing.T) {
	assert.Nil(t, Capability{Role: domain.RoleSuperAdmin}.ScopedTheaters())
	assert.Equal(t, []int64{}, Capability{Role: domain.RoleTheaterAdmin}.ScopedTheaters())
	assert.Equal(t, []int64{3}, Capability{Role: domain.RoleTheaterAdmin, TheaterScope: []int64{3}}.ScopedTheaters())
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("secret", time.Hour)

	raw, err := tokens.Issue(42, domain.RoleTheaterAdmin)
	require.NoError(t, err)

	claims, err := tokens.Parse(raw)
	require.NoError(t, err)
	id, err := claims.SubjectID()
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)
	assert.Equal(t, domain.RoleTheaterAdmin, claims.Role)
}

func TestTokensRejectForeignAndExpired(t *testing.T) {
	tokens := NewTokens("secret", time.Minute)
	raw, err := tokens.Issue(1, domain.RoleUser)
	require.NoError(t, err)

	_, err = NewTokens("other", time.Minute).Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tokens.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolverLoadsAdminScope(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	theaterID, err := store.Catalog().CreateTheater(ctx, domain.Theater{Name: "Odeon", City: "Kyiv"})
	require.NoError(t, err)
	admin := store.SeedAdmin("front", domain.RoleTheaterAdmin, theaterID)

	r := NewResolver(store.Catalog())

	capab, err := r.Resolve(ctx, &Claims{Role: domain.RoleTheaterAdmin, RegisteredClaims: subject(admin.ID)})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTheaterAdmin, capab.Role)
	assert.Equal(t, []int64{theaterID}, capab.TheaterScope)

	capab, err = r.Resolve(ctx, &Claims{Role: domain.RoleUser, RegisteredClaims: subject(7)})
	require.NoError(t, err)
	assert.Equal(t, Capability{SubjectID: 7, Role: domain.RoleUser}, capab)

	_, err = r.Resolve(ctx, &Claims{Role: domain.RoleSuperAdmin, RegisteredClaims: subject(999)})
	assert.True(t, errors.Is(err, ErrUnknownSubject))
}
