package postgresrepo

import (
	"context"
	"testing"

	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogDeletes(t *testing.T) {
	mock, store := newMockStore(t)
	ctx := context.Background()
	repo := store.Catalog()

	mock.ExpectExec(`DELETE FROM screens WHERE id = \$1`).WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM screens WHERE id = \$1`).WithArgs(int64(8)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM movies WHERE id = \$1`).WithArgs(int64(9)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM theater_admins WHERE theater_id = \$1 AND admin_id = \$2`).
		WithArgs(int64(5), int64(2)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, repo.DeleteScreen(ctx, 7))
	assert.ErrorIs(t, repo.DeleteScreen(ctx, 8), repository.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteMovie(ctx, 9), repository.ErrNotFound)
	assert.NoError(t, repo.RemoveTheaterAdmin(ctx, 5, 2))
}
