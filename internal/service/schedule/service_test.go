package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/auth"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/repository/memory"
	"github.com/kirinyoku/cinetix/internal/service/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCache struct{ invalidated []int64 }

func (c *recordingCache) InvalidateSchedule(_ context.Context, id int64) error {
	c.invalidated = append(c.invalidated, id)
	return nil
}

type fixture struct {
	store  *memory.Store
	svc    *Service
	cache  *recordingCache
	now    time.Time
	super  auth.Capability
	screen domain.Screen
	seats  []domain.Seat
	movie  domain.Movie
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store: memory.New(),
		cache: &recordingCache{},
		now:   time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
		super: auth.Capability{SubjectID: 1, Role: domain.RoleSuperAdmin},
	}

	theater := f.store.SeedTheater("Odeon", "Lviv")
	f.screen, f.seats = f.store.SeedScreen(theater.ID, "Hall 1", 1, 3, 900)
	f.movie = f.store.SeedMovie("Alien", 117)

	f.svc = New(f.store, inventory.New(nil, nil, nil), f.cache, nil, func() time.Time { return f.now }, nil)

	return f
}

func (f *fixture) at(hour int) time.Time {
	return time.Date(2026, 5, 1, hour, 0, 0, 0, time.UTC)
}

func (f *fixture) create(t *testing.T, from, to int) (*domain.Schedule, error) {
	t.Helper()
	return f.svc.Create(context.Background(), f.super, CreateParams{
		ScreenID: f.screen.ID,
		MovieID:  f.movie.ID,
		StartsAt: f.at(from),
		EndsAt:   f.at(to),
	})
}

func TestCreateRejectsOverlapButAllowsTouching(t *testing.T) {
	f := newFixture(t)

	first, err := f.create(t, 10, 12)
	require.NoError(t, err)

	_, err = f.create(t, 11, 13)
	require.ErrorIs(t, err, domain.ErrConflict)
	var oe OverlapError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, first.ID, oe.With.ID)

	_, err = f.create(t, 12, 14)
	require.NoError(t, err)

	_, err = f.create(t, 9, 10)
	require.NoError(t, err)
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.create(t, 12, 12)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = f.svc.Create(context.Background(), f.super, CreateParams{
		ScreenID: 999, MovieID: f.movie.ID, StartsAt: f.at(10), EndsAt: f.at(12),
	})
	assert.ErrorIs(t, err, ErrScreenNotFound)

	_, err = f.svc.Create(context.Background(), f.super, CreateParams{
		ScreenID: f.screen.ID, MovieID: 999, StartsAt: f.at(10), EndsAt: f.at(12),
	})
	assert.ErrorIs(t, err, ErrMovieNotFound)
}

func TestCreateIsTheaterScoped(t *testing.T) {
	f := newFixture(t)

	outsider := auth.Capability{SubjectID: 2, Role: domain.RoleTheaterAdmin, TheaterScope: []int64{f.screen.TheaterID + 100}}
	_, err := f.svc.Create(context.Background(), outsider, CreateParams{
		ScreenID: f.screen.ID, MovieID: f.movie.ID, StartsAt: f.at(10), EndsAt: f.at(12),
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	insider := auth.Capability{SubjectID: 3, Role: domain.RoleTheaterAdmin, TheaterScope: []int64{f.screen.TheaterID}}
	_, err = f.svc.Create(context.Background(), insider, CreateParams{
		ScreenID: f.screen.ID, MovieID: f.movie.ID, StartsAt: f.at(10), EndsAt: f.at(12),
	})
	assert.NoError(t, err)
}

func TestUpdateExcludesItself(t *testing.T) {
	f := newFixture(t)

	a, err := f.create(t, 10, 12)
	require.NoError(t, err)
	_, err = f.create(t, 14, 16)
	require.NoError(t, err)

	end := f.at(13)
	moved, err := f.svc.Update(context.Background(), f.super, a.ID, UpdateParams{EndsAt: &end})
	require.NoError(t, err)
	assert.Equal(t, end, moved.EndsAt)
	assert.Contains(t, f.cache.invalidated, a.ID)

	end = f.at(15)
	_, err = f.svc.Update(context.Background(), f.super, a.ID, UpdateParams{EndsAt: &end})
	assert.ErrorIs(t, err, ErrScheduleOverlap)

	start := f.at(13)
	_, err = f.svc.Update(context.Background(), f.super, a.ID, UpdateParams{StartsAt: &start})
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = f.svc.Update(context.Background(), f.super, 999, UpdateParams{})
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func (f *fixture) sell(t *testing.T, sch *domain.Schedule, seat domain.Seat, status domain.TicketStatus) uuid.UUID {
	t.Helper()

	id := uuid.New()
	err := f.store.InTx(context.Background(), func(ctx context.Context, r repository.Repos) error {
		if _, err := r.Seats().MarkUnavailable(ctx, []int64{seat.ID}); err != nil {
			return err
		}
		return r.Tickets().CreateBatch(ctx, []domain.Ticket{{
			ID:         id,
			Number:     "TIX-" + id.String(),
			UserID:     1,
			ScheduleID: sch.ID,
			SeatID:     seat.ID,
			SeatType:   seat.Type,
			PriceCents: seat.PriceCents,
			Status:     status,
			BookedAt:   f.now,
		}})
	})
	require.NoError(t, err)
	return id
}

func TestUpdateKeepsMovieOfScheduleWithLiveTickets(t *testing.T) {
	f := newFixture(t)
	other := f.store.SeedMovie("Aliens", 137)

	sch, err := f.create(t, 10, 12)
	require.NoError(t, err)
	id := f.sell(t, sch, f.seats[0], domain.TicketPaid)

	_, err = f.svc.Update(context.Background(), f.super, sch.ID, UpdateParams{MovieID: &other.ID})
	assert.ErrorIs(t, err, ErrScheduleHasTickets)

	// same movie and a later end are fine
	end := f.at(13)
	_, err = f.svc.Update(context.Background(), f.super, sch.ID, UpdateParams{MovieID: &f.movie.ID, EndsAt: &end})
	require.NoError(t, err)

	require.NoError(t, f.store.Tickets().SetStatus(context.Background(), []uuid.UUID{id}, domain.TicketCanceled))
	moved, err := f.svc.Update(context.Background(), f.super, sch.ID, UpdateParams{MovieID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, other.ID, moved.MovieID)
}

func TestDeleteCancelsLiveTicketsAndReleasesSeats(t *testing.T) {
	f := newFixture(t)

	sch, err := f.create(t, 10, 12)
	require.NoError(t, err)

	seat := f.seats[0]
	f.sell(t, sch, seat, domain.TicketPaid)

	n, err := f.svc.Delete(context.Background(), f.super, sch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok := f.store.Seat(seat.ID)
	require.True(t, ok)
	assert.True(t, got.Available)

	_, err = f.store.Schedules().Get(context.Background(), sch.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteRejectsStartedSchedule(t *testing.T) {
	f := newFixture(t)

	sch, err := f.create(t, 10, 12)
	require.NoError(t, err)

	f.now = f.at(11)
	_, err = f.svc.Delete(context.Background(), f.super, sch.ID)
	assert.ErrorIs(t, err, ErrScheduleStarted)

	_, err = f.store.Schedules().Get(context.Background(), sch.ID)
	assert.NoError(t, err)
}
