package admin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/auth"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/notify"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/repository/memory"
	"github.com/kirinyoku/cinetix/internal/service/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var super = auth.Capability{SubjectID: 1, Role: domain.RoleSuperAdmin}

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, inventory.New(nil, nil, nil), nil, nil, nil, nil), store
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Publish(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

type recordingCache struct {
	invalidated []int64
}

func (c *recordingCache) InvalidateSchedule(_ context.Context, id int64) error {
	c.invalidated = append(c.invalidated, id)
	return nil
}

// sell books seat on sch directly in the store.
func sell(t *testing.T, store *memory.Store, sch domain.Schedule, seat domain.Seat, userID int64, status domain.TicketStatus) uuid.UUID {
	t.Helper()

	id := uuid.New()
	err := store.InTx(context.Background(), func(ctx context.Context, r repository.Repos) error {
		if _, err := r.Seats().MarkUnavailable(ctx, []int64{seat.ID}); err != nil {
			return err
		}
		return r.Tickets().CreateBatch(ctx, []domain.Ticket{{
			ID: id, Number: "TIX-" + id.String(), UserID: userID, ScheduleID: sch.ID, SeatID: seat.ID,
			SeatType: seat.Type, PriceCents: seat.PriceCents, Status: status, BookedAt: time.Now(),
		}})
	})
	require.NoError(t, err)
	return id
}

func TestCreateTheaterRequiresSuperAdmin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	th, err := svc.CreateTheater(ctx, super, "Kinopalace", "Kharkiv")
	require.NoError(t, err)
	assert.NotZero(t, th.ID)

	_, err = svc.CreateTheater(ctx, super, "Kinopalace", "Kyiv")
	assert.ErrorIs(t, err, ErrTheaterConflict)

	_, err = svc.CreateTheater(ctx, auth.Capability{SubjectID: 2, Role: domain.RoleTheaterAdmin}, "Other", "Kyiv")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestAssignTheaterAdmin(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	th := store.SeedTheater("Planeta", "Dnipro")
	ta := store.SeedAdmin("boxoffice", domain.RoleTheaterAdmin)
	plain := store.SeedAdmin("content", domain.RoleAdmin)

	require.NoError(t, svc.AssignTheaterAdmin(ctx, super, th.ID, ta.ID))
	require.NoError(t, svc.AssignTheaterAdmin(ctx, super, th.ID, ta.ID))

	ids, err := store.Catalog().AdminTheaterIDs(ctx, ta.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{th.ID}, ids)

	assert.ErrorIs(t, svc.AssignTheaterAdmin(ctx, super, th.ID, plain.ID), ErrNotTheaterAdmin)
	assert.ErrorIs(t, svc.AssignTheaterAdmin(ctx, super, th.ID, 999), ErrAdminNotFound)
	assert.ErrorIs(t, svc.AssignTheaterAdmin(ctx, super, 999, ta.ID), ErrTheaterNotFound)
}

func TestCreateScreenBuildsGridWithOverrides(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	th := store.SeedTheater("Planeta", "Dnipro")
	vipPrice := int64(2500)

	screen, seats, err := svc.CreateScreen(ctx, super, th.ID, ScreenParams{
		Name:        "Hall 2",
		Rows:        3,
		SeatsPerRow: 4,
		PriceCents:  1200,
		Overrides: []SeatOverride{
			{Row: "c", Number: 2, Type: domain.SeatVIP, PriceCents: &vipPrice},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 12, screen.Capacity)
	require.Len(t, seats, 12)
	assert.Equal(t, "A1", seats[0].Label())
	assert.Equal(t, "C4", seats[11].Label())

	var vip domain.Seat
	for _, s := range seats {
		if s.Label() == "C2" {
			vip = s
		}
	}
	assert.Equal(t, domain.SeatVIP, vip.Type)
	assert.Equal(t, vipPrice, vip.PriceCents)
	assert.Equal(t, domain.SeatRegular, seats[0].Type)

	got, err := store.Catalog().GetTheater(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, got.Capacity)

	_, _, err = svc.CreateScreen(ctx, super, th.ID, ScreenParams{Name: "Hall 2", Rows: 1, SeatsPerRow: 1})
	assert.ErrorIs(t, err, ErrScreenConflict)
}

func TestCreateScreenValidatesLayout(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	th := store.SeedTheater("Planeta", "Dnipro")

	cases := []struct {
		name string
		p    ScreenParams
		want error
	}{
		{"no rows", ScreenParams{Name: "X", Rows: 0, SeatsPerRow: 5}, ErrInvalidLayout},
		{"too many rows", ScreenParams{Name: "X", Rows: 27, SeatsPerRow: 5}, ErrInvalidLayout},
		{"no name", ScreenParams{Rows: 1, SeatsPerRow: 5}, ErrNameRequired},
		{"bad type", ScreenParams{Name: "X", Rows: 1, SeatsPerRow: 5, Type: "LOUNGE"}, ErrInvalidSeatType},
		{"override outside", ScreenParams{Name: "X", Rows: 1, SeatsPerRow: 5, Overrides: []SeatOverride{{Row: "B", Number: 1}}}, ErrOverrideOutside},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.CreateScreen(ctx, super, th.ID, tc.p)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	scoped := auth.Capability{SubjectID: 5, Role: domain.RoleTheaterAdmin, TheaterScope: []int64{th.ID + 1}}
	_, _, err := svc.CreateScreen(ctx, scoped, th.ID, ScreenParams{Name: "X", Rows: 1, SeatsPerRow: 1})
	assert.ErrorIs(t, err, auth.ErrTheaterOutOfScope)
}

func TestUpdateSeatsKeepsTicketSnapshot(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	th := store.SeedTheater("Planeta", "Dnipro")
	screen, seats := store.SeedScreen(th.ID, "Hall 1", 1, 2, 1000)
	movie := store.SeedMovie("Up", 96)
	sch := store.SeedSchedule(screen.ID, movie.ID, time.Now().Add(time.Hour), time.Now().Add(3*time.Hour))

	ticketID := uuid.New()
	err := store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		return r.Tickets().CreateBatch(ctx, []domain.Ticket{{
			ID: ticketID, Number: "TIX-A", UserID: 1, ScheduleID: sch.ID, SeatID: seats[0].ID,
			SeatType: domain.SeatRegular, PriceCents: 1000, Status: domain.TicketPending, BookedAt: time.Now(),
		}})
	})
	require.NoError(t, err)

	premium := domain.SeatPremium
	price := int64(3000)
	require.NoError(t, svc.UpdateSeats(ctx, super, screen.ID, []SeatEdit{{SeatID: seats[0].ID, Type: &premium, PriceCents: &price}}))

	seat, _ := store.Seat(seats[0].ID)
	assert.Equal(t, domain.SeatPremium, seat.Type)
	assert.Equal(t, price, seat.PriceCents)

	tk, _ := store.Ticket(ticketID)
	assert.Equal(t, int64(1000), tk.PriceCents)
	assert.Equal(t, domain.SeatRegular, tk.SeatType)

	err = svc.UpdateSeats(ctx, super, screen.ID, []SeatEdit{{SeatID: 999, PriceCents: &price}})
	assert.ErrorIs(t, err, ErrSeatNotFound)

	err = svc.UpdateSeats(ctx, super, screen.ID, []SeatEdit{{SeatID: seats[0].ID}})
	assert.ErrorIs(t, err, ErrNothingToUpdate)
}

func TestReleaseSeatsRefusesHeldSeats(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	th := store.SeedTheater("Planeta", "Dnipro")
	screen, seats := store.SeedScreen(th.ID, "Hall 1", 1, 3, 1000)
	movie := store.SeedMovie("Up", 96)
	sch := store.SeedSchedule(screen.ID, movie.ID, time.Now().Add(time.Hour), time.Now().Add(3*time.Hour))

	err := store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		if _, err := r.Seats().MarkUnavailable(ctx, []int64{seats[0].ID, seats[1].ID}); err != nil {
			return err
		}
		return r.Tickets().CreateBatch(ctx, []domain.Ticket{{
			ID: uuid.New(), Number: "TIX-B", UserID: 1, ScheduleID: sch.ID, SeatID: seats[0].ID,
			SeatType: domain.SeatRegular, PriceCents: 1000, Status: domain.TicketPaid, BookedAt: time.Now(),
		}})
	})
	require.NoError(t, err)

	res, err := svc.ReleaseSeats(ctx, super, screen.ID, []int64{seats[0].ID, seats[1].ID, seats[2].ID, seats[1].ID})
	require.NoError(t, err)
	assert.Equal(t, []int64{seats[1].ID, seats[2].ID}, res.Released)
	assert.Equal(t, []int64{seats[0].ID}, res.Held)

	held, _ := store.Seat(seats[0].ID)
	assert.False(t, held.Available)

	other, _ := store.SeedScreen(th.ID, "Hall 9", 1, 1, 500)
	_, err = svc.ReleaseSeats(ctx, super, other.ID, []int64{seats[0].ID})
	assert.ErrorIs(t, err, ErrSeatNotFound)
}

func TestCreateMovie(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	m, err := svc.CreateMovie(ctx, auth.Capability{SubjectID: 3, Role: domain.RoleAdmin}, domain.Movie{Title: " Arrival ", DurationMin: 116})
	require.NoError(t, err)
	assert.Equal(t, "Arrival", m.Title)
	assert.NotZero(t, m.ID)

	_, err = svc.CreateMovie(ctx, super, domain.Movie{Title: "Arrival"})
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = svc.CreateMovie(ctx, auth.Capability{SubjectID: 4, Role: domain.RoleTheaterAdmin}, domain.Movie{Title: "X", DurationMin: 90})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestRemoveTheaterAdmin(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	th := store.SeedTheater("Planeta", "Dnipro")
	ta := store.SeedAdmin("boxoffice", domain.RoleTheaterAdmin, th.ID)

	err := svc.RemoveTheaterAdmin(ctx, auth.Capability{SubjectID: ta.ID, Role: domain.RoleTheaterAdmin, TheaterScope: []int64{th.ID}}, th.ID, ta.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, svc.RemoveTheaterAdmin(ctx, super, th.ID, ta.ID))

	ids, err := store.Catalog().AdminTheaterIDs(ctx, ta.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	assert.ErrorIs(t, svc.RemoveTheaterAdmin(ctx, super, th.ID, ta.ID), ErrAssignmentNotFound)
}

func TestDeleteScreenCancelsTicketsAndShrinksTheater(t *testing.T) {
	store := memory.New()
	notifier := &recordingNotifier{}
	cache := &recordingCache{}
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	svc := New(store, inventory.New(nil, nil, nil), cache, notifier, func() time.Time { return now }, nil)
	ctx := context.Background()

	th := store.SeedTheater("Planeta", "Dnipro")
	screen, seats := store.SeedScreen(th.ID, "Hall 1", 1, 3, 1000)
	keep, _ := store.SeedScreen(th.ID, "Hall 2", 1, 2, 1000)
	movie := store.SeedMovie("Up", 96)
	early := store.SeedSchedule(screen.ID, movie.ID, now.Add(time.Hour), now.Add(3*time.Hour))
	late := store.SeedSchedule(screen.ID, movie.ID, now.Add(4*time.Hour), now.Add(6*time.Hour))
	sell(t, store, early, seats[0], 7, domain.TicketPaid)
	sell(t, store, late, seats[1], 8, domain.TicketPending)

	scoped := auth.Capability{SubjectID: 5, Role: domain.RoleTheaterAdmin, TheaterScope: []int64{th.ID + 100}}
	_, err := svc.DeleteScreen(ctx, scoped, screen.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	res, err := svc.DeleteScreen(ctx, super, screen.ID)
	require.NoError(t, err)
	assert.Equal(t, &DeleteResult{Schedules: 2, CanceledTickets: 2}, res)

	_, err = store.Catalog().GetScreen(ctx, screen.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.Schedules().Get(ctx, early.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, ok := store.Seat(seats[0].ID)
	assert.False(t, ok)

	got, err := store.Catalog().GetTheater(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, keep.Capacity, got.Capacity)

	assert.ElementsMatch(t, []int64{early.ID, late.ID}, cache.invalidated)
	require.Len(t, notifier.events, 2)
	for _, ev := range notifier.events {
		assert.Equal(t, notify.TicketCanceled, ev.Type)
	}

	_, err = svc.DeleteScreen(ctx, super, screen.ID)
	assert.ErrorIs(t, err, ErrScreenNotFound)
}

func TestDeleteScreenRefusesScreeningInProgress(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	svc := New(store, inventory.New(nil, nil, nil), nil, nil, func() time.Time { return now }, nil)
	ctx := context.Background()

	th := store.SeedTheater("Planeta", "Dnipro")
	screen, seats := store.SeedScreen(th.ID, "Hall 1", 1, 2, 1000)
	movie := store.SeedMovie("Up", 96)
	running := store.SeedSchedule(screen.ID, movie.ID, now.Add(-time.Hour), now.Add(time.Hour))
	id := sell(t, store, running, seats[0], 7, domain.TicketPaid)

	_, err := svc.DeleteScreen(ctx, super, screen.ID)
	assert.ErrorIs(t, err, ErrScreeningInProgress)

	tk, ok := store.Ticket(id)
	require.True(t, ok)
	assert.Equal(t, domain.TicketPaid, tk.Status)
	_, err = store.Catalog().GetScreen(ctx, screen.ID)
	assert.NoError(t, err)

	_, err = svc.DeleteMovie(ctx, super, movie.ID)
	assert.ErrorIs(t, err, ErrScreeningInProgress)
}

func TestDeleteMovieRemovesItsSchedulesOnly(t *testing.T) {
	store := memory.New()
	notifier := &recordingNotifier{}
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	svc := New(store, inventory.New(nil, nil, nil), nil, notifier, func() time.Time { return now }, nil)
	ctx := context.Background()

	th := store.SeedTheater("Planeta", "Dnipro")
	screen, seats := store.SeedScreen(th.ID, "Hall 1", 1, 3, 1000)
	gone := store.SeedMovie("Up", 96)
	stays := store.SeedMovie("Heat", 170)
	doomed := store.SeedSchedule(screen.ID, gone.ID, now.Add(time.Hour), now.Add(3*time.Hour))
	other := store.SeedSchedule(screen.ID, stays.ID, now.Add(4*time.Hour), now.Add(7*time.Hour))
	sell(t, store, doomed, seats[0], 7, domain.TicketPaid)
	kept := sell(t, store, other, seats[1], 7, domain.TicketPaid)

	_, err := svc.DeleteMovie(ctx, auth.Capability{SubjectID: 3, Role: domain.RoleAdmin}, gone.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	res, err := svc.DeleteMovie(ctx, super, gone.ID)
	require.NoError(t, err)
	assert.Equal(t, &DeleteResult{Schedules: 1, CanceledTickets: 1}, res)

	seat, _ := store.Seat(seats[0].ID)
	assert.True(t, seat.Available)

	_, err = store.Schedules().Get(ctx, doomed.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.Schedules().Get(ctx, other.ID)
	assert.NoError(t, err)

	tk, ok := store.Ticket(kept)
	require.True(t, ok)
	assert.Equal(t, domain.TicketPaid, tk.Status)

	require.Len(t, notifier.events, 1)
	assert.EqualValues(t, 7, notifier.events[0].UserID)

	_, err = svc.DeleteMovie(ctx, super, gone.ID)
	assert.ErrorIs(t, err, ErrMovieNotFound)
}
