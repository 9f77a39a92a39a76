package booking

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/notify"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/repository/memory"
	"github.com/kirinyoku/cinetix/internal/service/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func (n *recordingNotifier) types() []notify.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.EventType
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	store    *memory.Store
	svc      *Service
	notifier *recordingNotifier
	now      time.Time
	user     domain.User
	theater  domain.Theater
	screen   domain.Screen
	seats    []domain.Seat
	schedule domain.Schedule
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    memory.New(),
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC),
	}

	f.user = f.store.SeedUser("Jo", "jo@example.com")
	f.theater = f.store.SeedTheater("Odeon", "Kyiv")
	f.screen, f.seats = f.store.SeedScreen(f.theater.ID, "Hall 1", 2, 4, 1000)
	movie := f.store.SeedMovie("Heat", 170)
	f.schedule = f.store.SeedSchedule(f.screen.ID, movie.ID, f.now.Add(2*time.Hour), f.now.Add(5*time.Hour))

	f.svc = New(f.store, inventory.New(nil, nil, nil), f.notifier, nil, Config{
		Now: func() time.Time { return f.now },
	}, nil)

	return f
}

func (f *fixture) book(t *testing.T, seats ...domain.Seat) []domain.Ticket {
	t.Helper()

	ids := make([]int64, 0, len(seats))
	for _, s := range seats {
		ids = append(ids, s.ID)
	}

	tickets, err := f.svc.Book(context.Background(), f.user.ID, f.theater.ID, f.schedule.ID, ids)
	require.NoError(t, err)
	return tickets
}

func (f *fixture) markPaid(t *testing.T, tickets ...domain.Ticket) {
	t.Helper()

	ids := make([]uuid.UUID, 0, len(tickets))
	for _, tk := range tickets {
		ids = append(ids, tk.ID)
	}
	require.NoError(t, f.store.Tickets().SetStatus(context.Background(), ids, domain.TicketPaid))
}

func (f *fixture) seatAvailable(t *testing.T, id int64) bool {
	t.Helper()

	s, ok := f.store.Seat(id)
	require.True(t, ok)
	return s.Available
}

func TestBookCreatesPendingTickets(t *testing.T) {
	f := newFixture(t)

	tickets := f.book(t, f.seats[0], f.seats[1])
	require.Len(t, tickets, 2)

	numberRe := regexp.MustCompile(`^TIX-20260410-[0-9A-F]{12}$`)
	for _, tk := range tickets {
		assert.Equal(t, domain.TicketPending, tk.Status)
		assert.EqualValues(t, 1000, tk.PriceCents)
		assert.Equal(t, domain.SeatRegular, tk.SeatType)
		assert.Equal(t, f.now, tk.BookedAt)
		assert.Regexp(t, numberRe, tk.Number)
		assert.False(t, f.seatAvailable(t, tk.SeatID))
	}
	assert.NotEqual(t, tickets[0].Number, tickets[1].Number)
	assert.Equal(t, []notify.EventType{notify.TicketBooked}, f.notifier.types())
}

func TestBookPriceSnapshotSurvivesSeatEdits(t *testing.T) {
	f := newFixture(t)
	tk := f.book(t, f.seats[0])[0]

	price := int64(5000)
	require.NoError(t, f.store.Seats().UpdateAttrs(context.Background(), f.screen.ID, f.seats[0].ID, nil, &price))

	got, ok := f.store.Ticket(tk.ID)
	require.True(t, ok)
	assert.EqualValues(t, 1000, got.PriceCents)
}

func TestBookValidatesReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seat := []int64{f.seats[0].ID}

	_, err := f.svc.Book(ctx, 9999, f.theater.ID, f.schedule.ID, seat)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = f.svc.Book(ctx, f.user.ID, 9999, f.schedule.ID, seat)
	assert.ErrorIs(t, err, ErrTheaterNotFound)

	_, err = f.svc.Book(ctx, f.user.ID, f.theater.ID, 9999, seat)
	assert.ErrorIs(t, err, ErrScheduleNotFound)

	other := f.store.SeedTheater("Kino", "Lviv")
	_, err = f.svc.Book(ctx, f.user.ID, other.ID, f.schedule.ID, seat)
	assert.ErrorIs(t, err, ErrScheduleNotInTheater)
	assert.ErrorIs(t, err, domain.ErrInvalid)

	f.now = f.schedule.EndsAt
	_, err = f.svc.Book(ctx, f.user.ID, f.theater.ID, f.schedule.ID, seat)
	assert.ErrorIs(t, err, ErrScheduleEnded)

	assert.True(t, f.seatAvailable(t, f.seats[0].ID))
}

func TestBookOverlappingSetsFailEntirely(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.seats[0], f.seats[1])

	_, err := f.svc.Book(context.Background(), f.user.ID, f.theater.ID, f.schedule.ID,
		[]int64{f.seats[1].ID, f.seats[2].ID})

	var unavailable inventory.SeatsUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, []int64{f.seats[1].ID}, unavailable.SeatIDs)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.True(t, f.seatAvailable(t, f.seats[2].ID))
}

func TestBookRetriesTicketNumberCollision(t *testing.T) {
	f := newFixture(t)

	numbers := []string{"TIX-20260410-AAAAAAAAAAAA", "TIX-20260410-AAAAAAAAAAAA", "TIX-20260410-BBBBBBBBBBBB"}
	calls := 0
	f.svc.newNumber = func(time.Time) string {
		n := numbers[calls]
		calls++
		return n
	}

	first := f.book(t, f.seats[0])
	second := f.book(t, f.seats[1])

	assert.Equal(t, 3, calls)
	assert.Equal(t, numbers[0], first[0].Number)
	assert.Equal(t, numbers[2], second[0].Number)
	assert.False(t, f.seatAvailable(t, f.seats[1].ID))
}

func TestBookGivesUpOnPersistentNumberCollision(t *testing.T) {
	f := newFixture(t)
	f.svc.newNumber = func(time.Time) string { return "TIX-20260410-AAAAAAAAAAAA" }
	f.book(t, f.seats[0])

	_, err := f.svc.Book(context.Background(), f.user.ID, f.theater.ID, f.schedule.ID, []int64{f.seats[1].ID})
	assert.True(t, repository.ConflictOn(err, repository.ConstraintTicketNumber))
	var unavailable inventory.SeatsUnavailableError
	assert.False(t, errors.As(err, &unavailable))
	assert.True(t, f.seatAvailable(t, f.seats[1].ID))
}

func TestBookReportsLiveTicketOnReleasedSeatAsUnavailable(t *testing.T) {
	f := newFixture(t)
	tk := f.book(t, f.seats[0])[0]

	// a USED ticket keeps its seat claimed even after the seat is freed
	require.NoError(t, f.store.Tickets().SetStatus(context.Background(), []uuid.UUID{tk.ID}, domain.TicketUsed))
	_, err := f.store.Seats().Release(context.Background(), []int64{f.seats[0].ID})
	require.NoError(t, err)
	require.True(t, f.seatAvailable(t, f.seats[0].ID))

	_, err = f.svc.Book(context.Background(), f.user.ID, f.theater.ID, f.schedule.ID, []int64{f.seats[0].ID})
	var unavailable inventory.SeatsUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, []int64{f.seats[0].ID}, unavailable.SeatIDs)
}

func TestConcurrentBookingsClaimASeatOnce(t *testing.T) {
	f := newFixture(t)
	seatIDs := []int64{f.seats[0].ID, f.seats[1].ID}

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), f.user.ID, f.theater.ID, f.schedule.ID, seatIDs)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrConflict)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
}

func TestCancelReleasesSeatsForRebooking(t *testing.T) {
	f := newFixture(t)
	tickets := f.book(t, f.seats[0], f.seats[1])
	f.markPaid(t, tickets[1])

	canceled, err := f.svc.Cancel(context.Background(), f.user.ID, []uuid.UUID{tickets[0].ID, tickets[1].ID})
	require.NoError(t, err)
	require.Len(t, canceled, 2)

	for _, tk := range tickets {
		got, _ := f.store.Ticket(tk.ID)
		assert.Equal(t, domain.TicketCanceled, got.Status)
		assert.True(t, f.seatAvailable(t, tk.SeatID))
	}

	again := f.book(t, f.seats[0])
	assert.Len(t, again, 1)
}

func TestCancelIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	mine := f.book(t, f.seats[0])[0]

	stranger := f.store.SeedUser("Sam", "sam@example.com")
	theirs, err := f.svc.Book(context.Background(), stranger.ID, f.theater.ID, f.schedule.ID, []int64{f.seats[1].ID})
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), f.user.ID, []uuid.UUID{mine.ID, theirs[0].ID})
	assert.ErrorIs(t, err, ErrNotTicketOwner)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, _ := f.store.Ticket(mine.ID)
	assert.Equal(t, domain.TicketPending, got.Status)
	assert.False(t, f.seatAvailable(t, f.seats[0].ID))

	_, err = f.svc.Cancel(context.Background(), f.user.ID, []uuid.UUID{mine.ID, uuid.New()})
	assert.ErrorIs(t, err, ErrTicketNotFound)

	_, err = f.svc.Cancel(context.Background(), f.user.ID, nil)
	assert.ErrorIs(t, err, ErrNoTickets)
}

func TestCancelRejectsTerminalTickets(t *testing.T) {
	f := newFixture(t)
	tk := f.book(t, f.seats[0])[0]

	_, err := f.svc.Cancel(context.Background(), f.user.ID, []uuid.UUID{tk.ID})
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), f.user.ID, []uuid.UUID{tk.ID})
	assert.ErrorIs(t, err, ErrTicketNotCancelable)
}

func TestCancelDoesNotFreeSeatRebookedByAnotherTicket(t *testing.T) {
	f := newFixture(t)
	old := f.book(t, f.seats[0])[0]
	_, err := f.svc.Cancel(context.Background(), f.user.ID, []uuid.UUID{old.ID})
	require.NoError(t, err)

	f.book(t, f.seats[0])

	_, err = f.svc.Cancel(context.Background(), f.user.ID, []uuid.UUID{old.ID})
	require.Error(t, err)
	assert.False(t, f.seatAvailable(t, f.seats[0].ID))
}
