// Package memory is an in-memory implementation of the repository contracts.
// Transactions are serialized by a single mutex and work on a copy of the
// state that replaces the committed state only when fn succeeds.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
)

type state struct {
	seq           int64
	users         map[int64]domain.User
	admins        map[int64]domain.Admin
	theaterAdmins map[int64]map[int64]struct{}
	theaters      map[int64]domain.Theater
	screens       map[int64]domain.Screen
	movies        map[int64]domain.Movie
	seats         map[int64]domain.Seat
	schedules     map[int64]domain.Schedule
	tickets       map[uuid.UUID]domain.Ticket
	events        map[string]domain.PaymentEvent
}

func newState() *state {
	return &state{
		users:         make(map[int64]domain.User),
		admins:        make(map[int64]domain.Admin),
		theaterAdmins: make(map[int64]map[int64]struct{}),
		theaters:      make(map[int64]domain.Theater),
		screens:       make(map[int64]domain.Screen),
		movies:        make(map[int64]domain.Movie),
		seats:         make(map[int64]domain.Seat),
		schedules:     make(map[int64]domain.Schedule),
		tickets:       make(map[uuid.UUID]domain.Ticket),
		events:        make(map[string]domain.PaymentEvent),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	ta := make(map[int64]map[int64]struct{}, len(s.theaterAdmins))
	for k, v := range s.theaterAdmins {
		ta[k] = copyMap(v)
	}

	return &state{
		seq:           s.seq,
		users:         copyMap(s.users),
		admins:        copyMap(s.admins),
		theaterAdmins: ta,
		theaters:      copyMap(s.theaters),
		screens:       copyMap(s.screens),
		movies:        copyMap(s.movies),
		seats:         copyMap(s.seats),
		schedules:     copyMap(s.schedules),
		tickets:       copyMap(s.tickets),
		events:        copyMap(s.events),
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

// InTx implements repository.Transactor.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.st.clone()
	if err := fn(ctx, &repos{store: s, tx: work}); err != nil {
		return err
	}

	s.st = work
	return nil
}

func (s *Store) Seats() repository.SeatRepository         { return (&repos{store: s}).Seats() }
func (s *Store) Schedules() repository.ScheduleRepository { return (&repos{store: s}).Schedules() }
func (s *Store) Tickets() repository.TicketRepository     { return (&repos{store: s}).Tickets() }
func (s *Store) Payments() repository.PaymentRepository   { return (&repos{store: s}).Payments() }
func (s *Store) Catalog() repository.CatalogRepository    { return (&repos{store: s}).Catalog() }

// SeedUser registers an end user.
func (s *Store) SeedUser(name, email string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := domain.User{ID: s.st.nextID(), Name: name, Email: email}
	s.st.users[u.ID] = u
	return u
}

// SeedAdmin registers an administrator assigned to the given theaters.
func (s *Store) SeedAdmin(username string, role domain.Role, theaterIDs ...int64) domain.Admin {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := domain.Admin{ID: s.st.nextID(), Username: username, Role: role}
	s.st.admins[a.ID] = a
	for _, tid := range theaterIDs {
		if s.st.theaterAdmins[a.ID] == nil {
			s.st.theaterAdmins[a.ID] = make(map[int64]struct{})
		}
		s.st.theaterAdmins[a.ID][tid] = struct{}{}
	}
	return a
}

// Ticket returns the committed state of a ticket.
func (s *Store) Ticket(id uuid.UUID) (domain.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.st.tickets[id]
	return t, ok
}

// Seat returns the committed state of a seat.
func (s *Store) Seat(id int64) (domain.Seat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seat, ok := s.st.seats[id]
	return seat, ok
}

// PaymentEvents returns the number of recorded gateway events.
func (s *Store) PaymentEvents() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.st.events)
}

// repos is bound either to a transaction's working copy or, when tx is nil,
// to the committed state under the store lock.
type repos struct {
	store *Store
	tx    *state
}

func (r *repos) Seats() repository.SeatRepository         { return &seatRepo{r} }
func (r *repos) Schedules() repository.ScheduleRepository { return &scheduleRepo{r} }
func (r *repos) Tickets() repository.TicketRepository     { return &ticketRepo{r} }
func (r *repos) Payments() repository.PaymentRepository   { return &paymentRepo{r} }
func (r *repos) Catalog() repository.CatalogRepository    { return &catalogRepo{r} }

func (r *repos) with(fn func(st *state) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return fn(r.store.st)
}

func notFound(op string) error {
	return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
}

func conflict(op, what string) error {
	return fmt.Errorf("%s: %w", op, &repository.ConflictError{Constraint: what})
}

var (
	_ repository.Transactor = (*Store)(nil)
	_ repository.Repos      = (*Store)(nil)
	_ repository.Repos      = (*repos)(nil)
)
