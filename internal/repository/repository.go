// Package repository declares the persistence contracts the services depend on.
// Implementations live in the postgres and memory subpackages.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/domain"
)

// Transactor runs fn inside one transaction. Repos handed to fn are bound to
// that transaction; the transaction commits only if fn returns nil.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}

// Store is a Transactor whose own repositories read committed state outside
// of any transaction.
type Store interface {
	Transactor
	Repos
}

// Repos groups the repositories available inside a transaction or, when
// obtained from a store directly, outside of one.
type Repos interface {
	Seats() SeatRepository
	Schedules() ScheduleRepository
	Tickets() TicketRepository
	Payments() PaymentRepository
	Catalog() CatalogRepository
}

type SeatRepository interface {
	// LockByIDs returns the seats with the given ids, locked for update, ordered by id.
	LockByIDs(ctx context.Context, seatIDs []int64) ([]domain.Seat, error)
	// MarkUnavailable flips available seats to unavailable and reports how many changed.
	MarkUnavailable(ctx context.Context, seatIDs []int64) (int64, error)
	// Release makes seats available unless a PENDING or PAID ticket still holds them.
	// It returns the screens whose seats changed.
	Release(ctx context.Context, seatIDs []int64) ([]int64, error)
	// ReleaseForTickets releases each ticket's seat unless another PENDING or PAID
	// ticket holds it. It returns the screens whose seats changed.
	ReleaseForTickets(ctx context.Context, tickets []domain.Ticket) ([]int64, error)
	ListByScreen(ctx context.Context, screenID int64) ([]domain.Seat, error)
	BatchCreate(ctx context.Context, screenID int64, seats []domain.Seat) error
	UpdateAttrs(ctx context.Context, screenID, seatID int64, typ *domain.SeatType, priceCents *int64) error
}

type ScheduleRepository interface {
	Get(ctx context.Context, id int64) (*domain.Schedule, error)
	// FindOverlap returns a schedule on screenID overlapping [start, end), ignoring
	// excludeID, or ErrNotFound.
	FindOverlap(ctx context.Context, screenID int64, start, end time.Time, excludeID int64) (*domain.Schedule, error)
	Create(ctx context.Context, s domain.Schedule) (int64, error)
	Update(ctx context.Context, s domain.Schedule) error
	Delete(ctx context.Context, id int64) error
	ListByScreen(ctx context.Context, screenID int64) ([]domain.Schedule, error)
	ListByMovie(ctx context.Context, movieID int64) ([]domain.Schedule, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.Schedule, error)
}

type TicketFilter struct {
	UserID     int64
	TheaterIDs []int64
	Status     *domain.TicketStatus
	Limit      int
	Offset     int
}

type TicketRepository interface {
	CreateBatch(ctx context.Context, tickets []domain.Ticket) error
	LockByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Ticket, error)
	LockByIntent(ctx context.Context, intentID string) ([]domain.Ticket, error)
	LockLiveBySchedule(ctx context.Context, scheduleID int64) ([]domain.Ticket, error)
	LockDetails(ctx context.Context, id uuid.UUID) (*domain.TicketDetails, error)
	LockDetailsByQRToken(ctx context.Context, token string) (*domain.TicketDetails, error)
	SetStatus(ctx context.Context, ids []uuid.UUID, status domain.TicketStatus) error
	// TransitionByIntent moves every ticket of the intent that is in from to to
	// and returns the tickets that changed.
	TransitionByIntent(ctx context.Context, intentID string, from, to domain.TicketStatus) ([]domain.Ticket, error)
	SetQRToken(ctx context.Context, id uuid.UUID, token string) error
	SetPaymentIntent(ctx context.Context, ids []uuid.UUID, intentID string) error
	// CancelStalePending cancels up to limit PENDING tickets booked before cutoff.
	CancelStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error)
	DeleteCanceledBefore(ctx context.Context, cutoff time.Time) (int64, error)
	HasLiveForSchedule(ctx context.Context, scheduleID int64) (bool, error)
	GetDetails(ctx context.Context, id uuid.UUID) (*domain.TicketDetails, error)
	List(ctx context.Context, f TicketFilter) ([]domain.TicketDetails, int64, error)
}

type PaymentRepository interface {
	// RecordEvent stores a gateway event and reports false when its id was seen before.
	RecordEvent(ctx context.Context, ev domain.PaymentEvent) (bool, error)
	SetCustomerRef(ctx context.Context, userID int64, ref string) error
}

type CatalogRepository interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetAdmin(ctx context.Context, id int64) (*domain.Admin, error)
	AdminTheaterIDs(ctx context.Context, adminID int64) ([]int64, error)
	GetTheater(ctx context.Context, id int64) (*domain.Theater, error)
	CreateTheater(ctx context.Context, t domain.Theater) (int64, error)
	AssignTheaterAdmin(ctx context.Context, theaterID, adminID int64) error
	RemoveTheaterAdmin(ctx context.Context, theaterID, adminID int64) error
	GetScreen(ctx context.Context, id int64) (*domain.Screen, error)
	// LockScreen serializes schedule writes for one screen.
	LockScreen(ctx context.Context, id int64) (*domain.Screen, error)
	CreateScreen(ctx context.Context, s domain.Screen) (int64, error)
	// DeleteScreen cascades to the screen's seats, schedules and tickets.
	DeleteScreen(ctx context.Context, id int64) error
	AddTheaterCapacity(ctx context.Context, theaterID int64, delta int) error
	GetMovie(ctx context.Context, id int64) (*domain.Movie, error)
	CreateMovie(ctx context.Context, m domain.Movie) (int64, error)
	// DeleteMovie cascades to the movie's schedules and their tickets.
	DeleteMovie(ctx context.Context, id int64) error
}
