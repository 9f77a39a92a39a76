// Package booking is the ticket lifecycle engine: it books seats into
// PENDING tickets, cancels them, issues and scans QR tokens, applies
// administrative overrides and runs the expiry and purge sweeps.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/notify"
	"github.com/kirinyoku/cinetix/internal/qrcode"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/service/inventory"
	"github.com/kirinyoku/cinetix/internal/uow"
)

type Config struct {
	HoldWindow      time.Duration
	RetentionWindow time.Duration
	SweepBatch      int
	Now             func() time.Time
}

type Service struct {
	store    repository.Store
	inv      *inventory.Service
	notifier notify.Publisher
	qr       *qrcode.Encoder
	uow      *uow.UoW
	cfg      Config
	log      *slog.Logger

	newNumber func(time.Time) string
}

// numberAttempts bounds how often Book regenerates colliding ticket numbers.
const numberAttempts = 3

func New(
	store repository.Store,
	inv *inventory.Service,
	notifier notify.Publisher,
	qr *qrcode.Encoder,
	cfg Config,
	log *slog.Logger,
) *Service {
	if cfg.HoldWindow <= 0 {
		cfg.HoldWindow = 10 * time.Minute
	}

	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = 24 * time.Hour
	}

	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 500
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if notifier == nil {
		notifier = notify.Nop{}
	}

	if qr == nil {
		qr = qrcode.NewEncoder(qrcode.DefaultSize)
	}

	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:    store,
		inv:      inv,
		notifier: notifier,
		qr:       qr,
		uow:      uow.NewUoW(store),
		cfg:      cfg,
		log:      log,

		newNumber: newTicketNumber,
	}
}

// Book reserves seats for a schedule and creates one PENDING ticket per seat.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: ID of the user booking.
//   - theaterID: theater the schedule is expected to play in.
//   - scheduleID: ID of the schedule.
//   - seatIDs: distinct seats on the schedule's screen.
//
// Returns:
//   - []domain.Ticket: the created tickets, ordered by seat id.
//   - error: NotFound for a missing user, theater, schedule or seat;
//     inventory.SeatsUnavailableError when any seat is taken.
func (s *Service) Book(
	ctx context.Context,
	userID, theaterID, scheduleID int64,
	seatIDs []int64,
) ([]domain.Ticket, error) {
	const op = "service.booking.Book"

	for attempt := 1; ; attempt++ {
		tickets, err := s.book(ctx, userID, theaterID, scheduleID, seatIDs)
		if repository.ConflictOn(err, repository.ConstraintTicketNumber) && attempt < numberAttempts {
			s.log.Warn("ticket number collision, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return tickets, nil
	}
}

func (s *Service) book(
	ctx context.Context,
	userID, theaterID, scheduleID int64,
	seatIDs []int64,
) ([]domain.Ticket, error) {
	var tickets []domain.Ticket

	err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos, after func(uow.AfterCommit)) error {
		if _, err := r.Catalog().GetUser(ctx, userID); err != nil {
			return notFoundAs(err, ErrUserNotFound)
		}

		if _, err := r.Catalog().GetTheater(ctx, theaterID); err != nil {
			return notFoundAs(err, ErrTheaterNotFound)
		}

		sch, err := r.Schedules().Get(ctx, scheduleID)
		if err != nil {
			return notFoundAs(err, ErrScheduleNotFound)
		}

		screen, err := r.Catalog().GetScreen(ctx, sch.ScreenID)
		if err != nil {
			return err
		}

		if screen.TheaterID != theaterID {
			return ErrScheduleNotInTheater
		}

		now := s.cfg.Now()
		if !sch.EndsAt.After(now) {
			return ErrScheduleEnded
		}

		seats, err := s.inv.Reserve(ctx, r.Seats(), screen.ID, seatIDs)
		if err != nil {
			return err
		}

		tickets = make([]domain.Ticket, 0, len(seats))
		for _, seat := range seats {
			tickets = append(tickets, domain.Ticket{
				ID:         uuid.New(),
				Number:     s.newNumber(now),
				UserID:     userID,
				ScheduleID: sch.ID,
				SeatID:     seat.ID,
				SeatType:   seat.Type,
				PriceCents: seat.PriceCents,
				Status:     domain.TicketPending,
				BookedAt:   now,
			})
		}

		if err := r.Tickets().CreateBatch(ctx, tickets); err != nil {
			if repository.ConflictOn(err, repository.ConstraintLiveSeat) {
				return inventory.SeatsUnavailableError{SeatIDs: seatIDs}
			}
			return err
		}

		s.inv.Changed(after, screen.ID)
		s.notifyAfter(after, notify.TicketBooked, userID, sch.ID, "", tickets)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return tickets, nil
}

// Cancel cancels the user's PENDING or PAID tickets and releases their seats.
// Either every ticket is canceled or none is.
func (s *Service) Cancel(ctx context.Context, userID int64, ticketIDs []uuid.UUID) ([]domain.Ticket, error) {
	const op = "service.booking.Cancel"

	if err := checkTicketIDs(ticketIDs); err != nil {
		return nil, err
	}

	var canceled []domain.Ticket

	err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos, after func(uow.AfterCommit)) error {
		tickets, err := s.lockOwned(ctx, r, userID, ticketIDs)
		if err != nil {
			return err
		}

		for _, t := range tickets {
			if t.Status.Terminal() {
				return ErrTicketNotCancelable
			}
		}

		if err := r.Tickets().SetStatus(ctx, ticketIDs, domain.TicketCanceled); err != nil {
			return err
		}

		screens, err := s.inv.ReleaseTickets(ctx, r.Seats(), tickets)
		if err != nil {
			return err
		}

		for i := range tickets {
			tickets[i].Status = domain.TicketCanceled
		}
		canceled = tickets

		s.inv.Changed(after, screens...)
		s.notifyAfter(after, notify.TicketCanceled, userID, 0, "", tickets)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return canceled, nil
}

// lockOwned locks tickets and checks they all exist and belong to userID.
func (s *Service) lockOwned(
	ctx context.Context,
	r repository.Repos,
	userID int64,
	ticketIDs []uuid.UUID,
) ([]domain.Ticket, error) {
	tickets, err := r.Tickets().LockByIDs(ctx, ticketIDs)
	if err != nil {
		return nil, err
	}

	if len(tickets) != len(ticketIDs) {
		return nil, ErrTicketNotFound
	}

	for _, t := range tickets {
		if t.UserID != userID {
			return nil, ErrNotTicketOwner
		}
	}

	return tickets, nil
}

func (s *Service) notifyAfter(
	after func(uow.AfterCommit),
	typ notify.EventType,
	userID, scheduleID int64,
	intentID string,
	tickets []domain.Ticket,
) {
	if len(tickets) == 0 {
		return
	}

	ids := make([]uuid.UUID, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.ID)
	}

	ev := notify.NewEvent(typ, userID, ids...)
	ev.ScheduleID = scheduleID
	ev.IntentID = intentID

	after(func(ctx context.Context) {
		if err := s.notifier.Publish(ctx, ev); err != nil {
			s.log.Warn("ticket notification failed", "type", typ, "user_id", userID, "error", err)
		}
	})
}

// newTicketNumber returns TIX-<yyyymmdd>-<12 random hex digits>.
func newTicketNumber(now time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("TIX-%s-%s", now.UTC().Format("20060102"), id[:12])
}

func checkTicketIDs(ids []uuid.UUID) error {
	if len(ids) == 0 {
		return ErrNoTickets
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return ErrDuplicateTickets
		}
		seen[id] = struct{}{}
	}

	return nil
}

func notFoundAs(err, target error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return target
	}
	return err
}
