// Package admin provisions the catalog: theaters and their administrators,
// screens with their seats, and movies.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/auth"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/notify"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/service/inventory"
	"github.com/kirinyoku/cinetix/internal/uow"
)

const maxRows = 26

// Cache drops cached schedule projections of removed screenings.
type Cache interface {
	InvalidateSchedule(ctx context.Context, scheduleID int64) error
}

type Service struct {
	store    repository.Store
	inv      *inventory.Service
	cache    Cache
	notifier notify.Publisher
	uow      *uow.UoW
	now      func() time.Time
	log      *slog.Logger
}

// New accepts a nil cache and notifier.
func New(
	store repository.Store,
	inv *inventory.Service,
	cache Cache,
	notifier notify.Publisher,
	now func() time.Time,
	log *slog.Logger,
) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}

	if now == nil {
		now = time.Now
	}

	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:    store,
		inv:      inv,
		cache:    cache,
		notifier: notifier,
		uow:      uow.NewUoW(store),
		now:      now,
		log:      log,
	}
}

// CreateTheater creates a theater record and returns it.
//
// Parameters:
//   - ctx: request-scoped context.
//   - capab: caller capability; only super admins may create theaters.
//   - name: unique theater name.
//   - city: theater location.
//
// Returns:
//   - *domain.Theater: the created theater with zero capacity.
//   - error: admin.ErrTheaterConflict if a theater with the same name exists.
func (s *Service) CreateTheater(ctx context.Context, capab auth.Capability, name, city string) (*domain.Theater, error) {
	const op = "service.admin.CreateTheater"

	if err := auth.Authorize(capab, auth.ActionCreateTheater, 0); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	t := domain.Theater{Name: strings.TrimSpace(name), City: strings.TrimSpace(city)}
	if t.Name == "" {
		return nil, ErrNameRequired
	}

	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		id, err := r.Catalog().CreateTheater(ctx, t)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrTheaterConflict
			}
			return err
		}
		t.ID = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &t, nil
}

// AssignTheaterAdmin scopes a theater admin to one more theater. Assigning
// twice is a no-op.
func (s *Service) AssignTheaterAdmin(ctx context.Context, capab auth.Capability, theaterID, adminID int64) error {
	const op = "service.admin.AssignTheaterAdmin"

	if err := auth.Authorize(capab, auth.ActionAssignAdmin, theaterID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		if _, err := r.Catalog().GetTheater(ctx, theaterID); err != nil {
			return notFoundAs(err, ErrTheaterNotFound)
		}

		a, err := r.Catalog().GetAdmin(ctx, adminID)
		if err != nil {
			return notFoundAs(err, ErrAdminNotFound)
		}

		if a.Role != domain.RoleTheaterAdmin {
			return ErrNotTheaterAdmin
		}

		return r.Catalog().AssignTheaterAdmin(ctx, theaterID, adminID)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RemoveTheaterAdmin revokes a theater admin's access to one theater.
func (s *Service) RemoveTheaterAdmin(ctx context.Context, capab auth.Capability, theaterID, adminID int64) error {
	const op = "service.admin.RemoveTheaterAdmin"

	if err := auth.Authorize(capab, auth.ActionRemoveAdmin, theaterID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		return notFoundAs(r.Catalog().RemoveTheaterAdmin(ctx, theaterID, adminID), ErrAssignmentNotFound)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("theater admin removed", "theater_id", theaterID, "admin_id", adminID)

	return nil
}

// SeatOverride gives one seat of a generated layout its own type or price.
type SeatOverride struct {
	Row        string
	Number     int
	Type       domain.SeatType
	PriceCents *int64
}

type ScreenParams struct {
	Name        string
	Rows        int
	SeatsPerRow int
	// Type and PriceCents apply to every seat without an override.
	Type       domain.SeatType
	PriceCents int64
	Overrides  []SeatOverride
}

// CreateScreen provisions a screen with a rows x seatsPerRow grid of seats
// and grows the theater's capacity by the same amount.
//
// Returns:
//   - *domain.Screen: the created screen.
//   - []domain.Seat: its seats ordered by row and number.
//   - error: admin.ErrInvalidLayout, admin.ErrScreenConflict or a Forbidden
//     auth error.
func (s *Service) CreateScreen(
	ctx context.Context,
	capab auth.Capability,
	theaterID int64,
	p ScreenParams,
) (*domain.Screen, []domain.Seat, error) {
	const op = "service.admin.CreateScreen"

	if err := auth.Authorize(capab, auth.ActionManageScreen, theaterID); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	layout, err := buildLayout(p)
	if err != nil {
		return nil, nil, err
	}

	screen := domain.Screen{
		TheaterID: theaterID,
		Name:      strings.TrimSpace(p.Name),
		Capacity:  len(layout),
	}

	var seats []domain.Seat

	err = s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		if _, err := r.Catalog().GetTheater(ctx, theaterID); err != nil {
			return notFoundAs(err, ErrTheaterNotFound)
		}

		id, err := r.Catalog().CreateScreen(ctx, screen)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrScreenConflict
			}
			return err
		}
		screen.ID = id

		if err := r.Seats().BatchCreate(ctx, id, layout); err != nil {
			return err
		}

		if err := r.Catalog().AddTheaterCapacity(ctx, theaterID, screen.Capacity); err != nil {
			return err
		}

		seats, err = r.Seats().ListByScreen(ctx, id)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("screen created", "screen_id", screen.ID, "theater_id", theaterID, "seats", len(seats))

	return &screen, seats, nil
}

// SeatEdit changes a seat's type and/or price. Nil fields are kept.
type SeatEdit struct {
	SeatID     int64
	Type       *domain.SeatType
	PriceCents *int64
}

// UpdateSeats applies seat edits on one screen atomically. Tickets already
// issued keep the type and price they were booked with.
func (s *Service) UpdateSeats(ctx context.Context, capab auth.Capability, screenID int64, edits []SeatEdit) error {
	const op = "service.admin.UpdateSeats"

	for _, e := range edits {
		if e.Type == nil && e.PriceCents == nil {
			return ErrNothingToUpdate
		}
		if e.Type != nil && !e.Type.Valid() {
			return ErrInvalidSeatType
		}
		if e.PriceCents != nil && *e.PriceCents < 0 {
			return ErrInvalidPrice
		}
	}

	err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos, after func(uow.AfterCommit)) error {
		if err := s.authorizeScreen(ctx, r, capab, screenID); err != nil {
			return err
		}

		for _, e := range edits {
			if err := r.Seats().UpdateAttrs(ctx, screenID, e.SeatID, e.Type, e.PriceCents); err != nil {
				return notFoundAs(err, ErrSeatNotFound)
			}
		}

		s.inv.Changed(after, screenID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

type ReleaseResult struct {
	Released []int64 `json:"released"`
	Held     []int64 `json:"held"`
}

// ReleaseSeats makes seats of a screen available again. Seats still held by
// a PENDING or PAID ticket are refused and reported in Held. Releasing an
// available seat is a no-op that still counts as released.
func (s *Service) ReleaseSeats(
	ctx context.Context,
	capab auth.Capability,
	screenID int64,
	seatIDs []int64,
) (*ReleaseResult, error) {
	const op = "service.admin.ReleaseSeats"

	if len(seatIDs) == 0 {
		return nil, ErrNoSeatsToRelease
	}

	seatIDs = slices.Compact(slices.Sorted(slices.Values(seatIDs)))

	res := &ReleaseResult{}

	err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos, after func(uow.AfterCommit)) error {
		*res = ReleaseResult{}

		if err := s.authorizeScreen(ctx, r, capab, screenID); err != nil {
			return err
		}

		seats, err := r.Seats().LockByIDs(ctx, seatIDs)
		if err != nil {
			return err
		}

		if len(seats) != len(seatIDs) {
			return ErrSeatNotFound
		}
		for _, seat := range seats {
			if seat.ScreenID != screenID {
				return ErrSeatNotFound
			}
		}

		screens, err := s.inv.Release(ctx, r.Seats(), seatIDs)
		if err != nil {
			return err
		}
		s.inv.Changed(after, screens...)

		current, err := r.Seats().LockByIDs(ctx, seatIDs)
		if err != nil {
			return err
		}
		for _, seat := range current {
			if seat.Available {
				res.Released = append(res.Released, seat.ID)
			} else {
				res.Held = append(res.Held, seat.ID)
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return res, nil
}

func (s *Service) CreateMovie(ctx context.Context, capab auth.Capability, m domain.Movie) (*domain.Movie, error) {
	const op = "service.admin.CreateMovie"

	if err := auth.Authorize(capab, auth.ActionManageMovie, 0); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" {
		return nil, ErrNameRequired
	}
	if m.DurationMin <= 0 {
		return nil, ErrInvalidDuration
	}

	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		id, err := r.Catalog().CreateMovie(ctx, m)
		m.ID = id
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &m, nil
}

// DeleteResult counts what a catalog delete took with it.
type DeleteResult struct {
	Schedules       int `json:"schedules"`
	CanceledTickets int `json:"canceled_tickets"`
}

// DeleteScreen removes a screen with its seats and schedules. Live tickets of
// its schedules are canceled first and their holders notified. A screen with
// a screening in progress cannot be deleted.
func (s *Service) DeleteScreen(ctx context.Context, capab auth.Capability, screenID int64) (*DeleteResult, error) {
	const op = "service.admin.DeleteScreen"

	res := &DeleteResult{}

	err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos, after func(uow.AfterCommit)) error {
		*res = DeleteResult{}

		screen, err := r.Catalog().LockScreen(ctx, screenID)
		if err != nil {
			return notFoundAs(err, ErrScreenNotFound)
		}

		if err := auth.Authorize(capab, auth.ActionManageScreen, screen.TheaterID); err != nil {
			return err
		}

		schedules, err := r.Schedules().ListByScreen(ctx, screenID)
		if err != nil {
			return err
		}

		if err := s.cancelSchedules(ctx, r, after, schedules, res); err != nil {
			return err
		}

		if err := r.Catalog().DeleteScreen(ctx, screenID); err != nil {
			return notFoundAs(err, ErrScreenNotFound)
		}

		return r.Catalog().AddTheaterCapacity(ctx, screen.TheaterID, -screen.Capacity)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("screen deleted", "screen_id", screenID,
		"schedules", res.Schedules, "canceled_tickets", res.CanceledTickets)

	return res, nil
}

// DeleteMovie removes a movie and every schedule showing it, canceling their
// live tickets. A movie being screened right now cannot be deleted.
func (s *Service) DeleteMovie(ctx context.Context, capab auth.Capability, movieID int64) (*DeleteResult, error) {
	const op = "service.admin.DeleteMovie"

	if err := auth.Authorize(capab, auth.ActionDeleteMovie, 0); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res := &DeleteResult{}

	err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos, after func(uow.AfterCommit)) error {
		*res = DeleteResult{}

		if _, err := r.Catalog().GetMovie(ctx, movieID); err != nil {
			return notFoundAs(err, ErrMovieNotFound)
		}

		schedules, err := r.Schedules().ListByMovie(ctx, movieID)
		if err != nil {
			return err
		}

		// schedule writes lock their screen first
		screens := make([]int64, 0, len(schedules))
		for _, sch := range schedules {
			screens = append(screens, sch.ScreenID)
		}
		for _, id := range slices.Compact(slices.Sorted(slices.Values(screens))) {
			if _, err := r.Catalog().LockScreen(ctx, id); err != nil {
				return err
			}
		}

		if err := s.cancelSchedules(ctx, r, after, schedules, res); err != nil {
			return err
		}

		return notFoundAs(r.Catalog().DeleteMovie(ctx, movieID), ErrMovieNotFound)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("movie deleted", "movie_id", movieID,
		"schedules", res.Schedules, "canceled_tickets", res.CanceledTickets)

	return res, nil
}

// cancelSchedules cancels the live tickets of schedules about to be removed
// and releases their seats.
func (s *Service) cancelSchedules(
	ctx context.Context,
	r repository.Repos,
	after func(uow.AfterCommit),
	schedules []domain.Schedule,
	res *DeleteResult,
) error {
	now := s.now()
	for _, sch := range schedules {
		if !sch.StartsAt.After(now) && sch.EndsAt.After(now) {
			return ErrScreeningInProgress
		}
	}

	for _, sch := range schedules {
		live, err := r.Tickets().LockLiveBySchedule(ctx, sch.ID)
		if err != nil {
			return err
		}

		if len(live) > 0 {
			ids := make([]uuid.UUID, 0, len(live))
			for _, t := range live {
				ids = append(ids, t.ID)
			}

			if err := r.Tickets().SetStatus(ctx, ids, domain.TicketCanceled); err != nil {
				return err
			}

			screens, err := s.inv.ReleaseTickets(ctx, r.Seats(), live)
			if err != nil {
				return err
			}
			s.inv.Changed(after, screens...)
			s.notifyCanceled(after, sch.ID, live)
		}

		s.invalidateAfter(after, sch.ID)
		res.Schedules++
		res.CanceledTickets += len(live)
	}

	return nil
}

func (s *Service) invalidateAfter(after func(uow.AfterCommit), scheduleID int64) {
	if s.cache == nil {
		return
	}

	after(func(ctx context.Context) {
		if err := s.cache.InvalidateSchedule(ctx, scheduleID); err != nil {
			s.log.Warn("schedule invalidation failed", "schedule_id", scheduleID, "error", err)
		}
	})
}

func (s *Service) notifyCanceled(after func(uow.AfterCommit), scheduleID int64, tickets []domain.Ticket) {
	byUser := make(map[int64][]uuid.UUID)
	for _, t := range tickets {
		byUser[t.UserID] = append(byUser[t.UserID], t.ID)
	}

	for userID, ids := range byUser {
		ev := notify.NewEvent(notify.TicketCanceled, userID, ids...)
		ev.ScheduleID = scheduleID

		after(func(ctx context.Context) {
			if err := s.notifier.Publish(ctx, ev); err != nil {
				s.log.Warn("ticket notification failed", "type", ev.Type, "user_id", ev.UserID, "error", err)
			}
		})
	}
}

func (s *Service) authorizeScreen(ctx context.Context, r repository.Repos, capab auth.Capability, screenID int64) error {
	screen, err := r.Catalog().GetScreen(ctx, screenID)
	if err != nil {
		return notFoundAs(err, ErrScreenNotFound)
	}

	return auth.Authorize(capab, auth.ActionManageScreen, screen.TheaterID)
}

// buildLayout expands a screen's grid into seats, rows lettered from A.
func buildLayout(p ScreenParams) ([]domain.Seat, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, ErrNameRequired
	}

	if p.Rows < 1 || p.Rows > maxRows || p.SeatsPerRow < 1 {
		return nil, ErrInvalidLayout
	}

	if p.Type == "" {
		p.Type = domain.SeatRegular
	}
	if !p.Type.Valid() {
		return nil, ErrInvalidSeatType
	}
	if p.PriceCents < 0 {
		return nil, ErrInvalidPrice
	}

	seats := make([]domain.Seat, 0, p.Rows*p.SeatsPerRow)
	index := make(map[string]int, p.Rows*p.SeatsPerRow)

	for r := 0; r < p.Rows; r++ {
		row := string(rune('A' + r))
		for n := 1; n <= p.SeatsPerRow; n++ {
			index[fmt.Sprintf("%s%d", row, n)] = len(seats)
			seats = append(seats, domain.Seat{
				Row:        row,
				Number:     n,
				Type:       p.Type,
				PriceCents: p.PriceCents,
				Available:  true,
			})
		}
	}

	for _, o := range p.Overrides {
		i, ok := index[fmt.Sprintf("%s%d", strings.ToUpper(o.Row), o.Number)]
		if !ok {
			return nil, ErrOverrideOutside
		}
		if o.Type != "" {
			if !o.Type.Valid() {
				return nil, ErrInvalidSeatType
			}
			seats[i].Type = o.Type
		}
		if o.PriceCents != nil {
			if *o.PriceCents < 0 {
				return nil, ErrInvalidPrice
			}
			seats[i].PriceCents = *o.PriceCents
		}
	}

	return seats, nil
}

func notFoundAs(err, target error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return target
	}
	return err
}
