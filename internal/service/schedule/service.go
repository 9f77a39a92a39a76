// Package schedule keeps the screening timetable of every screen free of
// overlaps.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/auth"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/notify"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/service/inventory"
	"github.com/kirinyoku/cinetix/internal/uow"
)

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

type CreateParams struct {
	ScreenID int64
	MovieID  int64
	StartsAt time.Time
	EndsAt   time.Time
}

// UpdateParams leaves nil fields unchanged.
type UpdateParams struct {
	MovieID  *int64
	StartsAt *time.Time
	EndsAt   *time.Time
}

// Create adds a screening to a screen.
//
// Parameters:
//   - ctx: request-scoped context.
//   - capab: caller capability; must be allowed to manage the screen's theater.
//   - p: screen, movie and the half-open interval [StartsAt, EndsAt).
//
// Returns:
//   - *domain.Schedule: the created schedule.
//   - error: ErrInvalidInterval, ErrScreenNotFound, ErrMovieNotFound, a Forbidden
//     auth error or OverlapError.
func (s *Service) Create(ctx context.Context, capab auth.Capability, p CreateParams) (*domain.Schedule, error) {
	const op = "service.schedule.Create"

	if !p.StartsAt.Before(p.EndsAt) {
		return nil, ErrInvalidInterval
	}

	sch := domain.Schedule{
		ScreenID: p.ScreenID,
		MovieID:  p.MovieID,
		StartsAt: p.StartsAt.UTC(),
		EndsAt:   p.EndsAt.UTC(),
	}

	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		if err := s.lockScreen(ctx, r, capab, sch.ScreenID); err != nil {
			return err
		}

		if _, err := r.Catalog().GetMovie(ctx, sch.MovieID); err != nil {
			return notFoundAs(err, ErrMovieNotFound)
		}

		if err := checkOverlap(ctx, r, sch, 0); err != nil {
			return err
		}

		id, err := r.Schedules().Create(ctx, sch)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrScheduleOverlap
			}
			return err
		}
		sch.ID = id

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("schedule created", "schedule_id", sch.ID, "screen_id", sch.ScreenID)

	return &sch, nil
}

// Update moves a schedule or changes its movie. The new interval is checked
// against every other schedule on the screen.
func (s *Service) Update(ctx context.Context, capab auth.Capability, id int64, p UpdateParams) (*domain.Schedule, error) {
	const op = "service.schedule.Update"

	var sch domain.Schedule

	err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos, after func(uow.AfterCommit)) error {
		cur, err := r.Schedules().Get(ctx, id)
		if err != nil {
			return notFoundAs(err, ErrScheduleNotFound)
		}

		if err := s.lockScreen(ctx, r, capab, cur.ScreenID); err != nil {
			return err
		}

		sch = *cur
		if p.MovieID != nil && *p.MovieID != cur.MovieID {
			if _, err := r.Catalog().GetMovie(ctx, *p.MovieID); err != nil {
				return notFoundAs(err, ErrMovieNotFound)
			}

			live, err := r.Tickets().HasLiveForSchedule(ctx, cur.ID)
			if err != nil {
				return err
			}
			if live {
				return ErrScheduleHasTickets
			}
			sch.MovieID = *p.MovieID
		}
		if p.StartsAt != nil {
			sch.StartsAt = p.StartsAt.UTC()
		}
		if p.EndsAt != nil {
			sch.EndsAt = p.EndsAt.UTC()
		}

		if !sch.StartsAt.Before(sch.EndsAt) {
			return ErrInvalidInterval
		}

		if err := checkOverlap(ctx, r, sch, sch.ID); err != nil {
			return err
		}

		if err := r.Schedules().Update(ctx, sch); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrScheduleOverlap
			}
			return err
		}

		s.invalidateAfter(after, sch.ID)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &sch, nil
}

// Delete removes a schedule that has not started yet. Its live tickets are
// canceled and their seats released in the same transaction. It returns the
// number of canceled tickets.
func (s *Service) Delete(ctx context.Context, capab auth.Capability, id int64) (int, error) {
	const op = "service.schedule.Delete"

	var canceled int

	err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos, after func(uow.AfterCommit)) error {
		sch, err := r.Schedules().Get(ctx, id)
		if err != nil {
			return notFoundAs(err, ErrScheduleNotFound)
		}

		if err := s.lockScreen(ctx, r, capab, sch.ScreenID); err != nil {
			return err
		}

		if !sch.StartsAt.After(s.now()) {
			return ErrScheduleStarted
		}

		live, err := r.Tickets().LockLiveBySchedule(ctx, id)
		if err != nil {
			return err
		}
		canceled = len(live)

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

		if err := r.Schedules().Delete(ctx, id); err != nil {
			return notFoundAs(err, ErrScheduleNotFound)
		}

		s.invalidateAfter(after, id)

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("schedule deleted", "schedule_id", id, "canceled_tickets", canceled)

	return canceled, nil
}

// lockScreen serializes schedule writes on a screen and checks the caller
// manages its theater.
func (s *Service) lockScreen(ctx context.Context, r repository.Repos, capab auth.Capability, screenID int64) error {
	screen, err := r.Catalog().LockScreen(ctx, screenID)
	if err != nil {
		return notFoundAs(err, ErrScreenNotFound)
	}

	return auth.Authorize(capab, auth.ActionManageSchedule, screen.TheaterID)
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

func checkOverlap(ctx context.Context, r repository.Repos, sch domain.Schedule, excludeID int64) error {
	other, err := r.Schedules().FindOverlap(ctx, sch.ScreenID, sch.StartsAt, sch.EndsAt, excludeID)
	if err == nil {
		return OverlapError{With: *other}
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

func notFoundAs(err, target error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return target
	}
	return err
}
