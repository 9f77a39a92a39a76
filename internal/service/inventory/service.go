// Package inventory owns seat availability. Every flip of a seat's
// availability flag goes through Reserve or one of the release methods,
// always inside the caller's transaction.
package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/uow"
)

type Cache interface {
	InvalidateScreen(ctx context.Context, screenID int64) error
}

type Events interface {
	PublishSeatMapChanged(ctx context.Context, screenID int64) error
}

type Service struct {
	cache  Cache
	events Events
	log    *slog.Logger
}

// New accepts nil cache and events for deployments without Redis.
func New(cache Cache, events Events, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{cache: cache, events: events, log: log}
}

// Reserve locks the requested seats and flips them unavailable. It fails
// without changing anything unless every seat exists on screenID and is
// available.
//
// Parameters:
//   - seats: seat repository bound to the caller's transaction.
//   - screenID: screen of the schedule being booked.
//   - seatIDs: distinct seat ids.
//
// Returns:
//   - []domain.Seat: the reserved seats ordered by id, with their current type and price.
//   - error: ErrNoSeats, ErrDuplicateSeats, SeatsNotFoundError or SeatsUnavailableError.
func (s *Service) Reserve(
	ctx context.Context,
	seats repository.SeatRepository,
	screenID int64,
	seatIDs []int64,
) ([]domain.Seat, error) {
	const op = "service.inventory.Reserve"

	if len(seatIDs) == 0 {
		return nil, ErrNoSeats
	}

	if hasDuplicates(seatIDs) {
		return nil, ErrDuplicateSeats
	}

	locked, err := seats.LockByIDs(ctx, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	found := make(map[int64]domain.Seat, len(locked))
	for _, seat := range locked {
		found[seat.ID] = seat
	}

	var missing, taken []int64
	for _, id := range seatIDs {
		seat, ok := found[id]
		switch {
		case !ok || seat.ScreenID != screenID:
			missing = append(missing, id)
		case !seat.Available:
			taken = append(taken, id)
		}
	}

	if len(missing) > 0 {
		return nil, SeatsNotFoundError{SeatIDs: missing}
	}

	if len(taken) > 0 {
		return nil, SeatsUnavailableError{SeatIDs: taken}
	}

	n, err := seats.MarkUnavailable(ctx, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if n != int64(len(seatIDs)) {
		return nil, SeatsUnavailableError{SeatIDs: seatIDs}
	}

	for i := range locked {
		locked[i].Available = false
	}

	return locked, nil
}

// Release makes seats available again. Seats that are already available or
// still held by a PENDING or PAID ticket are left alone.
func (s *Service) Release(ctx context.Context, seats repository.SeatRepository, seatIDs []int64) ([]int64, error) {
	const op = "service.inventory.Release"

	if len(seatIDs) == 0 {
		return nil, nil
	}

	screens, err := seats.Release(ctx, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return screens, nil
}

// ReleaseTickets gives back the seats of tickets that just left a live status.
// A seat already claimed by another live ticket stays unavailable.
func (s *Service) ReleaseTickets(
	ctx context.Context,
	seats repository.SeatRepository,
	tickets []domain.Ticket,
) ([]int64, error) {
	const op = "service.inventory.ReleaseTickets"

	if len(tickets) == 0 {
		return nil, nil
	}

	screens, err := seats.ReleaseForTickets(ctx, tickets)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return screens, nil
}

// Changed registers an after-commit hook that drops the cached seat maps of
// the screens and notifies seat-map subscribers.
func (s *Service) Changed(after func(uow.AfterCommit), screenIDs ...int64) {
	if len(screenIDs) == 0 {
		return
	}

	ids := slices.Clone(screenIDs)
	after(func(ctx context.Context) {
		for _, id := range ids {
			if s.cache != nil {
				if err := s.cache.InvalidateScreen(ctx, id); err != nil {
					s.log.Warn("seat map invalidation failed", "screen_id", id, "error", err)
				}
			}
			if s.events != nil {
				if err := s.events.PublishSeatMapChanged(ctx, id); err != nil {
					s.log.Warn("seat map publish failed", "screen_id", id, "error", err)
				}
			}
		}
	})
}

func hasDuplicates(ids []int64) bool {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}
