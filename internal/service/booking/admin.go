package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/auth"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/notify"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/uow"
)

var overrideEvents = map[domain.TicketStatus]notify.EventType{
	domain.TicketPaid:     notify.TicketPaid,
	domain.TicketUsed:     notify.TicketUsed,
	domain.TicketCanceled: notify.TicketCanceled,
	domain.TicketExpired:  notify.TicketExpired,
}

// UpdateStatus moves a live ticket directly into PAID, USED, CANCELED or
// EXPIRED. Canceling or expiring releases the seat.
func (s *Service) UpdateStatus(
	ctx context.Context,
	capab auth.Capability,
	ticketID uuid.UUID,
	status domain.TicketStatus,
) (*domain.TicketDetails, error) {
	const op = "service.booking.UpdateStatus"

	if !domain.OverrideAllowed(status) {
		return nil, ErrStatusNotAllowed
	}

	var out *domain.TicketDetails

	err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos, after func(uow.AfterCommit)) error {
		d, err := r.Tickets().LockDetails(ctx, ticketID)
		if err != nil {
			return notFoundAs(err, ErrTicketNotFound)
		}

		if err := auth.Authorize(capab, auth.ActionUpdateTicketStatus, d.TheaterID); err != nil {
			return err
		}

		out = d

		if d.Status == status {
			return nil
		}

		if d.Status.Terminal() {
			return ErrTicketFinal
		}

		if err := r.Tickets().SetStatus(ctx, []uuid.UUID{d.ID}, status); err != nil {
			return err
		}
		d.Status = status

		if status.ReleasesSeat() {
			screens, err := s.inv.ReleaseTickets(ctx, r.Seats(), []domain.Ticket{d.Ticket})
			if err != nil {
				return err
			}
			s.inv.Changed(after, screens...)
		}

		s.notifyAfter(after, overrideEvents[status], d.UserID, d.ScheduleID, "", []domain.Ticket{d.Ticket})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}
