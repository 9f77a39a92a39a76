package booking

import (
	"context"
	"fmt"

	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/notify"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/uow"
)

const maxSweepBatches = 20

// ExpireStale cancels PENDING tickets older than the hold window and
// releases their seats, one batch per transaction.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	const op = "service.booking.ExpireStale"

	cutoff := s.cfg.Now().Add(-s.cfg.HoldWindow)
	total := 0

	for i := 0; i < maxSweepBatches; i++ {
		var n int

		err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos, after func(uow.AfterCommit)) error {
			expired, err := r.Tickets().CancelStalePending(ctx, cutoff, s.cfg.SweepBatch)
			if err != nil {
				return err
			}
			n = len(expired)

			screens, err := s.inv.ReleaseTickets(ctx, r.Seats(), expired)
			if err != nil {
				return err
			}

			s.inv.Changed(after, screens...)
			for userID, tickets := range byUser(expired) {
				s.notifyAfter(after, notify.TicketExpired, userID, 0, "", tickets)
			}

			return nil
		})
		if err != nil {
			return total, fmt.Errorf("%s: %w", op, err)
		}

		total += n
		if n < s.cfg.SweepBatch {
			break
		}
	}

	return total, nil
}

// PurgeCanceled deletes CANCELED tickets booked before the retention window.
func (s *Service) PurgeCanceled(ctx context.Context) (int64, error) {
	const op = "service.booking.PurgeCanceled"

	cutoff := s.cfg.Now().Add(-s.cfg.RetentionWindow)

	var n int64
	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		n, err = r.Tickets().DeleteCanceledBefore(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func byUser(tickets []domain.Ticket) map[int64][]domain.Ticket {
	out := make(map[int64][]domain.Ticket)
	for _, t := range tickets {
		out[t.UserID] = append(out[t.UserID], t)
	}
	return out
}
