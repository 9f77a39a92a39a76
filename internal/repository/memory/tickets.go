package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
)

type ticketRepo struct{ *repos }

func sortTicketsByID(ts []domain.Ticket) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID.String() < ts[j].ID.String() })
}

func (r *ticketRepo) CreateBatch(ctx context.Context, tickets []domain.Ticket) error {
	const op = "memory.ticketRepo.CreateBatch"

	return r.with(func(st *state) error {
		numbers := make(map[string]bool, len(st.tickets))
		live := make(map[[2]int64]bool)
		for _, t := range st.tickets {
			numbers[t.Number] = true
			if t.Status.HoldsSeat() || t.Status == domain.TicketUsed {
				live[[2]int64{t.SeatID, t.ScheduleID}] = true
			}
		}

		for _, t := range tickets {
			if _, ok := st.tickets[t.ID]; ok {
				return conflict(op, "tickets_pkey")
			}
			if numbers[t.Number] {
				return conflict(op, repository.ConstraintTicketNumber)
			}
			key := [2]int64{t.SeatID, t.ScheduleID}
			if live[key] {
				return conflict(op, repository.ConstraintLiveSeat)
			}
			if _, ok := st.seats[t.SeatID]; !ok {
				return notFound(op)
			}
			if _, ok := st.schedules[t.ScheduleID]; !ok {
				return notFound(op)
			}
			st.tickets[t.ID] = t
			numbers[t.Number] = true
			live[key] = true
		}
		return nil
	})
}

func (r *ticketRepo) collect(match func(domain.Ticket) bool) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.with(func(st *state) error {
		for _, t := range st.tickets {
			if match(t) {
				out = append(out, t)
			}
		}
		return nil
	})
	sortTicketsByID(out)
	return out, err
}

func (r *ticketRepo) LockByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Ticket, error) {
	return r.collect(func(t domain.Ticket) bool { return slices.Contains(ids, t.ID) })
}

func (r *ticketRepo) LockByIntent(ctx context.Context, intentID string) ([]domain.Ticket, error) {
	return r.collect(func(t domain.Ticket) bool {
		return t.PaymentIntentID != nil && *t.PaymentIntentID == intentID
	})
}

func (r *ticketRepo) LockLiveBySchedule(ctx context.Context, scheduleID int64) ([]domain.Ticket, error) {
	return r.collect(func(t domain.Ticket) bool {
		return t.ScheduleID == scheduleID && t.Status.HoldsSeat()
	})
}

func details(st *state, t domain.Ticket) domain.TicketDetails {
	d := domain.TicketDetails{Ticket: t}
	seat := st.seats[t.SeatID]
	sc := st.schedules[t.ScheduleID]
	scr := st.screens[sc.ScreenID]
	th := st.theaters[scr.TheaterID]
	m := st.movies[sc.MovieID]

	d.SeatRow, d.SeatNumber = seat.Row, seat.Number
	d.ScreenID, d.ScreenName = scr.ID, scr.Name
	d.TheaterID, d.TheaterName = th.ID, th.Name
	d.MovieID, d.MovieTitle = m.ID, m.Title
	d.StartsAt, d.EndsAt = sc.StartsAt, sc.EndsAt
	return d
}

func (r *ticketRepo) findDetails(op string, match func(domain.Ticket) bool) (*domain.TicketDetails, error) {
	var out *domain.TicketDetails
	err := r.with(func(st *state) error {
		for _, t := range st.tickets {
			if match(t) {
				d := details(st, t)
				out = &d
				return nil
			}
		}
		return notFound(op)
	})
	return out, err
}

func (r *ticketRepo) LockDetails(ctx context.Context, id uuid.UUID) (*domain.TicketDetails, error) {
	return r.findDetails("memory.ticketRepo.LockDetails", func(t domain.Ticket) bool { return t.ID == id })
}

func (r *ticketRepo) LockDetailsByQRToken(ctx context.Context, token string) (*domain.TicketDetails, error) {
	return r.findDetails("memory.ticketRepo.LockDetailsByQRToken", func(t domain.Ticket) bool {
		return t.QRToken != nil && *t.QRToken == token
	})
}

func (r *ticketRepo) GetDetails(ctx context.Context, id uuid.UUID) (*domain.TicketDetails, error) {
	return r.findDetails("memory.ticketRepo.GetDetails", func(t domain.Ticket) bool { return t.ID == id })
}

func (r *ticketRepo) SetStatus(ctx context.Context, ids []uuid.UUID, status domain.TicketStatus) error {
	const op = "memory.ticketRepo.SetStatus"

	return r.with(func(st *state) error {
		for _, id := range ids {
			if _, ok := st.tickets[id]; !ok {
				return notFound(op)
			}
		}
		for _, id := range ids {
			t := st.tickets[id]
			t.Status = status
			st.tickets[id] = t
		}
		return nil
	})
}

func (r *ticketRepo) TransitionByIntent(
	ctx context.Context,
	intentID string,
	from, to domain.TicketStatus,
) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.with(func(st *state) error {
		for id, t := range st.tickets {
			if t.PaymentIntentID == nil || *t.PaymentIntentID != intentID || t.Status != from {
				continue
			}
			t.Status = to
			st.tickets[id] = t
			out = append(out, t)
		}
		return nil
	})
	sortTicketsByID(out)
	return out, err
}

func (r *ticketRepo) SetQRToken(ctx context.Context, id uuid.UUID, token string) error {
	const op = "memory.ticketRepo.SetQRToken"

	return r.with(func(st *state) error {
		t, ok := st.tickets[id]
		if !ok {
			return notFound(op)
		}
		if t.QRToken != nil {
			return conflict(op, "qr_token already set")
		}
		t.QRToken = &token
		st.tickets[id] = t
		return nil
	})
}

func (r *ticketRepo) SetPaymentIntent(ctx context.Context, ids []uuid.UUID, intentID string) error {
	return r.with(func(st *state) error {
		for _, id := range ids {
			t, ok := st.tickets[id]
			if !ok {
				continue
			}
			ref := intentID
			t.PaymentIntentID = &ref
			st.tickets[id] = t
		}
		return nil
	})
}

func (r *ticketRepo) CancelStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.with(func(st *state) error {
		var stale []domain.Ticket
		for _, t := range st.tickets {
			if t.Status == domain.TicketPending && t.BookedAt.Before(cutoff) {
				stale = append(stale, t)
			}
		}
		sort.Slice(stale, func(i, j int) bool { return stale[i].BookedAt.Before(stale[j].BookedAt) })
		if limit > 0 && len(stale) > limit {
			stale = stale[:limit]
		}
		for _, t := range stale {
			t.Status = domain.TicketCanceled
			st.tickets[t.ID] = t
			out = append(out, t)
		}
		return nil
	})
	return out, err
}

func (r *ticketRepo) DeleteCanceledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.with(func(st *state) error {
		for id, t := range st.tickets {
			if t.Status == domain.TicketCanceled && t.BookedAt.Before(cutoff) {
				delete(st.tickets, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *ticketRepo) HasLiveForSchedule(ctx context.Context, scheduleID int64) (bool, error) {
	var found bool
	err := r.with(func(st *state) error {
		for _, t := range st.tickets {
			if t.ScheduleID == scheduleID && (t.Status.HoldsSeat() || t.Status == domain.TicketUsed) {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *ticketRepo) List(ctx context.Context, f repository.TicketFilter) ([]domain.TicketDetails, int64, error) {
	var all []domain.TicketDetails
	err := r.with(func(st *state) error {
		for _, t := range st.tickets {
			if f.UserID > 0 && t.UserID != f.UserID {
				continue
			}
			if f.Status != nil && t.Status != *f.Status {
				continue
			}
			d := details(st, t)
			if f.TheaterIDs != nil && !slices.Contains(f.TheaterIDs, d.TheaterID) {
				continue
			}
			all = append(all, d)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].BookedAt.Equal(all[j].BookedAt) {
			return all[i].BookedAt.After(all[j].BookedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})

	total := int64(len(all))
	if f.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[f.Offset:]
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, total, nil
}
