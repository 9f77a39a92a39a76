package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/domain"
)

type seatRepo struct{ *repos }

func (r *seatRepo) LockByIDs(ctx context.Context, seatIDs []int64) ([]domain.Seat, error) {
	var out []domain.Seat
	err := r.with(func(st *state) error {
		for _, id := range seatIDs {
			if s, ok := st.seats[id]; ok {
				out = append(out, s)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r *seatRepo) MarkUnavailable(ctx context.Context, seatIDs []int64) (int64, error) {
	var n int64
	err := r.with(func(st *state) error {
		for _, id := range seatIDs {
			s, ok := st.seats[id]
			if !ok || !s.Available {
				continue
			}
			s.Available = false
			st.seats[id] = s
			n++
		}
		return nil
	})
	return n, err
}

func (r *seatRepo) Release(ctx context.Context, seatIDs []int64) ([]int64, error) {
	var screens []int64
	err := r.with(func(st *state) error {
		screens = releaseSeats(st, seatIDs, nil)
		return nil
	})
	return screens, err
}

func (r *seatRepo) ReleaseForTickets(ctx context.Context, tickets []domain.Ticket) ([]int64, error) {
	seatIDs := make([]int64, 0, len(tickets))
	skip := make(map[uuid.UUID]struct{}, len(tickets))
	for _, t := range tickets {
		seatIDs = append(seatIDs, t.SeatID)
		skip[t.ID] = struct{}{}
	}

	var screens []int64
	err := r.with(func(st *state) error {
		screens = releaseSeats(st, seatIDs, skip)
		return nil
	})
	return screens, err
}

func releaseSeats(st *state, seatIDs []int64, skip map[uuid.UUID]struct{}) []int64 {
	held := make(map[int64]bool)
	for _, t := range st.tickets {
		if _, ok := skip[t.ID]; ok {
			continue
		}
		if t.Status.HoldsSeat() {
			held[t.SeatID] = true
		}
	}

	seen := make(map[int64]bool)
	var screens []int64
	for _, id := range seatIDs {
		s, ok := st.seats[id]
		if !ok || s.Available || held[id] {
			continue
		}
		s.Available = true
		st.seats[id] = s
		if !seen[s.ScreenID] {
			seen[s.ScreenID] = true
			screens = append(screens, s.ScreenID)
		}
	}
	return screens
}

func (r *seatRepo) ListByScreen(ctx context.Context, screenID int64) ([]domain.Seat, error) {
	var out []domain.Seat
	err := r.with(func(st *state) error {
		for _, s := range st.seats {
			if s.ScreenID == screenID {
				out = append(out, s)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Number < out[j].Number
	})
	return out, err
}

func (r *seatRepo) BatchCreate(ctx context.Context, screenID int64, seats []domain.Seat) error {
	const op = "memory.seatRepo.BatchCreate"

	return r.with(func(st *state) error {
		if _, ok := st.screens[screenID]; !ok {
			return notFound(op)
		}
		taken := make(map[string]bool)
		for _, s := range st.seats {
			if s.ScreenID == screenID {
				taken[s.Label()] = true
			}
		}
		for _, s := range seats {
			if taken[s.Label()] {
				continue
			}
			s.ID = st.nextID()
			s.ScreenID = screenID
			s.Available = true
			st.seats[s.ID] = s
			taken[s.Label()] = true
		}
		return nil
	})
}

func (r *seatRepo) UpdateAttrs(
	ctx context.Context,
	screenID, seatID int64,
	typ *domain.SeatType,
	priceCents *int64,
) error {
	const op = "memory.seatRepo.UpdateAttrs"

	return r.with(func(st *state) error {
		s, ok := st.seats[seatID]
		if !ok || s.ScreenID != screenID {
			return notFound(op)
		}
		if typ != nil {
			s.Type = *typ
		}
		if priceCents != nil {
			s.PriceCents = *priceCents
		}
		st.seats[seatID] = s
		return nil
	})
}
