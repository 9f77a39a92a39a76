package memory

import (
	"context"
	"sort"

	"github.com/kirinyoku/cinetix/internal/domain"
)

type catalogRepo struct{ *repos }

func (r *catalogRepo) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var out *domain.User
	err := r.with(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return notFound("memory.catalogRepo.GetUser")
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *catalogRepo) GetAdmin(ctx context.Context, id int64) (*domain.Admin, error) {
	var out *domain.Admin
	err := r.with(func(st *state) error {
		a, ok := st.admins[id]
		if !ok {
			return notFound("memory.catalogRepo.GetAdmin")
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *catalogRepo) AdminTheaterIDs(ctx context.Context, adminID int64) ([]int64, error) {
	var out []int64
	err := r.with(func(st *state) error {
		for id := range st.theaterAdmins[adminID] {
			out = append(out, id)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, err
}

func (r *catalogRepo) GetTheater(ctx context.Context, id int64) (*domain.Theater, error) {
	var out *domain.Theater
	err := r.with(func(st *state) error {
		t, ok := st.theaters[id]
		if !ok {
			return notFound("memory.catalogRepo.GetTheater")
		}
		out = &t
		return nil
	})
	return out, err
}

func (r *catalogRepo) CreateTheater(ctx context.Context, t domain.Theater) (int64, error) {
	err := r.with(func(st *state) error {
		for _, existing := range st.theaters {
			if existing.Name == t.Name {
				return conflict("memory.catalogRepo.CreateTheater", "theaters_name_key")
			}
		}
		t.ID = st.nextID()
		t.Capacity = 0
		st.theaters[t.ID] = t
		return nil
	})
	return t.ID, err
}

func (r *catalogRepo) AssignTheaterAdmin(ctx context.Context, theaterID, adminID int64) error {
	const op = "memory.catalogRepo.AssignTheaterAdmin"

	return r.with(func(st *state) error {
		if _, ok := st.theaters[theaterID]; !ok {
			return notFound(op)
		}
		if _, ok := st.admins[adminID]; !ok {
			return notFound(op)
		}
		if st.theaterAdmins[adminID] == nil {
			st.theaterAdmins[adminID] = make(map[int64]struct{})
		}
		st.theaterAdmins[adminID][theaterID] = struct{}{}
		return nil
	})
}

func (r *catalogRepo) RemoveTheaterAdmin(ctx context.Context, theaterID, adminID int64) error {
	return r.with(func(st *state) error {
		if _, ok := st.theaterAdmins[adminID][theaterID]; !ok {
			return notFound("memory.catalogRepo.RemoveTheaterAdmin")
		}
		delete(st.theaterAdmins[adminID], theaterID)
		return nil
	})
}

func (r *catalogRepo) GetScreen(ctx context.Context, id int64) (*domain.Screen, error) {
	var out *domain.Screen
	err := r.with(func(st *state) error {
		s, ok := st.screens[id]
		if !ok {
			return notFound("memory.catalogRepo.GetScreen")
		}
		out = &s
		return nil
	})
	return out, err
}

func (r *catalogRepo) LockScreen(ctx context.Context, id int64) (*domain.Screen, error) {
	return r.GetScreen(ctx, id)
}

func (r *catalogRepo) CreateScreen(ctx context.Context, s domain.Screen) (int64, error) {
	const op = "memory.catalogRepo.CreateScreen"

	err := r.with(func(st *state) error {
		if _, ok := st.theaters[s.TheaterID]; !ok {
			return notFound(op)
		}
		for _, existing := range st.screens {
			if existing.TheaterID == s.TheaterID && existing.Name == s.Name {
				return conflict(op, "screens_theater_id_name_key")
			}
		}
		s.ID = st.nextID()
		st.screens[s.ID] = s
		return nil
	})
	return s.ID, err
}

func (r *catalogRepo) AddTheaterCapacity(ctx context.Context, theaterID int64, delta int) error {
	return r.with(func(st *state) error {
		t, ok := st.theaters[theaterID]
		if !ok {
			return nil
		}
		t.Capacity += delta
		st.theaters[theaterID] = t
		return nil
	})
}

func (r *catalogRepo) GetMovie(ctx context.Context, id int64) (*domain.Movie, error) {
	var out *domain.Movie
	err := r.with(func(st *state) error {
		m, ok := st.movies[id]
		if !ok {
			return notFound("memory.catalogRepo.GetMovie")
		}
		out = &m
		return nil
	})
	return out, err
}

func (r *catalogRepo) CreateMovie(ctx context.Context, m domain.Movie) (int64, error) {
	err := r.with(func(st *state) error {
		m.ID = st.nextID()
		st.movies[m.ID] = m
		return nil
	})
	return m.ID, err
}

func (r *catalogRepo) DeleteScreen(ctx context.Context, id int64) error {
	return r.with(func(st *state) error {
		if _, ok := st.screens[id]; !ok {
			return notFound("memory.catalogRepo.DeleteScreen")
		}
		delete(st.screens, id)
		for seatID, seat := range st.seats {
			if seat.ScreenID == id {
				delete(st.seats, seatID)
			}
		}
		st.dropSchedules(func(s domain.Schedule) bool { return s.ScreenID == id })
		return nil
	})
}

func (r *catalogRepo) DeleteMovie(ctx context.Context, id int64) error {
	return r.with(func(st *state) error {
		if _, ok := st.movies[id]; !ok {
			return notFound("memory.catalogRepo.DeleteMovie")
		}
		delete(st.movies, id)
		st.dropSchedules(func(s domain.Schedule) bool { return s.MovieID == id })
		return nil
	})
}

// dropSchedules deletes matching schedules and their tickets.
func (st *state) dropSchedules(match func(domain.Schedule) bool) {
	for id, s := range st.schedules {
		if !match(s) {
			continue
		}
		delete(st.schedules, id)
		for tid, t := range st.tickets {
			if t.ScheduleID == id {
				delete(st.tickets, tid)
			}
		}
	}
}

type paymentRepo struct{ *repos }

func (r *paymentRepo) RecordEvent(ctx context.Context, ev domain.PaymentEvent) (bool, error) {
	var inserted bool
	err := r.with(func(st *state) error {
		if _, ok := st.events[ev.ID]; ok {
			return nil
		}
		st.events[ev.ID] = ev
		inserted = true
		return nil
	})
	return inserted, err
}

func (r *paymentRepo) SetCustomerRef(ctx context.Context, userID int64, ref string) error {
	return r.with(func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			return notFound("memory.paymentRepo.SetCustomerRef")
		}
		u.PaymentCustomerID = &ref
		st.users[userID] = u
		return nil
	})
}
