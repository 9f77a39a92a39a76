package memory

import (
	"context"
	"sort"
	"time"

	"github.com/kirinyoku/cinetix/internal/domain"
)

type scheduleRepo struct{ *repos }

func sortSchedules(s []domain.Schedule) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].StartsAt.Equal(s[j].StartsAt) {
			return s[i].StartsAt.Before(s[j].StartsAt)
		}
		return s[i].ID < s[j].ID
	})
}

func (r *scheduleRepo) Get(ctx context.Context, id int64) (*domain.Schedule, error) {
	const op = "memory.scheduleRepo.Get"

	var out *domain.Schedule
	err := r.with(func(st *state) error {
		s, ok := st.schedules[id]
		if !ok {
			return notFound(op)
		}
		out = &s
		return nil
	})
	return out, err
}

func (r *scheduleRepo) FindOverlap(
	ctx context.Context,
	screenID int64,
	start, end time.Time,
	excludeID int64,
) (*domain.Schedule, error) {
	const op = "memory.scheduleRepo.FindOverlap"

	var found []domain.Schedule
	err := r.with(func(st *state) error {
		for _, s := range st.schedules {
			if s.ScreenID == screenID && s.ID != excludeID && s.Overlaps(start, end) {
				found = append(found, s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, notFound(op)
	}
	sortSchedules(found)
	return &found[0], nil
}

func (r *scheduleRepo) Create(ctx context.Context, s domain.Schedule) (int64, error) {
	const op = "memory.scheduleRepo.Create"

	err := r.with(func(st *state) error {
		if _, ok := st.screens[s.ScreenID]; !ok {
			return notFound(op)
		}
		if _, ok := st.movies[s.MovieID]; !ok {
			return notFound(op)
		}
		s.ID = st.nextID()
		st.schedules[s.ID] = s
		return nil
	})
	return s.ID, err
}

func (r *scheduleRepo) Update(ctx context.Context, s domain.Schedule) error {
	const op = "memory.scheduleRepo.Update"

	return r.with(func(st *state) error {
		if _, ok := st.schedules[s.ID]; !ok {
			return notFound(op)
		}
		st.schedules[s.ID] = s
		return nil
	})
}

func (r *scheduleRepo) Delete(ctx context.Context, id int64) error {
	const op = "memory.scheduleRepo.Delete"

	return r.with(func(st *state) error {
		if _, ok := st.schedules[id]; !ok {
			return notFound(op)
		}
		delete(st.schedules, id)
		for tid, t := range st.tickets {
			if t.ScheduleID == id {
				delete(st.tickets, tid)
			}
		}
		return nil
	})
}

func (r *scheduleRepo) list(match func(domain.Schedule) bool) ([]domain.Schedule, error) {
	var out []domain.Schedule
	err := r.with(func(st *state) error {
		for _, s := range st.schedules {
			if match(s) {
				out = append(out, s)
			}
		}
		return nil
	})
	sortSchedules(out)
	return out, err
}

func (r *scheduleRepo) ListByScreen(ctx context.Context, screenID int64) ([]domain.Schedule, error) {
	return r.list(func(s domain.Schedule) bool { return s.ScreenID == screenID })
}

func (r *scheduleRepo) ListByMovie(ctx context.Context, movieID int64) ([]domain.Schedule, error) {
	return r.list(func(s domain.Schedule) bool { return s.MovieID == movieID })
}

func (r *scheduleRepo) ListBetween(ctx context.Context, from, to time.Time) ([]domain.Schedule, error) {
	return r.list(func(s domain.Schedule) bool {
		return !s.StartsAt.Before(from) && s.StartsAt.Before(to)
	})
}
