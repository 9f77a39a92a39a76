// Package query serves the public read models: schedules and seat maps,
// cached in Redis.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
	redisrepo "github.com/kirinyoku/cinetix/internal/repository/redis"
)

type Config struct {
	ScheduleTTL time.Duration
	SeatMapTTL  time.Duration
	Now         func() time.Time
}

type Service struct {
	store repository.Repos
	cache *redisrepo.Cache
	cfg   Config
}

func New(store repository.Repos, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.ScheduleTTL <= 0 {
		cfg.ScheduleTTL = 5 * time.Minute
	}

	if cfg.SeatMapTTL <= 0 {
		cfg.SeatMapTTL = 30 * time.Second
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// GetSchedule retrieves a schedule by its ID, utilizing a caching layer.
//
// Parameters:
//   - ctx: request-scoped context.
//   - id: ID of the schedule.
//
// Returns:
//   - *domain.Schedule: the schedule.
//   - error: query.ErrScheduleNotFound if it does not exist.
func (s *Service) GetSchedule(ctx context.Context, id int64) (*domain.Schedule, error) {
	const op = "service.query.GetSchedule"

	sch, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeySchedule(id),
		s.cfg.ScheduleTTL,
		func(ctx context.Context) (domain.Schedule, error) {
			sch, err := s.store.Schedules().Get(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Schedule{}, ErrScheduleNotFound
				}
				return domain.Schedule{}, err
			}
			return *sch, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &sch, nil
}

// SeatMap returns every seat of the schedule's screen with its current
// availability. The seat list is cached per screen and dropped whenever a
// seat flips.
//
// Returns:
//   - *domain.SeatMap: seats ordered by row and number.
//   - error: query.ErrScheduleNotFound, or query.ErrScheduleEnded once the
//     schedule is over.
func (s *Service) SeatMap(ctx context.Context, scheduleID int64) (*domain.SeatMap, error) {
	const op = "service.query.SeatMap"

	sch, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	if !sch.EndsAt.After(s.cfg.Now()) {
		return nil, fmt.Errorf("%s: %w", op, ErrScheduleEnded)
	}

	seats, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisrepo.KeyScreenSeatMap(sch.ScreenID),
		s.cfg.SeatMapTTL,
		func(ctx context.Context) ([]domain.Seat, error) {
			return s.store.Seats().ListByScreen(ctx, sch.ScreenID)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m := &domain.SeatMap{
		ScheduleID: sch.ID,
		ScreenID:   sch.ScreenID,
		Seats:      seats,
		Total:      len(seats),
	}
	for _, seat := range seats {
		if seat.Available {
			m.Available++
		}
	}

	return m, nil
}

func (s *Service) ListByScreen(ctx context.Context, screenID int64) ([]domain.Schedule, error) {
	const op = "service.query.ListByScreen"

	if _, err := s.store.Catalog().GetScreen(ctx, screenID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrScreenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out, err := s.store.Schedules().ListByScreen(ctx, screenID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func (s *Service) ListByMovie(ctx context.Context, movieID int64) ([]domain.Schedule, error) {
	const op = "service.query.ListByMovie"

	if _, err := s.store.Catalog().GetMovie(ctx, movieID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrMovieNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out, err := s.store.Schedules().ListByMovie(ctx, movieID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// ListByDate returns schedules starting on the given calendar day in its
// location.
func (s *Service) ListByDate(ctx context.Context, day time.Time) ([]domain.Schedule, error) {
	const op = "service.query.ListByDate"

	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.AddDate(0, 0, 1)

	out, err := s.store.Schedules().ListBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}
