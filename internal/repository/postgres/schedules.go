package postgresrepo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
)

const scheduleColumns = `id, screen_id, movie_id, starts_at, ends_at`

type ScheduleRepo struct {
	pool DB
	db   DB
}

func (r *ScheduleRepo) With(db DB) *ScheduleRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ScheduleRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func scanSchedule(row pgx.Row, s *domain.Schedule) error {
	return row.Scan(&s.ID, &s.ScreenID, &s.MovieID, &s.StartsAt, &s.EndsAt)
}

func collectSchedules(rows pgx.Rows) ([]domain.Schedule, error) {
	defer rows.Close()

	var out []domain.Schedule
	for rows.Next() {
		var s domain.Schedule
		if err := scanSchedule(rows, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	return out, rows.Err()
}

// Get retrieves a schedule by its ID.
//
// Returns:
//   - error: repository.ErrNotFound if the schedule does not exist.
func (r *ScheduleRepo) Get(ctx context.Context, id int64) (*domain.Schedule, error) {
	const op = "postgresrepo.ScheduleRepo.Get"

	var s domain.Schedule
	err := scanSchedule(r.handle().QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`,
		id,
	), &s)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &s, nil
}

// FindOverlap looks for a schedule on the screen whose interval intersects
// [start, end). Intervals that only touch at an endpoint do not overlap.
func (r *ScheduleRepo) FindOverlap(
	ctx context.Context,
	screenID int64,
	start, end time.Time,
	excludeID int64,
) (*domain.Schedule, error) {
	const op = "postgresrepo.ScheduleRepo.FindOverlap"

	var s domain.Schedule
	err := scanSchedule(r.handle().QueryRow(ctx,
		`SELECT `+scheduleColumns+`
		 FROM schedules
		 WHERE screen_id = $1
		   AND id <> $4
		   AND starts_at < $3
		   AND ends_at > $2
		 ORDER BY starts_at
		 LIMIT 1`,
		screenID, start, end, excludeID,
	), &s)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &s, nil
}

func (r *ScheduleRepo) Create(ctx context.Context, s domain.Schedule) (int64, error) {
	const op = "postgresrepo.ScheduleRepo.Create"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO schedules(screen_id, movie_id, starts_at, ends_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		s.ScreenID, s.MovieID, s.StartsAt, s.EndsAt,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *ScheduleRepo) Update(ctx context.Context, s domain.Schedule) error {
	const op = "postgresrepo.ScheduleRepo.Update"

	tag, err := r.handle().Exec(ctx,
		`UPDATE schedules
		 SET screen_id = $2, movie_id = $3, starts_at = $4, ends_at = $5
		 WHERE id = $1`,
		s.ID, s.ScreenID, s.MovieID, s.StartsAt, s.EndsAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}

// Delete removes a schedule. Its tickets are removed by the foreign key cascade.
func (r *ScheduleRepo) Delete(ctx context.Context, id int64) error {
	const op = "postgresrepo.ScheduleRepo.Delete"

	tag, err := r.handle().Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}

func (r *ScheduleRepo) ListByScreen(ctx context.Context, screenID int64) ([]domain.Schedule, error) {
	const op = "postgresrepo.ScheduleRepo.ListByScreen"

	rows, err := r.handle().Query(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE screen_id = $1 ORDER BY starts_at`,
		screenID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectSchedules(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *ScheduleRepo) ListByMovie(ctx context.Context, movieID int64) ([]domain.Schedule, error) {
	const op = "postgresrepo.ScheduleRepo.ListByMovie"

	rows, err := r.handle().Query(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE movie_id = $1 ORDER BY starts_at`,
		movieID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectSchedules(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *ScheduleRepo) ListBetween(ctx context.Context, from, to time.Time) ([]domain.Schedule, error) {
	const op = "postgresrepo.ScheduleRepo.ListBetween"

	rows, err := r.handle().Query(ctx,
		`SELECT `+scheduleColumns+`
		 FROM schedules
		 WHERE starts_at >= $1 AND starts_at < $2
		 ORDER BY starts_at`,
		from, to,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectSchedules(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
