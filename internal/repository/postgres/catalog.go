package postgresrepo

import (
	"context"

	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
)

// CatalogRepo covers the reference data the booking flows read: users,
// administrators, theaters, screens and movies.
type CatalogRepo struct {
	pool DB
	db   DB
}

func (r *CatalogRepo) With(db DB) *CatalogRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *CatalogRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *CatalogRepo) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	const op = "postgresrepo.CatalogRepo.GetUser"

	var u domain.User
	if err := r.handle().QueryRow(ctx,
		`SELECT id, name, email, payment_customer_id FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PaymentCustomerID); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &u, nil
}

func (r *CatalogRepo) GetAdmin(ctx context.Context, id int64) (*domain.Admin, error) {
	const op = "postgresrepo.CatalogRepo.GetAdmin"

	var (
		a    domain.Admin
		role string
	)
	if err := r.handle().QueryRow(ctx,
		`SELECT id, username, role FROM admins WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.Username, &role); err != nil {
		return nil, wrapDBErr(op, err)
	}
	a.Role = domain.Role(role)

	return &a, nil
}

func (r *CatalogRepo) AdminTheaterIDs(ctx context.Context, adminID int64) ([]int64, error) {
	const op = "postgresrepo.CatalogRepo.AdminTheaterIDs"

	rows, err := r.handle().Query(ctx,
		`SELECT theater_id FROM theater_admins WHERE admin_id = $1 ORDER BY theater_id`,
		adminID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	ids, err := collectIDs(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return ids, nil
}

func (r *CatalogRepo) GetTheater(ctx context.Context, id int64) (*domain.Theater, error) {
	const op = "postgresrepo.CatalogRepo.GetTheater"

	var t domain.Theater
	if err := r.handle().QueryRow(ctx,
		`SELECT id, name, city, capacity FROM theaters WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Name, &t.City, &t.Capacity); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &t, nil
}

func (r *CatalogRepo) CreateTheater(ctx context.Context, t domain.Theater) (int64, error) {
	const op = "postgresrepo.CatalogRepo.CreateTheater"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO theaters(name, city, capacity)
		 VALUES ($1, $2, 0)
		 RETURNING id`,
		t.Name, t.City,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *CatalogRepo) AssignTheaterAdmin(ctx context.Context, theaterID, adminID int64) error {
	const op = "postgresrepo.CatalogRepo.AssignTheaterAdmin"

	if _, err := r.handle().Exec(ctx,
		`INSERT INTO theater_admins(theater_id, admin_id)
		 VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		theaterID, adminID,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *CatalogRepo) RemoveTheaterAdmin(ctx context.Context, theaterID, adminID int64) error {
	const op = "postgresrepo.CatalogRepo.RemoveTheaterAdmin"

	return r.deleteOne(ctx, op,
		`DELETE FROM theater_admins WHERE theater_id = $1 AND admin_id = $2`,
		theaterID, adminID)
}

func (r *CatalogRepo) GetScreen(ctx context.Context, id int64) (*domain.Screen, error) {
	const op = "postgresrepo.CatalogRepo.GetScreen"

	var s domain.Screen
	if err := r.handle().QueryRow(ctx,
		`SELECT id, theater_id, name, capacity FROM screens WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.TheaterID, &s.Name, &s.Capacity); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &s, nil
}

func (r *CatalogRepo) LockScreen(ctx context.Context, id int64) (*domain.Screen, error) {
	const op = "postgresrepo.CatalogRepo.LockScreen"

	var s domain.Screen
	if err := r.handle().QueryRow(ctx,
		`SELECT id, theater_id, name, capacity FROM screens WHERE id = $1 FOR UPDATE`,
		id,
	).Scan(&s.ID, &s.TheaterID, &s.Name, &s.Capacity); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &s, nil
}

func (r *CatalogRepo) CreateScreen(ctx context.Context, s domain.Screen) (int64, error) {
	const op = "postgresrepo.CatalogRepo.CreateScreen"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO screens(theater_id, name, capacity)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		s.TheaterID, s.Name, s.Capacity,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

func (r *CatalogRepo) AddTheaterCapacity(ctx context.Context, theaterID int64, delta int) error {
	const op = "postgresrepo.CatalogRepo.AddTheaterCapacity"

	if _, err := r.handle().Exec(ctx,
		`UPDATE theaters SET capacity = capacity + $2 WHERE id = $1`,
		theaterID, delta,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *CatalogRepo) GetMovie(ctx context.Context, id int64) (*domain.Movie, error) {
	const op = "postgresrepo.CatalogRepo.GetMovie"

	var m domain.Movie
	if err := r.handle().QueryRow(ctx,
		`SELECT id, title, duration_min, genre FROM movies WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.Title, &m.DurationMin, &m.Genre); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &m, nil
}

func (r *CatalogRepo) CreateMovie(ctx context.Context, m domain.Movie) (int64, error) {
	const op = "postgresrepo.CatalogRepo.CreateMovie"

	var id int64
	if err := r.handle().QueryRow(ctx,
		`INSERT INTO movies(title, duration_min, genre)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		m.Title, m.DurationMin, m.Genre,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// DeleteScreen removes the screen together with its seats, schedules and
// their tickets.
func (r *CatalogRepo) DeleteScreen(ctx context.Context, id int64) error {
	return r.deleteOne(ctx, "postgresrepo.CatalogRepo.DeleteScreen",
		`DELETE FROM screens WHERE id = $1`, id)
}

// DeleteMovie removes the movie together with its schedules and their tickets.
func (r *CatalogRepo) DeleteMovie(ctx context.Context, id int64) error {
	return r.deleteOne(ctx, "postgresrepo.CatalogRepo.DeleteMovie",
		`DELETE FROM movies WHERE id = $1`, id)
}

func (r *CatalogRepo) deleteOne(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.handle().Exec(ctx, sql, args...)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}
