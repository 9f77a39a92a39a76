package postgresrepo

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
)

const seatColumns = `id, screen_id, seat_row, seat_number, seat_type, price_cents, is_available`

type SeatRepo struct {
	pool DB
	db   DB
}

func (r *SeatRepo) With(db DB) *SeatRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *SeatRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func scanSeat(row pgx.Row, s *domain.Seat) error {
	var typ string
	if err := row.Scan(&s.ID, &s.ScreenID, &s.Row, &s.Number, &typ, &s.PriceCents, &s.Available); err != nil {
		return err
	}
	s.Type = domain.SeatType(typ)
	return nil
}

func collectSeats(rows pgx.Rows) ([]domain.Seat, error) {
	defer rows.Close()

	var out []domain.Seat
	for rows.Next() {
		var s domain.Seat
		if err := scanSeat(rows, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	return out, rows.Err()
}

// LockByIDs locks the requested seat rows in id order so that concurrent
// bookings of overlapping seat sets always acquire locks in the same order.
func (r *SeatRepo) LockByIDs(ctx context.Context, seatIDs []int64) ([]domain.Seat, error) {
	const op = "postgresrepo.SeatRepo.LockByIDs"

	rows, err := r.handle().Query(ctx,
		`SELECT `+seatColumns+`
		 FROM seats
		 WHERE id = ANY($1)
		 ORDER BY id
		 FOR UPDATE`,
		seatIDs,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	seats, err := collectSeats(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return seats, nil
}

// MarkUnavailable flips the given seats to unavailable.
//
// Returns:
//   - int64: number of seats that were available and are now taken.
func (r *SeatRepo) MarkUnavailable(ctx context.Context, seatIDs []int64) (int64, error) {
	const op = "postgresrepo.SeatRepo.MarkUnavailable"

	tag, err := r.handle().Exec(ctx,
		`UPDATE seats
		 SET is_available = FALSE
		 WHERE id = ANY($1) AND is_available`,
		seatIDs,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *SeatRepo) Release(ctx context.Context, seatIDs []int64) ([]int64, error) {
	const op = "postgresrepo.SeatRepo.Release"

	rows, err := r.handle().Query(ctx,
		`UPDATE seats s
		 SET is_available = TRUE
		 WHERE s.id = ANY($1)
		   AND NOT s.is_available
		   AND NOT EXISTS (
		       SELECT 1 FROM tickets t
		       WHERE t.seat_id = s.id AND t.status IN ('PENDING', 'PAID'))
		 RETURNING s.screen_id`,
		seatIDs,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	screens, err := collectIDs(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return screens, nil
}

func (r *SeatRepo) ReleaseForTickets(ctx context.Context, tickets []domain.Ticket) ([]int64, error) {
	const op = "postgresrepo.SeatRepo.ReleaseForTickets"

	if len(tickets) == 0 {
		return nil, nil
	}

	seatIDs := make([]int64, 0, len(tickets))
	ticketIDs := make([]string, 0, len(tickets))
	for _, t := range tickets {
		seatIDs = append(seatIDs, t.SeatID)
		ticketIDs = append(ticketIDs, t.ID.String())
	}

	rows, err := r.handle().Query(ctx,
		`UPDATE seats s
		 SET is_available = TRUE
		 WHERE s.id = ANY($1)
		   AND NOT s.is_available
		   AND NOT EXISTS (
		       SELECT 1 FROM tickets t
		       WHERE t.seat_id = s.id
		         AND t.status IN ('PENDING', 'PAID')
		         AND NOT (t.id = ANY($2::uuid[])))
		 RETURNING s.screen_id`,
		seatIDs, ticketIDs,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	screens, err := collectIDs(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return screens, nil
}

func (r *SeatRepo) ListByScreen(ctx context.Context, screenID int64) ([]domain.Seat, error) {
	const op = "postgresrepo.SeatRepo.ListByScreen"

	rows, err := r.handle().Query(ctx,
		`SELECT `+seatColumns+`
		 FROM seats
		 WHERE screen_id = $1
		 ORDER BY seat_row, seat_number`,
		screenID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	seats, err := collectSeats(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return seats, nil
}

func (r *SeatRepo) BatchCreate(ctx context.Context, screenID int64, seats []domain.Seat) error {
	const op = "postgresrepo.SeatRepo.BatchCreate"

	batch := &pgx.Batch{}
	for _, s := range seats {
		batch.Queue(
			`INSERT INTO seats(screen_id, seat_row, seat_number, seat_type, price_cents, is_available)
			 VALUES ($1, $2, $3, $4, $5, TRUE)
			 ON CONFLICT (screen_id, seat_row, seat_number) DO NOTHING`,
			screenID, s.Row, s.Number, string(s.Type), s.PriceCents,
		)
	}
	if err := r.handle().SendBatch(ctx, batch).Close(); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// UpdateAttrs changes a seat's type and/or price. Issued tickets keep their
// own snapshot and are not touched.
func (r *SeatRepo) UpdateAttrs(
	ctx context.Context,
	screenID, seatID int64,
	typ *domain.SeatType,
	priceCents *int64,
) error {
	const op = "postgresrepo.SeatRepo.UpdateAttrs"

	var typArg *string
	if typ != nil {
		s := string(*typ)
		typArg = &s
	}

	tag, err := r.handle().Exec(ctx,
		`UPDATE seats
		 SET seat_type = COALESCE($3, seat_type),
		     price_cents = COALESCE($4, price_cents)
		 WHERE screen_id = $1 AND id = $2`,
		screenID, seatID, typArg, priceCents,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}

func collectIDs(rows pgx.Rows) ([]int64, error) {
	defer rows.Close()

	seen := make(map[int64]struct{})
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out, rows.Err()
}
