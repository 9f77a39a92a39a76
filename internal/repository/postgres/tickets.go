package postgresrepo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
)

const ticketColumns = `t.id, t.ticket_number, t.user_id, t.schedule_id, t.seat_id, t.seat_type,
	t.price_cents, t.status, t.booked_at, t.qr_token, t.payment_intent_id`

const ticketDetailsFrom = `
	FROM tickets t
	JOIN seats s ON s.id = t.seat_id
	JOIN schedules sc ON sc.id = t.schedule_id
	JOIN screens scr ON scr.id = sc.screen_id
	JOIN theaters th ON th.id = scr.theater_id
	JOIN movies m ON m.id = sc.movie_id`

const ticketDetailsColumns = ticketColumns + `,
	s.seat_row, s.seat_number, scr.id, scr.name, th.id, th.name, m.id, m.title, sc.starts_at, sc.ends_at`

type TicketRepo struct {
	pool DB
	db   DB
}

func (r *TicketRepo) With(db DB) *TicketRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *TicketRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func ticketDest(t *domain.Ticket, typ, status *string) []any {
	return []any{
		&t.ID, &t.Number, &t.UserID, &t.ScheduleID, &t.SeatID, typ,
		&t.PriceCents, status, &t.BookedAt, &t.QRToken, &t.PaymentIntentID,
	}
}

func scanTicket(row pgx.Row, t *domain.Ticket) error {
	var typ, status string
	if err := row.Scan(ticketDest(t, &typ, &status)...); err != nil {
		return err
	}
	t.SeatType = domain.SeatType(typ)
	t.Status = domain.TicketStatus(status)
	return nil
}

func scanTicketDetails(row pgx.Row, d *domain.TicketDetails) error {
	var typ, status string
	dest := append(ticketDest(&d.Ticket, &typ, &status),
		&d.SeatRow, &d.SeatNumber, &d.ScreenID, &d.ScreenName, &d.TheaterID, &d.TheaterName,
		&d.MovieID, &d.MovieTitle, &d.StartsAt, &d.EndsAt,
	)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	d.SeatType = domain.SeatType(typ)
	d.Status = domain.TicketStatus(status)
	return nil
}

func collectTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := scanTicket(rows, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}

	return out, rows.Err()
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func (r *TicketRepo) CreateBatch(ctx context.Context, tickets []domain.Ticket) error {
	const op = "postgresrepo.TicketRepo.CreateBatch"

	batch := &pgx.Batch{}
	for _, t := range tickets {
		batch.Queue(
			`INSERT INTO tickets(id, ticket_number, user_id, schedule_id, seat_id,
			                     seat_type, price_cents, status, booked_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			t.ID, t.Number, t.UserID, t.ScheduleID, t.SeatID,
			string(t.SeatType), t.PriceCents, string(t.Status), t.BookedAt,
		)
	}
	if err := r.handle().SendBatch(ctx, batch).Close(); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

func (r *TicketRepo) LockByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Ticket, error) {
	const op = "postgresrepo.TicketRepo.LockByIDs"

	rows, err := r.handle().Query(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets t
		 WHERE t.id = ANY($1::uuid[])
		 ORDER BY t.id
		 FOR UPDATE`,
		uuidStrings(ids),
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectTickets(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *TicketRepo) LockByIntent(ctx context.Context, intentID string) ([]domain.Ticket, error) {
	const op = "postgresrepo.TicketRepo.LockByIntent"

	rows, err := r.handle().Query(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets t
		 WHERE t.payment_intent_id = $1
		 ORDER BY t.id
		 FOR UPDATE`,
		intentID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectTickets(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *TicketRepo) LockLiveBySchedule(ctx context.Context, scheduleID int64) ([]domain.Ticket, error) {
	const op = "postgresrepo.TicketRepo.LockLiveBySchedule"

	rows, err := r.handle().Query(ctx,
		`SELECT `+ticketColumns+`
		 FROM tickets t
		 WHERE t.schedule_id = $1 AND t.status IN ('PENDING', 'PAID')
		 ORDER BY t.id
		 FOR UPDATE`,
		scheduleID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectTickets(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *TicketRepo) LockDetails(ctx context.Context, id uuid.UUID) (*domain.TicketDetails, error) {
	const op = "postgresrepo.TicketRepo.LockDetails"

	var d domain.TicketDetails
	err := scanTicketDetails(r.handle().QueryRow(ctx,
		`SELECT `+ticketDetailsColumns+ticketDetailsFrom+`
		 WHERE t.id = $1
		 FOR UPDATE OF t`,
		id,
	), &d)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &d, nil
}

func (r *TicketRepo) LockDetailsByQRToken(ctx context.Context, token string) (*domain.TicketDetails, error) {
	const op = "postgresrepo.TicketRepo.LockDetailsByQRToken"

	var d domain.TicketDetails
	err := scanTicketDetails(r.handle().QueryRow(ctx,
		`SELECT `+ticketDetailsColumns+ticketDetailsFrom+`
		 WHERE t.qr_token = $1
		 FOR UPDATE OF t`,
		token,
	), &d)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &d, nil
}

func (r *TicketRepo) SetStatus(ctx context.Context, ids []uuid.UUID, status domain.TicketStatus) error {
	const op = "postgresrepo.TicketRepo.SetStatus"

	tag, err := r.handle().Exec(ctx,
		`UPDATE tickets
		 SET status = $2, updated_at = now()
		 WHERE id = ANY($1::uuid[])`,
		uuidStrings(ids), string(status),
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if int(tag.RowsAffected()) != len(ids) {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}

func (r *TicketRepo) TransitionByIntent(
	ctx context.Context,
	intentID string,
	from, to domain.TicketStatus,
) ([]domain.Ticket, error) {
	const op = "postgresrepo.TicketRepo.TransitionByIntent"

	rows, err := r.handle().Query(ctx,
		`UPDATE tickets t
		 SET status = $3, updated_at = now()
		 WHERE t.payment_intent_id = $1 AND t.status = $2
		 RETURNING `+ticketColumns,
		intentID, string(from), string(to),
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectTickets(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// SetQRToken assigns the entry token only if the ticket has none yet.
func (r *TicketRepo) SetQRToken(ctx context.Context, id uuid.UUID, token string) error {
	const op = "postgresrepo.TicketRepo.SetQRToken"

	tag, err := r.handle().Exec(ctx,
		`UPDATE tickets
		 SET qr_token = $2, updated_at = now()
		 WHERE id = $1 AND qr_token IS NULL`,
		id, token,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrConflict)
	}

	return nil
}

func (r *TicketRepo) SetPaymentIntent(ctx context.Context, ids []uuid.UUID, intentID string) error {
	const op = "postgresrepo.TicketRepo.SetPaymentIntent"

	if _, err := r.handle().Exec(ctx,
		`UPDATE tickets
		 SET payment_intent_id = $2, updated_at = now()
		 WHERE id = ANY($1::uuid[])`,
		uuidStrings(ids), intentID,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// CancelStalePending cancels PENDING tickets booked before cutoff. Rows locked
// by in-flight transactions are skipped and picked up by a later run.
func (r *TicketRepo) CancelStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Ticket, error) {
	const op = "postgresrepo.TicketRepo.CancelStalePending"

	rows, err := r.handle().Query(ctx,
		`WITH stale AS (
		     SELECT id FROM tickets
		     WHERE status = 'PENDING' AND booked_at < $1
		     ORDER BY booked_at
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED)
		 UPDATE tickets t
		 SET status = 'CANCELED', updated_at = now()
		 FROM stale
		 WHERE t.id = stale.id
		 RETURNING `+ticketColumns,
		cutoff, limit,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	out, err := collectTickets(rows)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

func (r *TicketRepo) DeleteCanceledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "postgresrepo.TicketRepo.DeleteCanceledBefore"

	tag, err := r.handle().Exec(ctx,
		`DELETE FROM tickets WHERE status = 'CANCELED' AND booked_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

func (r *TicketRepo) HasLiveForSchedule(ctx context.Context, scheduleID int64) (bool, error) {
	const op = "postgresrepo.TicketRepo.HasLiveForSchedule"

	var exists bool
	if err := r.handle().QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM tickets
		     WHERE schedule_id = $1 AND status IN ('PENDING', 'PAID', 'USED'))`,
		scheduleID,
	).Scan(&exists); err != nil {
		return false, wrapDBErr(op, err)
	}

	return exists, nil
}

func (r *TicketRepo) GetDetails(ctx context.Context, id uuid.UUID) (*domain.TicketDetails, error) {
	const op = "postgresrepo.TicketRepo.GetDetails"

	var d domain.TicketDetails
	err := scanTicketDetails(r.handle().QueryRow(ctx,
		`SELECT `+ticketDetailsColumns+ticketDetailsFrom+` WHERE t.id = $1`,
		id,
	), &d)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &d, nil
}

// List returns one page of tickets matching f, newest first, and the total
// number of matches.
func (r *TicketRepo) List(ctx context.Context, f repository.TicketFilter) ([]domain.TicketDetails, int64, error) {
	const op = "postgresrepo.TicketRepo.List"

	var (
		conds []string
		args  []any
	)
	if f.UserID > 0 {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("t.user_id = $%d", len(args)))
	}
	if f.TheaterIDs != nil {
		args = append(args, f.TheaterIDs)
		conds = append(conds, fmt.Sprintf("th.id = ANY($%d)", len(args)))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		conds = append(conds, fmt.Sprintf("t.status = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	db := r.handle()

	var total int64
	if err := db.QueryRow(ctx, `SELECT count(*)`+ticketDetailsFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, wrapDBErr(op, err)
	}

	pageArgs := append(args, f.Limit, f.Offset)
	rows, err := db.Query(ctx,
		`SELECT `+ticketDetailsColumns+ticketDetailsFrom+where+
			fmt.Sprintf(` ORDER BY t.booked_at DESC, t.id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2),
		pageArgs...,
	)
	if err != nil {
		return nil, 0, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.TicketDetails
	for rows.Next() {
		var d domain.TicketDetails
		if err := scanTicketDetails(rows, &d); err != nil {
			return nil, 0, wrapDBErr(op, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapDBErr(op, err)
	}

	return out, total, nil
}
