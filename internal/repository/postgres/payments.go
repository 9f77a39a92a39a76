package postgresrepo

import (
	"context"

	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
)

type PaymentRepo struct {
	pool DB
	db   DB
}

func (r *PaymentRepo) With(db DB) *PaymentRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *PaymentRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// RecordEvent inserts the event into the payment event log. The primary key on
// the gateway event id makes concurrent duplicate deliveries race-free: only
// one insert wins.
//
// Returns:
//   - bool: false when the event id was already recorded.
func (r *PaymentRepo) RecordEvent(ctx context.Context, ev domain.PaymentEvent) (bool, error) {
	const op = "postgresrepo.PaymentRepo.RecordEvent"

	payload := ev.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	tag, err := r.handle().Exec(ctx,
		`INSERT INTO payment_events(id, type, intent_id, payload, received_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Type, ev.IntentID, payload, ev.ReceivedAt,
	)
	if err != nil {
		return false, wrapDBErr(op, err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *PaymentRepo) SetCustomerRef(ctx context.Context, userID int64, ref string) error {
	const op = "postgresrepo.PaymentRepo.SetCustomerRef"

	tag, err := r.handle().Exec(ctx,
		`UPDATE users SET payment_customer_id = $2 WHERE id = $1`,
		userID, ref,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return wrapDBErr(op, repository.ErrNotFound)
	}

	return nil
}
