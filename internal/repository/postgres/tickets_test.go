package postgresrepo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/auth"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/service/booking"
	"github.com/kirinyoku/cinetix/internal/service/inventory"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lockByTokenSQL = `WHERE t\.qr_token = \$1\s+FOR UPDATE OF t`
	setStatusSQL   = `UPDATE tickets\s+SET status = \$2, updated_at = now\(\)\s+WHERE id = ANY\(\$1::uuid\[\]\)`
)

func scannedDetails(status domain.TicketStatus) domain.TicketDetails {
	token := "qr-token"
	d := domain.TicketDetails{
		Ticket:      sampleTicket(status),
		SeatRow:     "A",
		SeatNumber:  1,
		ScreenID:    7,
		ScreenName:  "Hall 1",
		TheaterID:   5,
		TheaterName: "Odeon",
		MovieID:     9,
		MovieTitle:  "Heat",
		StartsAt:    time.Date(2026, 4, 10, 18, 0, 0, 0, time.UTC),
		EndsAt:      time.Date(2026, 4, 10, 21, 0, 0, 0, time.UTC),
	}
	d.QRToken = &token
	return d
}

func TestScanRedeemsTokenOnce(t *testing.T) {
	mock, store := newMockStore(t)
	svc := booking.New(store, inventory.New(nil, nil, nil), nil, nil, booking.Config{}, nil)
	door := auth.Capability{SubjectID: 1, Role: domain.RoleTheaterAdmin, TheaterScope: []int64{5}}

	paid := scannedDetails(domain.TicketPaid)
	used := paid
	used.Status = domain.TicketUsed

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery(lockByTokenSQL).WithArgs("qr-token").WillReturnRows(detailsRows(paid))
	mock.ExpectExec(setStatusSQL).WithArgs([]string{paid.ID.String()}, "USED").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	// the second scan waits on the row lock and then reads the committed USED row
	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery(lockByTokenSQL).WithArgs("qr-token").WillReturnRows(detailsRows(used))
	mock.ExpectRollback()

	got, err := svc.Scan(context.Background(), door, "qr-token")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketUsed, got.Status)
	assert.Equal(t, paid.ID, got.ID)
	assert.Equal(t, "Odeon", got.TheaterName)

	_, err = svc.Scan(context.Background(), door, "qr-token")
	assert.ErrorIs(t, err, booking.ErrTicketAlreadyUsed)
}

func TestScanUnknownToken(t *testing.T) {
	mock, store := newMockStore(t)
	svc := booking.New(store, inventory.New(nil, nil, nil), nil, nil, booking.Config{}, nil)

	mock.ExpectBeginTx(readCommitted)
	mock.ExpectQuery(lockByTokenSQL).WithArgs("nope").
		WillReturnRows(pgxmock.NewRows(ticketCols))
	mock.ExpectRollback()

	_, err := svc.Scan(context.Background(), auth.Capability{SubjectID: 1, Role: domain.RoleSuperAdmin}, "nope")
	assert.ErrorIs(t, err, booking.ErrTicketNotFound)
}

func TestSetStatusReportsMissingTickets(t *testing.T) {
	mock, store := newMockStore(t)

	a, b := sampleTicket(domain.TicketPaid), sampleTicket(domain.TicketPaid)
	mock.ExpectExec(setStatusSQL).WithArgs([]string{a.ID.String(), b.ID.String()}, "CANCELED").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.Tickets().SetStatus(context.Background(), []uuid.UUID{a.ID, b.ID}, domain.TicketCanceled)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSetQRTokenOnlyOnce(t *testing.T) {
	mock, store := newMockStore(t)

	tk := sampleTicket(domain.TicketPaid)
	mock.ExpectExec(`UPDATE tickets\s+SET qr_token = \$2, updated_at = now\(\)\s+WHERE id = \$1 AND qr_token IS NULL`).
		WithArgs(tk.ID, "tok").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.Tickets().SetQRToken(context.Background(), tk.ID, "tok")
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestCancelStalePendingSkipsLockedRows(t *testing.T) {
	mock, store := newMockStore(t)

	cutoff := time.Date(2026, 4, 10, 11, 50, 0, 0, time.UTC)
	stale := sampleTicket(domain.TicketCanceled)

	mock.ExpectQuery(`WHERE status = 'PENDING' AND booked_at < \$1\s+ORDER BY booked_at\s+LIMIT \$2\s+FOR UPDATE SKIP LOCKED`).
		WithArgs(cutoff, 50).
		WillReturnRows(ticketRows(stale))

	got, err := store.Tickets().CancelStalePending(context.Background(), cutoff, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stale.ID, got[0].ID)
	assert.Equal(t, domain.TicketCanceled, got[0].Status)
	assert.Nil(t, got[0].PaymentIntentID)
}

func TestTransitionByIntentOnlyMovesMatchingStatus(t *testing.T) {
	mock, store := newMockStore(t)

	paid := sampleTicket(domain.TicketPaid)
	intent := "pi_1"
	paid.PaymentIntentID = &intent

	mock.ExpectQuery(`UPDATE tickets t\s+SET status = \$3, updated_at = now\(\)\s+WHERE t\.payment_intent_id = \$1 AND t\.status = \$2`).
		WithArgs("pi_1", "PENDING", "PAID").
		WillReturnRows(ticketRows(paid))

	got, err := store.Tickets().TransitionByIntent(context.Background(), "pi_1", domain.TicketPending, domain.TicketPaid)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].PaymentIntentID)
	assert.Equal(t, "pi_1", *got[0].PaymentIntentID)
}
