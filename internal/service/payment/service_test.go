package payment

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/repository/memory"
	"github.com/kirinyoku/cinetix/internal/service/booking"
	"github.com/kirinyoku/cinetix/internal/service/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway accepts any non-empty signature whose value is "valid" and
// treats the payload as the event id.
type fakeGateway struct {
	mu        sync.Mutex
	customers map[string]bool
	intents   map[string]*Intent
	created   int
	canceled  []string
	failNext  error
	events    map[string]*WebhookEvent
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		customers: make(map[string]bool),
		intents:   make(map[string]*Intent),
		events:    make(map[string]*WebhookEvent),
	}
}

func (g *fakeGateway) CreateCustomer(_ context.Context, u domain.User) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := "cus_" + uuid.NewString()[:8]
	g.customers[ref] = true
	return ref, nil
}

func (g *fakeGateway) CustomerExists(_ context.Context, ref string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.customers[ref], nil
}

func (g *fakeGateway) CreateIntent(_ context.Context, p IntentParams) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failNext; err != nil {
		g.failNext = nil
		return nil, err
	}
	g.created++
	id := "pi_" + uuid.NewString()[:8]
	in := &Intent{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method", AmountCents: p.AmountCents, Currency: p.Currency}
	g.intents[id] = in
	return in, nil
}

func (g *fakeGateway) CancelIntent(_ context.Context, id string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[id]
	if !ok {
		return nil, &GatewayError{Reason: "No such payment_intent", Code: "resource_missing"}
	}
	in.Status = "canceled"
	g.canceled = append(g.canceled, id)
	return in, nil
}

func (g *fakeGateway) RetrieveIntent(_ context.Context, id string) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[id]
	if !ok {
		return nil, &GatewayError{Reason: "No such payment_intent", Code: "resource_missing"}
	}
	return in, nil
}

func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if signature != "valid" {
		return nil, ErrInvalidSignature
	}
	ev, ok := g.events[string(payload)]
	if !ok {
		return nil, ErrInvalidSignature
	}
	return ev, nil
}

func (g *fakeGateway) deliver(id, typ, intentID string) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events[id] = &WebhookEvent{ID: id, Type: typ, IntentID: intentID, Payload: []byte(id)}
	return []byte(id)
}

type fixture struct {
	store   *memory.Store
	gateway *fakeGateway
	svc     *Service
	booking *booking.Service
	user    domain.User
	theater domain.Theater
	seats   []domain.Seat
	sched   domain.Schedule
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Now()
	f := &fixture{store: memory.New(), gateway: newFakeGateway()}
	f.user = f.store.SeedUser("Jo", "jo@example.com")
	f.theater = f.store.SeedTheater("Odeon", "Kyiv")
	screen, seats := f.store.SeedScreen(f.theater.ID, "Hall 1", 1, 4, 1250)
	f.seats = seats
	movie := f.store.SeedMovie("Heat", 170)
	f.sched = f.store.SeedSchedule(screen.ID, movie.ID, now.Add(time.Hour), now.Add(4*time.Hour))

	inv := inventory.New(nil, nil, nil)
	f.svc = New(f.store, f.gateway, inv, nil, Config{}, nil)
	f.booking = booking.New(f.store, inv, nil, nil, booking.Config{}, nil)

	return f
}

func (f *fixture) book(t *testing.T, seats ...domain.Seat) []uuid.UUID {
	t.Helper()

	var seatIDs []int64
	for _, s := range seats {
		seatIDs = append(seatIDs, s.ID)
	}
	tickets, err := f.booking.Book(context.Background(), f.user.ID, f.theater.ID, f.sched.ID, seatIDs)
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(tickets))
	for _, tk := range tickets {
		ids = append(ids, tk.ID)
	}
	return ids
}

func (f *fixture) status(t *testing.T, id uuid.UUID) domain.TicketStatus {
	t.Helper()

	tk, ok := f.store.Ticket(id)
	require.True(t, ok)
	return tk.Status
}

func (f *fixture) available(t *testing.T, seat domain.Seat) bool {
	t.Helper()

	s, ok := f.store.Seat(seat.ID)
	require.True(t, ok)
	return s.Available
}

func TestCreateIntentStampsTickets(t *testing.T) {
	f := newFixture(t)
	ids := f.book(t, f.seats[0], f.seats[1])

	res, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, ids)
	require.NoError(t, err)
	assert.EqualValues(t, 2500, res.AmountCents)
	assert.Equal(t, "usd", res.Currency)
	assert.NotEmpty(t, res.ClientSecret)

	for _, id := range ids {
		tk, _ := f.store.Ticket(id)
		require.NotNil(t, tk.PaymentIntentID)
		assert.Equal(t, res.IntentID, *tk.PaymentIntentID)
	}

	u, err := f.store.Catalog().GetUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, u.PaymentCustomerID)
	firstRef := *u.PaymentCustomerID

	more := f.book(t, f.seats[2])
	_, err = f.svc.CreateIntentForTickets(context.Background(), f.user.ID, more)
	require.NoError(t, err)

	u, _ = f.store.Catalog().GetUser(context.Background(), f.user.ID)
	assert.Equal(t, firstRef, *u.PaymentCustomerID)
}

func TestCreateIntentRecreatesUnknownCustomer(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Payments().SetCustomerRef(context.Background(), f.user.ID, "cus_gone"))

	_, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, f.book(t, f.seats[0]))
	require.NoError(t, err)

	u, _ := f.store.Catalog().GetUser(context.Background(), f.user.ID)
	assert.NotEqual(t, "cus_gone", *u.PaymentCustomerID)
}

func TestCreateIntentRejectsZeroTotal(t *testing.T) {
	f := newFixture(t)
	free := int64(0)
	require.NoError(t, f.store.Seats().UpdateAttrs(context.Background(), f.seats[0].ScreenID, f.seats[0].ID, nil, &free))

	_, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, f.book(t, f.seats[0]))
	assert.ErrorIs(t, err, ErrZeroAmount)
	assert.ErrorIs(t, err, domain.ErrInvalid)
	assert.Zero(t, f.gateway.created)
}

func TestCreateIntentRejectsForeignTickets(t *testing.T) {
	f := newFixture(t)
	ids := f.book(t, f.seats[0])
	stranger := f.store.SeedUser("Sam", "sam@example.com")

	_, err := f.svc.CreateIntentForTickets(context.Background(), stranger.ID, ids)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.CreateIntentForTickets(context.Background(), f.user.ID, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.CreateIntentForTickets(context.Background(), f.user.ID, nil)
	assert.ErrorIs(t, err, ErrNoTickets)

	assert.Zero(t, f.gateway.created)
}

func TestCreateIntentSurfacesGatewayDecline(t *testing.T) {
	f := newFixture(t)
	f.gateway.failNext = &GatewayError{Reason: "Your card was declined.", Code: "card_declined"}

	_, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, f.book(t, f.seats[0]))
	var ge *GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "card_declined", ge.Code)
	assert.ErrorIs(t, err, domain.ErrUpstream)

	f.gateway.failNext = errors.New("dial tcp: i/o timeout")
	_, err = f.svc.CreateIntentForTickets(context.Background(), f.user.ID, f.book(t, f.seats[1]))
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestCreateIntentAgainReusesOpenIntent(t *testing.T) {
	f := newFixture(t)
	ids := f.book(t, f.seats[0], f.seats[1])

	first, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, ids)
	require.NoError(t, err)
	second, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, ids)
	require.NoError(t, err)

	assert.Equal(t, first.IntentID, second.IntentID)
	assert.Equal(t, first.ClientSecret, second.ClientSecret)
	assert.Equal(t, 1, f.gateway.created)
	assert.Empty(t, f.gateway.canceled)

	_, err = f.svc.HandleWebhook(context.Background(), f.gateway.deliver("evt_r", EventIntentSucceeded, first.IntentID), "valid")
	require.NoError(t, err)
	for _, id := range ids {
		assert.Equal(t, domain.TicketPaid, f.status(t, id))
	}
}

func TestCreateIntentForWiderSetCancelsEarlierIntent(t *testing.T) {
	f := newFixture(t)
	ids := f.book(t, f.seats[0])
	first, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, ids)
	require.NoError(t, err)

	all := append(ids, f.book(t, f.seats[1])...)
	second, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, all)
	require.NoError(t, err)
	assert.NotEqual(t, first.IntentID, second.IntentID)
	assert.EqualValues(t, 2500, second.AmountCents)
	assert.Equal(t, []string{first.IntentID}, f.gateway.canceled)

	// The earlier intent's cancel notification must not touch re-stamped tickets.
	_, err = f.svc.HandleWebhook(context.Background(), f.gateway.deliver("evt_old", EventIntentCanceled, first.IntentID), "valid")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPending, f.status(t, ids[0]))

	_, err = f.svc.HandleWebhook(context.Background(), f.gateway.deliver("evt_new", EventIntentSucceeded, second.IntentID), "valid")
	require.NoError(t, err)
	for _, id := range all {
		assert.Equal(t, domain.TicketPaid, f.status(t, id))
	}
}

func TestCreateIntentRefusesWhileEarlierPaymentProcessing(t *testing.T) {
	f := newFixture(t)
	ids := f.book(t, f.seats[0])
	first, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, ids)
	require.NoError(t, err)

	f.gateway.mu.Lock()
	f.gateway.intents[first.IntentID].Status = IntentProcessing
	f.gateway.mu.Unlock()

	_, err = f.svc.CreateIntentForTickets(context.Background(), f.user.ID, ids)
	assert.ErrorIs(t, err, ErrPaymentInProgress)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 1, f.gateway.created)
	assert.Empty(t, f.gateway.canceled)

	tk, _ := f.store.Ticket(ids[0])
	require.NotNil(t, tk.PaymentIntentID)
	assert.Equal(t, first.IntentID, *tk.PaymentIntentID)
}

func TestCreateIntentReplacesCanceledIntent(t *testing.T) {
	f := newFixture(t)
	ids := f.book(t, f.seats[0])
	first, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, ids)
	require.NoError(t, err)

	f.gateway.mu.Lock()
	f.gateway.intents[first.IntentID].Status = IntentCanceled
	f.gateway.mu.Unlock()

	second, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, ids)
	require.NoError(t, err)
	assert.NotEqual(t, first.IntentID, second.IntentID)
	assert.Empty(t, f.gateway.canceled)
}

func TestWebhookSucceededIsAppliedOnce(t *testing.T) {
	f := newFixture(t)
	ids := f.book(t, f.seats[0], f.seats[1])
	res, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, ids)
	require.NoError(t, err)

	body := f.gateway.deliver("evt_1", EventIntentSucceeded, res.IntentID)

	out, err := f.svc.HandleWebhook(context.Background(), body, "valid")
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
	assert.Equal(t, 2, out.Changed)
	for _, id := range ids {
		assert.Equal(t, domain.TicketPaid, f.status(t, id))
	}

	out, err = f.svc.HandleWebhook(context.Background(), body, "valid")
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.Zero(t, out.Changed)
	assert.Equal(t, 1, f.store.PaymentEvents())
}

// abortingStore runs every transaction to completion and then rolls it back,
// as if the commit had failed.
type abortingStore struct {
	*memory.Store
}

var errCommit = errors.New("commit failed")

func (s abortingStore) InTx(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		if err := fn(ctx, r); err != nil {
			return err
		}
		return errCommit
	})
}

func TestWebhookLogsOnlyCommittedOutcome(t *testing.T) {
	f := newFixture(t)
	ids := f.book(t, f.seats[0])
	res, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, ids)
	require.NoError(t, err)

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	inv := inventory.New(nil, nil, nil)
	aborting := New(abortingStore{f.store}, f.gateway, inv, nil, Config{}, log)

	_, err = aborting.HandleWebhook(context.Background(), f.gateway.deliver("evt_rb", EventIntentSucceeded, res.IntentID), "valid")
	require.ErrorIs(t, err, errCommit)
	assert.Equal(t, domain.TicketPending, f.status(t, ids[0]))
	assert.NotContains(t, buf.String(), "tickets paid")

	committed := New(f.store, f.gateway, inv, nil, Config{}, log)
	_, err = committed.HandleWebhook(context.Background(), f.gateway.deliver("evt_ok", EventIntentSucceeded, res.IntentID), "valid")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPaid, f.status(t, ids[0]))
	assert.Contains(t, buf.String(), "tickets paid")
}

func TestWebhookFailedReleasesSeats(t *testing.T) {
	f := newFixture(t)
	ids := f.book(t, f.seats[0])
	res, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, ids)
	require.NoError(t, err)

	_, err = f.svc.HandleWebhook(context.Background(), f.gateway.deliver("evt_f", EventIntentFailed, res.IntentID), "valid")
	require.NoError(t, err)

	assert.Equal(t, domain.TicketFailed, f.status(t, ids[0]))
	assert.True(t, f.available(t, f.seats[0]))
}

func TestWebhookCanceledReleasesSeats(t *testing.T) {
	f := newFixture(t)
	ids := f.book(t, f.seats[0])
	res, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, ids)
	require.NoError(t, err)

	_, err = f.svc.HandleWebhook(context.Background(), f.gateway.deliver("evt_c", EventIntentCanceled, res.IntentID), "valid")
	require.NoError(t, err)

	assert.Equal(t, domain.TicketCanceled, f.status(t, ids[0]))
	assert.True(t, f.available(t, f.seats[0]))
}

func TestWebhookLateSuccessDoesNotResurrect(t *testing.T) {
	f := newFixture(t)
	ids := f.book(t, f.seats[0])
	res, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, ids)
	require.NoError(t, err)

	_, err = f.booking.Cancel(context.Background(), f.user.ID, ids)
	require.NoError(t, err)

	out, err := f.svc.HandleWebhook(context.Background(), f.gateway.deliver("evt_late", EventIntentSucceeded, res.IntentID), "valid")
	require.NoError(t, err)
	assert.Zero(t, out.Changed)
	assert.Equal(t, domain.TicketCanceled, f.status(t, ids[0]))
}

func TestWebhookRejectsBadSignatures(t *testing.T) {
	f := newFixture(t)
	body := f.gateway.deliver("evt_x", EventIntentSucceeded, "pi_x")

	_, err := f.svc.HandleWebhook(context.Background(), body, "")
	assert.ErrorIs(t, err, ErrMissingSignature)

	_, err = f.svc.HandleWebhook(context.Background(), body, "forged")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Zero(t, f.store.PaymentEvents())
}

func TestWebhookIgnoresUnknownTypes(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.HandleWebhook(context.Background(), f.gateway.deliver("evt_u", "charge.refunded", ""), "valid")
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
	assert.Equal(t, 1, f.store.PaymentEvents())
}

func TestConcurrentDuplicateWebhooks(t *testing.T) {
	f := newFixture(t)
	ids := f.book(t, f.seats[0])
	res, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, ids)
	require.NoError(t, err)
	body := f.gateway.deliver("evt_dup", EventIntentSucceeded, res.IntentID)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.svc.HandleWebhook(context.Background(), body, "valid")
			if !assert.NoError(t, err) {
				return
			}
			if !out.Duplicate {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
}

func TestCancelIntentCancelsPendingTickets(t *testing.T) {
	f := newFixture(t)
	ids := f.book(t, f.seats[0])
	res, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, ids)
	require.NoError(t, err)

	stranger := f.store.SeedUser("Sam", "sam@example.com")
	_, err = f.svc.CancelIntent(context.Background(), stranger.ID, res.IntentID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	intent, err := f.svc.CancelIntent(context.Background(), f.user.ID, res.IntentID)
	require.NoError(t, err)
	assert.Equal(t, "canceled", intent.Status)
	assert.Equal(t, domain.TicketCanceled, f.status(t, ids[0]))
	assert.True(t, f.available(t, f.seats[0]))

	_, err = f.svc.CancelIntent(context.Background(), f.user.ID, "pi_unknown")
	assert.ErrorIs(t, err, ErrIntentNotFound)
}

func TestIntentStatus(t *testing.T) {
	f := newFixture(t)
	ids := f.book(t, f.seats[0])
	res, err := f.svc.CreateIntentForTickets(context.Background(), f.user.ID, ids)
	require.NoError(t, err)

	intent, err := f.svc.IntentStatus(context.Background(), f.user.ID, res.IntentID)
	require.NoError(t, err)
	assert.Equal(t, res.IntentID, intent.ID)
	assert.EqualValues(t, 1250, intent.AmountCents)
}
