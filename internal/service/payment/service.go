// Package payment owns the ticket side of payments: creating intents for
// PENDING tickets and reconciling gateway webhooks into ticket statuses.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/notify"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/service/inventory"
	"github.com/kirinyoku/cinetix/internal/uow"
)

type Config struct {
	Currency       string
	GatewayTimeout time.Duration
}

type Service struct {
	store    repository.Store
	gateway  Gateway
	inv      *inventory.Service
	notifier notify.Publisher
	uow      *uow.UoW
	cfg      Config
	log      *slog.Logger
}

func New(
	store repository.Store,
	gateway Gateway,
	inv *inventory.Service,
	notifier notify.Publisher,
	cfg Config,
	log *slog.Logger,
) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}

	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}

	if notifier == nil {
		notifier = notify.Nop{}
	}

	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:    store,
		gateway:  gateway,
		inv:      inv,
		notifier: notifier,
		uow:      uow.NewUoW(store),
		cfg:      cfg,
		log:      log,
	}
}

type IntentResult struct {
	IntentID     string `json:"payment_intent_id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// CreateIntentForTickets opens a gateway payment for the user's PENDING
// tickets and stamps them with the intent id.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: ID of the paying user.
//   - ticketIDs: tickets to pay for.
//
// Returns:
//   - *IntentResult: intent id, client secret and amount.
//   - error: ErrZeroAmount if the tickets are free, NotFound or Forbidden for
//     tickets the user does not own, *GatewayError if the gateway declines.
func (s *Service) CreateIntentForTickets(ctx context.Context, userID int64, ticketIDs []uuid.UUID) (*IntentResult, error) {
	const op = "service.payment.CreateIntentForTickets"

	if err := checkTicketIDs(ticketIDs); err != nil {
		return nil, err
	}

	var (
		user    *domain.User
		total   int64
		priors  []string
		partial bool
	)

	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		tickets, err := lockPending(ctx, r, userID, ticketIDs)
		if err != nil {
			return err
		}

		total, partial = 0, false
		for _, t := range tickets {
			total += t.PriceCents
			partial = partial || t.PaymentIntentID == nil
		}
		priors = intentIDs(tickets)

		user, err = r.Catalog().GetUser(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if total <= 0 {
		return nil, ErrZeroAmount
	}

	reuse, stale, err := s.classifyPriorIntents(ctx, priors, total, !partial)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if reuse != nil {
		return &IntentResult{
			IntentID:     reuse.ID,
			ClientSecret: reuse.ClientSecret,
			AmountCents:  reuse.AmountCents,
			Currency:     reuse.Currency,
		}, nil
	}

	customerRef, created, err := s.ensureCustomer(ctx, *user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	intent, err := s.gateway.CreateIntent(gctx, IntentParams{
		AmountCents: total,
		Currency:    s.cfg.Currency,
		CustomerRef: customerRef,
		Metadata: map[string]string{
			"user_id":    strconv.FormatInt(userID, 10),
			"ticket_ids": joinIDs(ticketIDs),
		},
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, upstream(err))
	}

	err = s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		if created {
			if err := r.Payments().SetCustomerRef(ctx, userID, customerRef); err != nil {
				return err
			}
		}

		tickets, err := lockPending(ctx, r, userID, ticketIDs)
		if err != nil {
			if errors.Is(err, ErrTicketNotPending) {
				return ErrTicketsChanged
			}
			return err
		}

		if !slices.Equal(intentIDs(tickets), priors) {
			return ErrTicketsChanged
		}

		// The tickets stay locked while the earlier intents are canceled, so
		// a success webhook for one of them still finds its tickets until the
		// cancel went through.
		for _, id := range stale {
			if err := s.cancelPrior(ctx, id); err != nil {
				return err
			}
		}

		return r.Tickets().SetPaymentIntent(ctx, ticketIDs, intent.ID)
	})
	if err != nil {
		s.cancelQuietly(intent.ID)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &IntentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  total,
		Currency:     s.cfg.Currency,
	}, nil
}

// classifyPriorIntents inspects intents already stamped on the tickets. A
// single open intent stamped on every ticket for the same amount is reused. Intents that may still
// capture money block a new one. The remaining open intents are returned as
// stale and must be canceled before the tickets are re-stamped.
func (s *Service) classifyPriorIntents(ctx context.Context, priors []string, total int64, covered bool) (*Intent, []string, error) {
	if len(priors) == 0 {
		return nil, nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	var stale []string
	for _, id := range priors {
		in, err := s.gateway.RetrieveIntent(ctx, id)
		if err != nil {
			return nil, nil, upstream(err)
		}

		switch in.Status {
		case IntentCanceled:
			continue
		case IntentProcessing, IntentSucceeded, IntentRequiresCapture:
			return nil, nil, ErrPaymentInProgress
		}

		if covered && len(priors) == 1 && in.AmountCents == total && in.ClientSecret != "" {
			return in, nil, nil
		}
		stale = append(stale, id)
	}

	return nil, stale, nil
}

func (s *Service) cancelPrior(ctx context.Context, intentID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	if _, err := s.gateway.CancelIntent(ctx, intentID); err != nil {
		s.log.Warn("earlier payment intent not canceled", "intent_id", intentID, "error", err)
		return ErrPaymentInProgress
	}

	s.log.Info("earlier payment intent canceled", "intent_id", intentID)
	return nil
}

// intentIDs returns the distinct intent ids stamped on tickets, sorted.
func intentIDs(tickets []domain.Ticket) []string {
	var ids []string
	for _, t := range tickets {
		if t.PaymentIntentID != nil && *t.PaymentIntentID != "" {
			ids = append(ids, *t.PaymentIntentID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// ensureCustomer returns the user's gateway customer, creating it when the
// user has none or the gateway no longer knows the cached one.
func (s *Service) ensureCustomer(ctx context.Context, u domain.User) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	if u.PaymentCustomerID != nil && *u.PaymentCustomerID != "" {
		ok, err := s.gateway.CustomerExists(ctx, *u.PaymentCustomerID)
		if err != nil {
			return "", false, upstream(err)
		}
		if ok {
			return *u.PaymentCustomerID, false, nil
		}
		s.log.Info("payment customer missing at gateway, recreating", "user_id", u.ID)
	}

	ref, err := s.gateway.CreateCustomer(ctx, u)
	if err != nil {
		return "", false, upstream(err)
	}

	return ref, true, nil
}

func (s *Service) cancelQuietly(intentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GatewayTimeout)
	defer cancel()

	if _, err := s.gateway.CancelIntent(ctx, intentID); err != nil {
		s.log.Warn("orphaned payment intent not canceled", "intent_id", intentID, "error", err)
	}
}

// CancelIntent cancels the user's payment at the gateway and cancels its
// tickets that are still PENDING.
func (s *Service) CancelIntent(ctx context.Context, userID int64, intentID string) (*Intent, error) {
	const op = "service.payment.CancelIntent"

	if err := s.checkIntentOwner(ctx, userID, intentID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	intent, err := s.gateway.CancelIntent(gctx, intentID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, upstream(err))
	}

	err = s.uow.Do(ctx, func(ctx context.Context, r repository.Repos, after func(uow.AfterCommit)) error {
		_, err := s.closeIntent(ctx, r, after, intentID, domain.TicketCanceled, notify.TicketCanceled)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return intent, nil
}

func (s *Service) IntentStatus(ctx context.Context, userID int64, intentID string) (*Intent, error) {
	const op = "service.payment.IntentStatus"

	if err := s.checkIntentOwner(ctx, userID, intentID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	intent, err := s.gateway.RetrieveIntent(gctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, upstream(err))
	}

	return intent, nil
}

func (s *Service) checkIntentOwner(ctx context.Context, userID int64, intentID string) error {
	return s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		tickets, err := r.Tickets().LockByIntent(ctx, intentID)
		if err != nil {
			return err
		}

		if len(tickets) == 0 {
			return ErrIntentNotFound
		}

		for _, t := range tickets {
			if t.UserID != userID {
				return ErrNotTicketOwner
			}
		}

		return nil
	})
}

// closeIntent moves the intent's PENDING tickets to status and releases
// their seats.
func (s *Service) closeIntent(
	ctx context.Context,
	r repository.Repos,
	after func(uow.AfterCommit),
	intentID string,
	status domain.TicketStatus,
	evType notify.EventType,
) (int, error) {
	changed, err := r.Tickets().TransitionByIntent(ctx, intentID, domain.TicketPending, status)
	if err != nil {
		return 0, err
	}

	screens, err := s.inv.ReleaseTickets(ctx, r.Seats(), changed)
	if err != nil {
		return 0, err
	}

	s.inv.Changed(after, screens...)
	s.notifyAfter(after, evType, intentID, changed)

	return len(changed), nil
}

func (s *Service) notifyAfter(after func(uow.AfterCommit), typ notify.EventType, intentID string, tickets []domain.Ticket) {
	byUser := make(map[int64][]uuid.UUID)
	for _, t := range tickets {
		byUser[t.UserID] = append(byUser[t.UserID], t.ID)
	}

	for userID, ids := range byUser {
		ev := notify.NewEvent(typ, userID, ids...)
		ev.IntentID = intentID
		after(func(ctx context.Context) {
			if err := s.notifier.Publish(ctx, ev); err != nil {
				s.log.Warn("payment notification failed", "type", typ, "intent_id", intentID, "error", err)
			}
		})
	}
}

func lockPending(ctx context.Context, r repository.Repos, userID int64, ticketIDs []uuid.UUID) ([]domain.Ticket, error) {
	tickets, err := r.Tickets().LockByIDs(ctx, ticketIDs)
	if err != nil {
		return nil, err
	}

	if len(tickets) != len(ticketIDs) {
		return nil, ErrTicketNotFound
	}

	for _, t := range tickets {
		if t.UserID != userID {
			return nil, ErrNotTicketOwner
		}
	}

	for _, t := range tickets {
		if t.Status != domain.TicketPending {
			return nil, ErrTicketNotPending
		}
	}

	return tickets, nil
}

func checkTicketIDs(ids []uuid.UUID) error {
	if len(ids) == 0 {
		return ErrNoTickets
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return domain.Invalid("duplicate ticket ids")
		}
		seen[id] = struct{}{}
	}

	return nil
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	return strings.Join(parts, ",")
}

// upstream keeps gateway declines as they are and classifies anything else
// as the gateway being unavailable.
func upstream(err error) error {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
}
