package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/notify"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/uow"
)

type WebhookResult struct {
	EventID   string
	Type      string
	Duplicate bool
	Changed   int
}

// HandleWebhook verifies a gateway notification and applies it at most once.
// A redelivered event id is reported as a duplicate, not as an error.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	const op = "service.payment.HandleWebhook"

	if signature == "" {
		return nil, ErrMissingSignature
	}

	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res := &WebhookResult{EventID: ev.ID, Type: ev.Type}

	err = s.uow.Do(ctx, func(ctx context.Context, r repository.Repos, after func(uow.AfterCommit)) error {
		res.Duplicate = false
		res.Changed = 0

		fresh, err := r.Payments().RecordEvent(ctx, domain.PaymentEvent{
			ID:         ev.ID,
			Type:       ev.Type,
			IntentID:   ev.IntentID,
			Payload:    ev.Payload,
			ReceivedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}

		if !fresh {
			res.Duplicate = true
			return nil
		}

		switch ev.Type {
		case EventIntentSucceeded:
			return s.applySucceeded(ctx, r, after, ev, res)
		case EventIntentFailed:
			return s.applyClosed(ctx, r, after, ev, res, domain.TicketFailed, notify.TicketFailed)
		case EventIntentCanceled:
			return s.applyClosed(ctx, r, after, ev, res, domain.TicketCanceled, notify.TicketCanceled)
		default:
			s.log.Info("webhook event ignored", "event_id", ev.ID, "type", ev.Type)
			return nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if res.Duplicate {
		s.log.Info("webhook event already handled", "event_id", ev.ID, "type", ev.Type)
	}

	return res, nil
}

func (s *Service) applySucceeded(
	ctx context.Context,
	r repository.Repos,
	after func(uow.AfterCommit),
	ev *WebhookEvent,
	res *WebhookResult,
) error {
	paid, err := r.Tickets().TransitionByIntent(ctx, ev.IntentID, domain.TicketPending, domain.TicketPaid)
	if err != nil {
		return err
	}
	res.Changed = len(paid)

	if len(paid) == 0 {
		// a success arriving after the hold expired or the user canceled
		s.log.Warn("payment succeeded for tickets no longer pending",
			"event_id", ev.ID, "intent_id", ev.IntentID)
		return nil
	}

	s.notifyAfter(after, notify.TicketPaid, ev.IntentID, paid)
	after(func(context.Context) {
		s.log.Info("tickets paid", "intent_id", ev.IntentID, "count", len(paid))
	})

	return nil
}

func (s *Service) applyClosed(
	ctx context.Context,
	r repository.Repos,
	after func(uow.AfterCommit),
	ev *WebhookEvent,
	res *WebhookResult,
	status domain.TicketStatus,
	evType notify.EventType,
) error {
	n, err := s.closeIntent(ctx, r, after, ev.IntentID, status, evType)
	if err != nil {
		return err
	}
	res.Changed = n

	after(func(context.Context) {
		s.log.Info("payment closed", "intent_id", ev.IntentID, "status", status,
			"count", n, "reason", ev.FailureReason)
	})

	return nil
}
