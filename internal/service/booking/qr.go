package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/auth"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/notify"
	"github.com/kirinyoku/cinetix/internal/repository"
	"github.com/kirinyoku/cinetix/internal/ticketpdf"
	"github.com/kirinyoku/cinetix/internal/uow"
)

type QRTicket struct {
	TicketID     uuid.UUID `json:"ticket_id"`
	TicketNumber string    `json:"ticket_number"`
	QRImage      string    `json:"qr_image"`
}

// IssueQR returns a QR image for each of the user's PAID tickets. A ticket
// keeps the token it was first given.
func (s *Service) IssueQR(ctx context.Context, userID int64, ticketIDs []uuid.UUID) ([]QRTicket, error) {
	const op = "service.booking.IssueQR"

	if err := checkTicketIDs(ticketIDs); err != nil {
		return nil, err
	}

	tokens, tickets, err := s.assignTokens(ctx, userID, ticketIDs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]QRTicket, 0, len(ticketIDs))
	for _, id := range ticketIDs {
		img, err := s.qr.DataURI(tokens[id])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, QRTicket{TicketID: id, TicketNumber: tickets[id].Number, QRImage: img})
	}

	return out, nil
}

func (s *Service) assignTokens(
	ctx context.Context,
	userID int64,
	ticketIDs []uuid.UUID,
) (map[uuid.UUID]string, map[uuid.UUID]domain.Ticket, error) {
	tokens := make(map[uuid.UUID]string, len(ticketIDs))
	byID := make(map[uuid.UUID]domain.Ticket, len(ticketIDs))

	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		clear(tokens)
		clear(byID)

		tickets, err := s.lockOwned(ctx, r, userID, ticketIDs)
		if err != nil {
			return err
		}

		for _, t := range tickets {
			if t.Status != domain.TicketPaid {
				return ErrTicketNotPaid
			}

			byID[t.ID] = t
			if t.QRToken != nil {
				tokens[t.ID] = *t.QRToken
				continue
			}

			token := uuid.NewString()
			if err := r.Tickets().SetQRToken(ctx, t.ID, token); err != nil {
				return err
			}
			tokens[t.ID] = token
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return tokens, byID, nil
}

// Scan redeems a QR token at the entrance. Of two concurrent scans of the
// same token only one succeeds.
func (s *Service) Scan(ctx context.Context, capab auth.Capability, token string) (*domain.TicketDetails, error) {
	const op = "service.booking.Scan"

	var out *domain.TicketDetails

	err := s.uow.Do(ctx, func(ctx context.Context, r repository.Repos, after func(uow.AfterCommit)) error {
		d, err := r.Tickets().LockDetailsByQRToken(ctx, token)
		if err != nil {
			return notFoundAs(err, ErrTicketNotFound)
		}

		if err := auth.Authorize(capab, auth.ActionScanTicket, d.TheaterID); err != nil {
			return err
		}

		switch d.Status {
		case domain.TicketUsed:
			return ErrTicketAlreadyUsed
		case domain.TicketPaid:
		default:
			return ErrTicketNotPaid
		}

		if err := r.Tickets().SetStatus(ctx, []uuid.UUID{d.ID}, domain.TicketUsed); err != nil {
			return err
		}

		d.Status = domain.TicketUsed
		out = d

		s.notifyAfter(after, notify.TicketUsed, d.UserID, d.ScheduleID, "", []domain.Ticket{d.Ticket})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// TicketPDF renders a printable ticket for one of the user's PAID tickets,
// assigning its QR token if needed.
func (s *Service) TicketPDF(ctx context.Context, userID int64, ticketID uuid.UUID) ([]byte, string, error) {
	const op = "service.booking.TicketPDF"

	tokens, _, err := s.assignTokens(ctx, userID, []uuid.UUID{ticketID})
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	d, err := s.store.Tickets().GetDetails(ctx, ticketID)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, notFoundAs(err, ErrTicketNotFound))
	}

	var holder string
	if u, err := s.store.Catalog().GetUser(ctx, userID); err == nil {
		holder = u.Name
	}

	png, err := s.qr.PNG(tokens[ticketID])
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	pdf, err := ticketpdf.Render(ticketpdf.Data{Ticket: *d, HolderName: holder, QRPNG: png})
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	return pdf, d.Number, nil
}
