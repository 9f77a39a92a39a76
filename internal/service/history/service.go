// Package history lists tickets: a user's own booking history and the
// theater-scoped views used by administrators.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/auth"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/repository"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

type Service struct {
	store repository.Repos
}

func New(store repository.Repos) *Service {
	return &Service{store: store}
}

// Page selects one page of a listing. Page is 1-based; Status may be empty.
type Page struct {
	Status string
	Page   int
	Limit  int
}

// UserHistory returns the user's tickets, newest first.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: owner of the tickets.
//   - p: optional status filter and page; out of range values are clamped.
//
// Returns:
//   - *domain.TicketPage: the page with totals.
//   - error: history.ErrInvalidStatus for an unknown status filter.
func (s *Service) UserHistory(ctx context.Context, userID int64, p Page) (*domain.TicketPage, error) {
	const op = "service.history.UserHistory"

	page, err := s.list(ctx, repository.TicketFilter{UserID: userID}, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return page, nil
}

// AdminList returns tickets of every theater the caller may view. Super
// admins see all theaters; theater admins only their assigned ones.
func (s *Service) AdminList(ctx context.Context, capab auth.Capability, p Page) (*domain.TicketPage, error) {
	const op = "service.history.AdminList"

	if err := auth.AuthorizeRole(capab, auth.ActionViewTicket); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	page, err := s.list(ctx, repository.TicketFilter{TheaterIDs: capab.ScopedTheaters()}, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return page, nil
}

// AdminGet returns one ticket if the caller may view its theater.
func (s *Service) AdminGet(ctx context.Context, capab auth.Capability, id uuid.UUID) (*domain.TicketDetails, error) {
	const op = "service.history.AdminGet"

	d, err := s.store.Tickets().GetDetails(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrTicketNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := auth.Authorize(capab, auth.ActionViewTicket, d.TheaterID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return d, nil
}

func (s *Service) list(ctx context.Context, f repository.TicketFilter, p Page) (*domain.TicketPage, error) {
	if p.Status != "" {
		st, ok := domain.ParseTicketStatus(p.Status)
		if !ok {
			return nil, ErrInvalidStatus
		}
		f.Status = &st
	}

	if p.Page < 1 {
		p.Page = 1
	}

	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}

	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}

	f.Limit = p.Limit
	f.Offset = (p.Page - 1) * p.Limit

	tickets, total, err := s.store.Tickets().List(ctx, f)
	if err != nil {
		return nil, err
	}

	if tickets == nil {
		tickets = []domain.TicketDetails{}
	}

	return &domain.TicketPage{
		Tickets:    tickets,
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: int((total + int64(p.Limit) - 1) / int64(p.Limit)),
	}, nil
}
