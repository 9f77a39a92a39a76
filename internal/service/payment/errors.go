package payment

import "github.com/kirinyoku/cinetix/internal/domain"

var (
	ErrNoTickets          = domain.Invalid("ticketIds must be a non-empty array")
	ErrZeroAmount         = domain.Invalid("payment amount must be greater than zero")
	ErrMissingSignature   = domain.Invalid("missing webhook signature")
	ErrInvalidSignature   = domain.Invalid("invalid webhook signature")
	ErrTicketNotFound     = domain.NotFound("ticket not found")
	ErrNotTicketOwner     = domain.Forbidden("ticket does not belong to the user")
	ErrTicketNotPending   = domain.Conflict("ticket is not awaiting payment")
	ErrIntentNotFound     = domain.NotFound("payment intent not found")
	ErrUserNotFound       = domain.NotFound("user not found")
	ErrTicketsChanged     = domain.Conflict("tickets changed while the payment was being created")
	ErrGatewayUnavailable = domain.Upstream("payment gateway unavailable")
	ErrPaymentInProgress  = domain.Conflict("an earlier payment for these tickets is still in progress")
)
