package booking

import "github.com/kirinyoku/cinetix/internal/domain"

var (
	ErrUserNotFound         = domain.NotFound("user not found")
	ErrTheaterNotFound      = domain.NotFound("theater not found")
	ErrScheduleNotFound     = domain.NotFound("schedule not found")
	ErrScheduleNotInTheater = domain.Invalid("schedule does not belong to this theater")
	ErrScheduleEnded        = domain.Conflict("schedule has already ended")

	ErrNoTickets           = domain.Invalid("no tickets selected")
	ErrDuplicateTickets    = domain.Invalid("duplicate ticket ids")
	ErrTicketNotFound      = domain.NotFound("ticket not found")
	ErrNotTicketOwner      = domain.Forbidden("ticket does not belong to the user")
	ErrTicketNotCancelable = domain.Conflict("ticket can no longer be canceled")
	ErrTicketNotPaid       = domain.Conflict("ticket is not paid")
	ErrTicketAlreadyUsed   = domain.Conflict("ticket has already been used")
	ErrTicketFinal         = domain.Conflict("ticket is already in a final status")
	ErrStatusNotAllowed    = domain.Invalid("status must be one of PAID, USED, CANCELED, EXPIRED")
)
