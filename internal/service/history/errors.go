package history

import "github.com/kirinyoku/cinetix/internal/domain"

var (
	ErrTicketNotFound = domain.NotFound("ticket not found")
	ErrInvalidStatus  = domain.Invalid("unknown ticket status")
)
