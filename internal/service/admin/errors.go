package admin

import "github.com/kirinyoku/cinetix/internal/domain"

var (
	ErrTheaterConflict  = domain.Conflict("theater already exists")
	ErrScreenConflict   = domain.Conflict("screen with this name already exists in the theater")
	ErrTheaterNotFound  = domain.NotFound("theater not found")
	ErrScreenNotFound   = domain.NotFound("screen not found")
	ErrAdminNotFound    = domain.NotFound("admin not found")
	ErrSeatNotFound     = domain.NotFound("seat not found on this screen")
	ErrNotTheaterAdmin  = domain.Invalid("admin is not a theater admin")
	ErrInvalidLayout    = domain.Invalid("rows must be 1..26 and seats per row must be positive")
	ErrInvalidSeatType  = domain.Invalid("seat type must be one of REGULAR, VIP, PREMIUM")
	ErrInvalidPrice     = domain.Invalid("price must not be negative")
	ErrOverrideOutside  = domain.Invalid("seat override is outside the screen layout")
	ErrNothingToUpdate  = domain.Invalid("seat edit changes nothing")
	ErrNameRequired     = domain.Invalid("name is required")
	ErrInvalidDuration  = domain.Invalid("duration must be positive")
	ErrNoSeatsToRelease = domain.Invalid("no seats selected")

	ErrMovieNotFound       = domain.NotFound("movie not found")
	ErrAssignmentNotFound  = domain.NotFound("admin is not assigned to this theater")
	ErrScreeningInProgress = domain.Conflict("a screening is in progress")
)
