package inventory

import (
	"fmt"

	"github.com/kirinyoku/cinetix/internal/domain"
)

var (
	ErrNoSeats        = domain.Invalid("no seats selected")
	ErrDuplicateSeats = domain.Invalid("duplicate seat ids")
)

// SeatsUnavailableError lists the requested seats that are already taken.
type SeatsUnavailableError struct {
	SeatIDs []int64
}

func (e SeatsUnavailableError) Error() string {
	return fmt.Sprintf("some or all seats are unavailable: %v", e.SeatIDs)
}

func (e SeatsUnavailableError) Unwrap() error { return domain.ErrConflict }

// SeatsNotFoundError lists seats that do not exist on the requested screen.
type SeatsNotFoundError struct {
	SeatIDs []int64
}

func (e SeatsNotFoundError) Error() string {
	return fmt.Sprintf("seats not found: %v", e.SeatIDs)
}

func (e SeatsNotFoundError) Unwrap() error { return domain.ErrNotFound }
