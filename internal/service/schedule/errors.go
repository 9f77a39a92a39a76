package schedule

import (
	"fmt"

	"github.com/kirinyoku/cinetix/internal/domain"
)

var (
	ErrScheduleNotFound   = domain.NotFound("schedule not found")
	ErrScreenNotFound     = domain.NotFound("screen not found")
	ErrMovieNotFound      = domain.NotFound("movie not found")
	ErrInvalidInterval    = domain.Invalid("start time must be before end time")
	ErrScheduleStarted    = domain.Conflict("schedule has already started")
	ErrScheduleOverlap    = domain.Conflict("schedule overlaps another schedule on this screen")
	ErrScheduleHasTickets = domain.Conflict("schedule has live tickets, its movie cannot change")
)

// OverlapError names the schedule a new interval collides with.
type OverlapError struct {
	With domain.Schedule
}

func (e OverlapError) Error() string {
	return fmt.Sprintf("schedule overlaps schedule %d (%s - %s) on this screen",
		e.With.ID, e.With.StartsAt.Format("2006-01-02 15:04"), e.With.EndsAt.Format("15:04"))
}

func (e OverlapError) Unwrap() error { return ErrScheduleOverlap }
