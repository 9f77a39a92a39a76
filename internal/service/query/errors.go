package query

import "github.com/kirinyoku/cinetix/internal/domain"

var (
	ErrScheduleNotFound = domain.NotFound("schedule not found")
	ErrScreenNotFound   = domain.NotFound("screen not found")
	ErrMovieNotFound    = domain.NotFound("movie not found")
	ErrScheduleEnded    = domain.Invalid("this schedule has already ended")
)
