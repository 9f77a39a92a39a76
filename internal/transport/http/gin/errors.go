package httpgin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/cinetix/internal/domain"
	redisrepo "github.com/kirinyoku/cinetix/internal/repository/redis"
	"github.com/kirinyoku/cinetix/internal/service/inventory"
	"github.com/kirinyoku/cinetix/internal/service/payment"
	"github.com/kirinyoku/cinetix/internal/service/schedule"
)

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// respondErr maps a service error to its HTTP status. Messages of classified
// errors are shown to the caller; anything else is a 500 and is attached to
// the context for the access log.
func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var (
		unavailable inventory.SeatsUnavailableError
		missing     inventory.SeatsNotFoundError
		gwErr       *payment.GatewayError
		overlap     schedule.OverlapError
		derr        *domain.Error
	)

	switch {
	case errors.As(err, &unavailable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "some or all seats are unavailable", SeatIDs: unavailable.SeatIDs})
	case errors.As(err, &missing):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "seats not found", SeatIDs: missing.SeatIDs})
	case errors.As(err, &gwErr):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: gwErr.Reason, Code: gwErr.Code})
	case errors.As(err, &overlap):
		c.JSON(http.StatusConflict, ErrorResponse{Error: overlap.Error()})
	case errors.Is(err, redisrepo.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many requests"})
	case errors.As(err, &derr):
		c.JSON(statusOf(derr.Kind()), ErrorResponse{Error: derr.Error()})
	default:
		if kind := kindOf(err); kind != nil {
			c.JSON(statusOf(kind), ErrorResponse{Error: kind.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func kindOf(err error) error {
	for _, k := range []error{domain.ErrNotFound, domain.ErrForbidden, domain.ErrConflict, domain.ErrInvalid, domain.ErrUpstream} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

func statusOf(kind error) int {
	switch kind {
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrForbidden:
		return http.StatusForbidden
	case domain.ErrConflict:
		return http.StatusConflict
	case domain.ErrInvalid:
		return http.StatusBadRequest
	case domain.ErrUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
