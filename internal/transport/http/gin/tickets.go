package httpgin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/cinetix/internal/domain"
	redisrepo "github.com/kirinyoku/cinetix/internal/repository/redis"
	"github.com/kirinyoku/cinetix/internal/service"
	"github.com/kirinyoku/cinetix/internal/service/history"
)

const idemLockTTL = 60 * time.Second

// @Summary  Book seats (idempotent with Idempotency-Key)
// @Security BearerAuth
// @Param    Idempotency-Key header string false "client request key"
// @Param    req body  BookTicketsRequest true "payload"
// @Success  200 {object} TicketsResponse
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "seats unavailable / idem in progress"
// @Router   /tickets/book [post]
func handleBook(svcs *service.Services, idem *redisrepo.IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BookTicketsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		userID := capability(c).SubjectID
		ctx := c.Request.Context()

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(userID, idemKey)

			outcome, payload, err := idem.Begin(ctx, idemStorageKey, idemLockTTL)
			if err != nil {
				respondErr(c, err)
				return
			}

			switch outcome {
			case redisrepo.IdemReplay:
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))
				return
			case redisrepo.IdemInProgress:
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		tickets, err := svcs.Booking.Book(ctx, userID, req.TheaterID, req.ScheduleID, req.SeatIDs)
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(ctx, idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := TicketsResponse{Tickets: tickets}

		if idemStorageKey != "" {
			b, _ := json.Marshal(resp)
			_ = idem.SaveResult(ctx, idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusOK, resp)
	}
}

// @Summary  Cancel tickets
// @Security BearerAuth
// @Param    req body  TicketIDsRequest true "payload"
// @Success  200 {object} TicketsResponse
// @Failure  403 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse
// @Router   /tickets/cancel [patch]
func handleCancel(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TicketIDsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		tickets, err := svcs.Booking.Cancel(c.Request.Context(), capability(c).SubjectID, req.TicketIDs)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, TicketsResponse{Tickets: tickets})
	}
}

// @Summary  Ticket history of the caller
// @Security BearerAuth
// @Param    status query string false "ticket status"
// @Param    page   query int    false "page, from 1"
// @Param    limit  query int    false "page size"
// @Success  200 {object} domain.TicketPage
// @Router   /tickets/history [get]
func handleHistory(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := svcs.History.UserHistory(c.Request.Context(), capability(c).SubjectID, pageQuery(c))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, page)
	}
}

// @Summary  Issue QR codes for paid tickets
// @Security BearerAuth
// @Param    req body  TicketIDsRequest true "payload"
// @Success  200 {object} map[string][]booking.QRTicket
// @Failure  409 {object} ErrorResponse "ticket not paid"
// @Router   /tickets/generate-qr [post]
func handleGenerateQR(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TicketIDsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		qrs, err := svcs.Booking.IssueQR(c.Request.Context(), capability(c).SubjectID, req.TicketIDs)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"tickets": qrs})
	}
}

// @Summary  Printable ticket
// @Security BearerAuth
// @Produce  application/pdf
// @Param    id path string true "Ticket ID (uuid)"
// @Success  200 {file} binary
// @Router   /tickets/{id}/pdf [get]
func handleTicketPDF(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		pdf, number, err := svcs.Booking.TicketPDF(c.Request.Context(), capability(c).SubjectID, id)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, number))
		c.Data(http.StatusOK, "application/pdf", pdf)
	}
}

// @Summary  Scan a ticket at the entrance
// @Security BearerAuth
// @Param    req body  ScanRequest true "payload"
// @Success  200 {object} domain.TicketDetails
// @Failure  404 {object} ErrorResponse "ticket not found"
// @Failure  409 {object} ErrorResponse "already used / not paid"
// @Router   /tickets/scan-qr [post]
func handleScan(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		d, err := svcs.Booking.Scan(c.Request.Context(), capability(c), req.QRCodeToken)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, d)
	}
}

// @Summary  List tickets of the caller's theaters
// @Security BearerAuth
// @Param    status query string false "ticket status"
// @Param    page   query int    false "page, from 1"
// @Param    limit  query int    false "page size"
// @Success  200 {object} domain.TicketPage
// @Router   /admin/tickets [get]
func handleAdminListTickets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := svcs.History.AdminList(c.Request.Context(), capability(c), pageQuery(c))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, page)
	}
}

// @Summary  Get a ticket
// @Security BearerAuth
// @Param    id path string true "Ticket ID (uuid)"
// @Success  200 {object} domain.TicketDetails
// @Router   /admin/tickets/{id} [get]
func handleAdminGetTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		d, err := svcs.History.AdminGet(c.Request.Context(), capability(c), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, d)
	}
}

// @Summary  Override a ticket's status
// @Security BearerAuth
// @Param    id  path string true "Ticket ID (uuid)"
// @Param    req body UpdateStatusRequest true "PAID, USED, CANCELED or EXPIRED"
// @Success  200 {object} domain.TicketDetails
// @Router   /admin/tickets/{id}/status [patch]
func handleUpdateTicketStatus(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "status must be one of PAID, USED, CANCELED, EXPIRED")
			return
		}

		d, err := svcs.Booking.UpdateStatus(c.Request.Context(), capability(c), id, domain.TicketStatus(req.Status))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, d)
	}
}

func pageQuery(c *gin.Context) history.Page {
	return history.Page{
		Status: strings.ToUpper(c.Query("status")),
		Page:   parseIntDefault(c.Query("page"), 1),
		Limit:  parseIntDefault(c.Query("limit"), history.DefaultLimit),
	}
}
