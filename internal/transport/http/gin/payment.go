package httpgin

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/cinetix/internal/service"
)

const signatureHeader = "Stripe-Signature"

// @Summary  Create a payment intent for pending tickets
// @Security BearerAuth
// @Param    req body TicketIDsRequest true "payload"
// @Success  201 {object} payment.IntentResult
// @Failure  409 {object} ErrorResponse "tickets not pending"
// @Failure  429 {object} ErrorResponse
// @Failure  502 {object} ErrorResponse "gateway declined"
// @Router   /payment [post]
func handleCreateIntent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TicketIDsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := svcs.Payment.CreateIntentForTickets(c.Request.Context(), capability(c).SubjectID, req.TicketIDs)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, res)
	}
}

// @Summary  Cancel a payment intent
// @Security BearerAuth
// @Param    intentId path string true "Payment intent ID"
// @Success  200 {object} payment.Intent
// @Router   /payment/{intentId}/cancel [post]
func handleCancelIntent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		in, err := svcs.Payment.CancelIntent(c.Request.Context(), capability(c).SubjectID, c.Param("intentId"))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, in)
	}
}

// @Summary  Payment intent status
// @Security BearerAuth
// @Param    intentId path string true "Payment intent ID"
// @Success  200 {object} payment.Intent
// @Router   /payment/{intentId}/status [get]
func handleIntentStatus(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		in, err := svcs.Payment.IntentStatus(c.Request.Context(), capability(c).SubjectID, c.Param("intentId"))
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, in)
	}
}

// @Summary  Payment gateway webhook
// @Param    Stripe-Signature header string true "signature"
// @Success  200 {object} WebhookResponse
// @Failure  400 {object} ErrorResponse "missing or invalid signature"
// @Router   /payment/webhook [post]
func handleWebhook(svcs *service.Services, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sig := c.GetHeader(signatureHeader)
		if sig == "" {
			badRequest(c, "missing "+signatureHeader+" header")
			return
		}

		payload, err := c.GetRawData()
		if err != nil {
			badRequest(c, "unreadable body")
			return
		}

		res, err := svcs.Payment.HandleWebhook(c.Request.Context(), payload, sig)
		if err != nil {
			respondErr(c, err)
			return
		}

		logger.Info("webhook processed",
			"event_id", res.EventID,
			"type", res.Type,
			"duplicate", res.Duplicate,
			"changed", res.Changed,
		)

		c.JSON(http.StatusOK, WebhookResponse{Received: true})
	}
}
