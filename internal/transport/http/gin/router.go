package httpgin

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	redisrepo "github.com/kirinyoku/cinetix/internal/repository/redis"
	"github.com/kirinyoku/cinetix/internal/service"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SeatEvents delivers seat-map changes for the live seat stream.
type SeatEvents interface {
	Subscribe(ctx context.Context, handler func(ctx context.Context, screenID int64)) error
}

// Options carries the optional collaborators of the router. Nil limiters,
// idempotency store or seat events switch the matching feature off.
type Options struct {
	Auth           *Authenticator
	Idempotency    *redisrepo.IdempotencyStore
	GlobalLimiter  Limiter
	PaymentLimiter Limiter
	SeatEvents     SeatEvents
}

func NewRouter(
	svcs *service.Services,
	opts Options,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	registerValidators()

	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	if opts.GlobalLimiter != nil {
		r.Use(RateLimit(opts.GlobalLimiter, logger, byClientIP))
	}
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/schedules", handleListSchedulesByDate(svcs))
	r.GET("/schedules/:id", handleGetSchedule(svcs))
	r.GET("/schedules/:id/seats", handleSeatMap(svcs))
	r.GET("/schedules/:id/seats/stream", handleSeatStream(svcs, opts.SeatEvents, logger))
	r.GET("/screens/:id/schedules", handleListSchedulesByScreen(svcs))
	r.GET("/movies/:id/schedules", handleListSchedulesByMovie(svcs))

	// Gateway callbacks
	r.POST("/payment/webhook", handleWebhook(svcs, logger))

	user := opts.Auth.RequireUser()
	adminOnly := opts.Auth.RequireAdmin()

	tickets := r.Group("/tickets", user)
	{
		tickets.POST("/book", handleBook(svcs, opts.Idempotency))
		tickets.PATCH("/cancel", handleCancel(svcs))
		tickets.GET("/history", handleHistory(svcs))
		tickets.POST("/generate-qr", handleGenerateQR(svcs))
		tickets.GET("/:id/pdf", handleTicketPDF(svcs))
	}
	r.POST("/tickets/scan-qr", adminOnly, handleScan(svcs))

	pay := r.Group("/payment", user)
	{
		create := []gin.HandlerFunc{}
		if opts.PaymentLimiter != nil {
			create = append(create, RateLimit(opts.PaymentLimiter, logger, byUser))
		}
		pay.POST("", append(create, handleCreateIntent(svcs))...)
		pay.POST("/:intentId/cancel", handleCancelIntent(svcs))
		pay.GET("/:intentId/status", handleIntentStatus(svcs))
	}

	admin := r.Group("/admin", adminOnly)
	{
		admin.GET("/tickets", handleAdminListTickets(svcs))
		admin.GET("/tickets/:id", handleAdminGetTicket(svcs))
		admin.PATCH("/tickets/:id/status", handleUpdateTicketStatus(svcs))

		admin.POST("/theaters", handleCreateTheater(svcs))
		admin.POST("/theaters/:id/admins", handleAssignAdmin(svcs))
		admin.DELETE("/theaters/:id/admins/:adminId", handleRemoveAdmin(svcs))
		admin.POST("/theaters/:id/screens", handleCreateScreen(svcs))
		admin.PATCH("/screens/:id/seats", handleUpdateSeats(svcs))
		admin.POST("/screens/:id/seats/release", handleReleaseSeats(svcs))
		admin.DELETE("/screens/:id", handleDeleteScreen(svcs))
		admin.POST("/movies", handleCreateMovie(svcs))
		admin.DELETE("/movies/:id", handleDeleteMovie(svcs))

		admin.POST("/schedules", handleCreateSchedule(svcs))
		admin.PATCH("/schedules/:id", handleUpdateSchedule(svcs))
		admin.DELETE("/schedules/:id", handleDeleteSchedule(svcs))
	}

	return r
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}
