package httpgin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/cinetix/internal/service"
	"github.com/kirinyoku/cinetix/internal/service/schedule"
)

const (
	scheduleCacheControl = "public, max-age=60"
	seatMapCacheControl  = "public, max-age=5"
)

// @Summary  List schedules of a day
// @Param    date query string true "day, YYYY-MM-DD"
// @Success  200 {array}  domain.Schedule
// @Failure  400 {object} ErrorResponse
// @Router   /schedules [get]
func handleListSchedulesByDate(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		day, err := parseDate(c.Query("date"))
		if err != nil {
			badRequest(c, "date must be YYYY-MM-DD")
			return
		}

		list, err := svcs.Query.ListByDate(c.Request.Context(), day)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, orEmpty(list), scheduleCacheControl, true)
	}
}

// @Summary  Get schedule by ID (ETag)
// @Param    id path int true "Schedule ID"
// @Success  200 {object} domain.Schedule
// @Success  304 "not modified"
// @Failure  404 {object} ErrorResponse
// @Router   /schedules/{id} [get]
func handleGetSchedule(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		s, err := svcs.Query.GetSchedule(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, s, scheduleCacheControl, true)
	}
}

// @Summary  Seat map of a schedule (ETag)
// @Param    id path int true "Schedule ID"
// @Success  200 {object} SeatMapResponse
// @Success  304 "not modified"
// @Failure  400 {object} ErrorResponse "schedule has ended"
// @Failure  404 {object} ErrorResponse
// @Router   /schedules/{id}/seats [get]
func handleSeatMap(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		m, err := svcs.Query.SeatMap(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, seatMapResponse(m), seatMapCacheControl, true)
	}
}

// @Summary  Live seat map (server-sent events)
// @Produce  text/event-stream
// @Param    id path int true "Schedule ID"
// @Success  200 {object} SeatMapResponse "event: seats"
// @Failure  503 {object} ErrorResponse
// @Router   /schedules/{id}/seats/stream [get]
func handleSeatStream(svcs *service.Services, events SeatEvents, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if events == nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "live seat updates are disabled"})
			return
		}

		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		ctx := c.Request.Context()

		m, err := svcs.Query.SeatMap(ctx, id)
		if err != nil {
			respondErr(c, err)
			return
		}
		screenID := m.ScreenID

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		c.SSEvent("seats", seatMapResponse(m))
		c.Writer.Flush()

		err = events.Subscribe(ctx, func(ctx context.Context, changed int64) {
			if changed != screenID {
				return
			}

			m, err := svcs.Query.SeatMap(ctx, id)
			if err != nil {
				c.SSEvent("error", ErrorResponse{Error: err.Error()})
				c.Writer.Flush()
				return
			}

			c.SSEvent("seats", seatMapResponse(m))
			c.Writer.Flush()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("seat stream closed", "schedule_id", id, "err", err)
		}
	}
}

// @Summary  List schedules of a screen
// @Param    id path int true "Screen ID"
// @Success  200 {array}  domain.Schedule
// @Failure  404 {object} ErrorResponse
// @Router   /screens/{id}/schedules [get]
func handleListSchedulesByScreen(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		list, err := svcs.Query.ListByScreen(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, orEmpty(list), scheduleCacheControl, true)
	}
}

// @Summary  List schedules of a movie
// @Param    id path int true "Movie ID"
// @Success  200 {array}  domain.Schedule
// @Failure  404 {object} ErrorResponse
// @Router   /movies/{id}/schedules [get]
func handleListSchedulesByMovie(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		list, err := svcs.Query.ListByMovie(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, orEmpty(list), scheduleCacheControl, true)
	}
}

// @Summary  Create a schedule
// @Security BearerAuth
// @Param    req body CreateScheduleRequest true "payload"
// @Success  201 {object} domain.Schedule
// @Failure  409 {object} ErrorResponse "overlaps another schedule"
// @Router   /admin/schedules [post]
func handleCreateSchedule(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateScheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		s, err := svcs.Schedule.Create(c.Request.Context(), capability(c), schedule.CreateParams{
			ScreenID: req.ScreenID,
			MovieID:  req.MovieID,
			StartsAt: req.StartsAt,
			EndsAt:   req.EndsAt,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, s)
	}
}

// @Summary  Update a schedule
// @Security BearerAuth
// @Param    id  path int true "Schedule ID"
// @Param    req body UpdateScheduleRequest true "payload"
// @Success  200 {object} domain.Schedule
// @Failure  409 {object} ErrorResponse "overlaps another schedule"
// @Router   /admin/schedules/{id} [patch]
func handleUpdateSchedule(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req UpdateScheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		s, err := svcs.Schedule.Update(c.Request.Context(), capability(c), id, schedule.UpdateParams{
			MovieID:  req.MovieID,
			StartsAt: req.StartsAt,
			EndsAt:   req.EndsAt,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, s)
	}
}

// @Summary  Delete a schedule, canceling its live tickets
// @Security BearerAuth
// @Param    id path int true "Schedule ID"
// @Success  200 {object} map[string]int
// @Failure  409 {object} ErrorResponse "schedule already started"
// @Router   /admin/schedules/{id} [delete]
func handleDeleteSchedule(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		n, err := svcs.Schedule.Delete(c.Request.Context(), capability(c), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"canceled_tickets": n})
	}
}
