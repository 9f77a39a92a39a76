package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kirinyoku/cinetix/internal/domain"
	"github.com/kirinyoku/cinetix/internal/service"
	"github.com/kirinyoku/cinetix/internal/service/admin"
)

// @Summary  Create a theater
// @Security BearerAuth
// @Param    req body CreateTheaterRequest true "payload"
// @Success  201 {object} domain.Theater
// @Failure  403 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "name taken"
// @Router   /admin/theaters [post]
func handleCreateTheater(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTheaterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		t, err := svcs.Admin.CreateTheater(c.Request.Context(), capability(c), req.Name, req.City)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, t)
	}
}

// @Summary  Assign a theater admin
// @Security BearerAuth
// @Param    id  path int true "Theater ID"
// @Param    req body AssignAdminRequest true "payload"
// @Success  204
// @Router   /admin/theaters/{id}/admins [post]
func handleAssignAdmin(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req AssignAdminRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		if err := svcs.Admin.AssignTheaterAdmin(c.Request.Context(), capability(c), id, req.AdminID); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// @Summary  Create a screen with its seat grid
// @Security BearerAuth
// @Param    id  path int true "Theater ID"
// @Param    req body CreateScreenRequest true "payload"
// @Success  201 {object} ScreenResponse
// @Failure  400 {object} ErrorResponse "invalid layout"
// @Router   /admin/theaters/{id}/screens [post]
func handleCreateScreen(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req CreateScreenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		p := admin.ScreenParams{
			Name:        req.Name,
			Rows:        req.Rows,
			SeatsPerRow: req.SeatsPerRow,
			Type:        domain.SeatType(req.Type),
			PriceCents:  req.PriceCents,
		}
		for _, o := range req.Overrides {
			p.Overrides = append(p.Overrides, admin.SeatOverride{
				Row:        o.Row,
				Number:     o.Number,
				Type:       domain.SeatType(o.Type),
				PriceCents: o.PriceCents,
			})
		}

		screen, seats, err := svcs.Admin.CreateScreen(c.Request.Context(), capability(c), id, p)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, ScreenResponse{Screen: *screen, Seats: seatViews(seats)})
	}
}

// @Summary  Change seat types and prices
// @Security BearerAuth
// @Param    id  path int true "Screen ID"
// @Param    req body UpdateSeatsRequest true "payload"
// @Success  204
// @Router   /admin/screens/{id}/seats [patch]
func handleUpdateSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req UpdateSeatsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		edits := make([]admin.SeatEdit, 0, len(req.Seats))
		for _, s := range req.Seats {
			e := admin.SeatEdit{SeatID: s.SeatID, PriceCents: s.PriceCents}
			if s.Type != "" {
				t := domain.SeatType(s.Type)
				e.Type = &t
			}
			edits = append(edits, e)
		}

		if err := svcs.Admin.UpdateSeats(c.Request.Context(), capability(c), id, edits); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// @Summary  Make seats available again
// @Security BearerAuth
// @Param    id  path int true "Screen ID"
// @Param    req body ReleaseSeatsRequest true "payload"
// @Success  200 {object} admin.ReleaseResult
// @Router   /admin/screens/{id}/seats/release [post]
func handleReleaseSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req ReleaseSeatsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := svcs.Admin.ReleaseSeats(c.Request.Context(), capability(c), id, req.SeatIDs)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"released": orEmpty(res.Released), "held": orEmpty(res.Held)})
	}
}

// @Summary  Create a movie
// @Security BearerAuth
// @Param    req body CreateMovieRequest true "payload"
// @Success  201 {object} domain.Movie
// @Router   /admin/movies [post]
func handleCreateMovie(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateMovieRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		m, err := svcs.Admin.CreateMovie(c.Request.Context(), capability(c), domain.Movie{
			Title:       req.Title,
			DurationMin: req.DurationMin,
			Genre:       req.Genre,
		})
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusCreated, m)
	}
}

// @Summary  Remove a theater admin from a theater
// @Security BearerAuth
// @Param    id      path int true "Theater ID"
// @Param    adminId path int true "Admin ID"
// @Success  204
// @Failure  404 {object} ErrorResponse "not assigned"
// @Router   /admin/theaters/{id}/admins/{adminId} [delete]
func handleRemoveAdmin(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		adminID, ok := parseInt64Param(c, "adminId")
		if !ok {
			return
		}

		if err := svcs.Admin.RemoveTheaterAdmin(c.Request.Context(), capability(c), id, adminID); err != nil {
			respondErr(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// @Summary  Delete a screen, its seats and schedules
// @Security BearerAuth
// @Param    id path int true "Screen ID"
// @Success  200 {object} admin.DeleteResult
// @Failure  409 {object} ErrorResponse "screening in progress"
// @Router   /admin/screens/{id} [delete]
func handleDeleteScreen(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		res, err := svcs.Admin.DeleteScreen(c.Request.Context(), capability(c), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

// @Summary  Delete a movie and its schedules
// @Security BearerAuth
// @Param    id path int true "Movie ID"
// @Success  200 {object} admin.DeleteResult
// @Failure  409 {object} ErrorResponse "screening in progress"
// @Router   /admin/movies/{id} [delete]
func handleDeleteMovie(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		res, err := svcs.Admin.DeleteMovie(c.Request.Context(), capability(c), id)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}
