package httpgin

import (
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/cinetix/internal/domain"
)

type BookTicketsRequest struct {
	TheaterID  int64   `json:"theater_id" binding:"required,gt=0"`
	ScheduleID int64   `json:"schedule_id" binding:"required,gt=0"`
	SeatIDs    []int64 `json:"seat_ids" binding:"required,min=1,dive,gt=0"`
}

type TicketIDsRequest struct {
	TicketIDs []uuid.UUID `json:"ticket_ids" binding:"required,min=1"`
}

type ScanRequest struct {
	QRCodeToken string `json:"qr_code_token" binding:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,ticketstatus"`
}

type CreateTheaterRequest struct {
	Name string `json:"name" binding:"required"`
	City string `json:"city" binding:"required"`
}

type AssignAdminRequest struct {
	AdminID int64 `json:"admin_id" binding:"required,gt=0"`
}

type SeatOverrideInput struct {
	Row        string `json:"row" binding:"required,len=1"`
	Number     int    `json:"number" binding:"required,gt=0"`
	Type       string `json:"seat_type" binding:"omitempty,oneof=REGULAR VIP PREMIUM"`
	PriceCents *int64 `json:"price_cents" binding:"omitempty,gte=0"`
}

type CreateScreenRequest struct {
	Name        string              `json:"name" binding:"required"`
	Rows        int                 `json:"rows" binding:"required,gt=0,lte=26"`
	SeatsPerRow int                 `json:"seats_per_row" binding:"required,gt=0"`
	Type        string              `json:"seat_type" binding:"omitempty,oneof=REGULAR VIP PREMIUM"`
	PriceCents  int64               `json:"price_cents" binding:"gte=0"`
	Overrides   []SeatOverrideInput `json:"custom_seats" binding:"omitempty,dive"`
}

type SeatEditInput struct {
	SeatID     int64  `json:"seat_id" binding:"required,gt=0"`
	Type       string `json:"seat_type" binding:"omitempty,oneof=REGULAR VIP PREMIUM"`
	PriceCents *int64 `json:"price_cents" binding:"omitempty,gte=0"`
}

type UpdateSeatsRequest struct {
	Seats []SeatEditInput `json:"seats" binding:"required,min=1,dive"`
}

type ReleaseSeatsRequest struct {
	SeatIDs []int64 `json:"seat_ids" binding:"required,min=1,dive,gt=0"`
}

type CreateMovieRequest struct {
	Title       string `json:"title" binding:"required"`
	DurationMin int    `json:"duration_min" binding:"required,gt=0"`
	Genre       string `json:"genre"`
}

type CreateScheduleRequest struct {
	ScreenID int64     `json:"screen_id" binding:"required,gt=0"`
	MovieID  int64     `json:"movie_id" binding:"required,gt=0"`
	StartsAt time.Time `json:"starts_at" binding:"required"`
	EndsAt   time.Time `json:"ends_at" binding:"required"`
}

type UpdateScheduleRequest struct {
	MovieID  *int64     `json:"movie_id" binding:"omitempty,gt=0"`
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

type ErrorResponse struct {
	Error   string  `json:"error"`
	SeatIDs []int64 `json:"seat_ids,omitempty"`
	Code    string  `json:"code,omitempty"`
}

type TicketsResponse struct {
	Tickets []domain.Ticket `json:"tickets"`
}

type SeatView struct {
	SeatID     int64           `json:"seat_id"`
	Seat       string          `json:"seat"`
	Type       domain.SeatType `json:"seat_type"`
	PriceCents int64           `json:"price_cents"`
	Available  bool            `json:"is_available"`
}

type SeatMapResponse struct {
	ScheduleID int64      `json:"schedule_id"`
	ScreenID   int64      `json:"screen_id"`
	Available  int        `json:"available"`
	Total      int        `json:"total"`
	Seats      []SeatView `json:"seats"`
}

type ScreenResponse struct {
	Screen domain.Screen `json:"screen"`
	Seats  []SeatView    `json:"seats"`
}

type WebhookResponse struct {
	Received bool `json:"received"`
}

func seatViews(seats []domain.Seat) []SeatView {
	out := make([]SeatView, 0, len(seats))
	for _, s := range seats {
		out = append(out, SeatView{
			SeatID:     s.ID,
			Seat:       s.Label(),
			Type:       s.Type,
			PriceCents: s.PriceCents,
			Available:  s.Available,
		})
	}
	return out
}

func seatMapResponse(m *domain.SeatMap) SeatMapResponse {
	return SeatMapResponse{
		ScheduleID: m.ScheduleID,
		ScreenID:   m.ScreenID,
		Available:  m.Available,
		Total:      m.Total,
		Seats:      seatViews(m.Seats),
	}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
