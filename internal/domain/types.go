package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser         Role = "USER"
	RoleAdmin        Role = "ADMIN"
	RoleTheaterAdmin Role = "THEATER_ADMIN"
	RoleSuperAdmin   Role = "SUPER_ADMIN"
)

type SeatType string

const (
	SeatRegular SeatType = "REGULAR"
	SeatVIP     SeatType = "VIP"
	SeatPremium SeatType = "PREMIUM"
)

func (t SeatType) Valid() bool {
	switch t {
	case SeatRegular, SeatVIP, SeatPremium:
		return true
	}
	return false
}

type User struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	Email             string  `json:"email"`
	PaymentCustomerID *string `json:"-"`
}

type Admin struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

type Theater struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	City     string `json:"city"`
	Capacity int    `json:"capacity"`
}

type Screen struct {
	ID        int64  `json:"id"`
	TheaterID int64  `json:"theater_id"`
	Name      string `json:"name"`
	Capacity  int    `json:"capacity"`
}

type Movie struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	DurationMin int    `json:"duration_min"`
	Genre       string `json:"genre,omitempty"`
}

// Seat availability is a single flag per physical seat, shared by every
// schedule on its screen.
type Seat struct {
	ID         int64    `json:"id"`
	ScreenID   int64    `json:"screen_id"`
	Row        string   `json:"row"`
	Number     int      `json:"number"`
	Type       SeatType `json:"type"`
	PriceCents int64    `json:"price_cents"`
	Available  bool     `json:"available"`
}

func (s Seat) Label() string {
	return fmt.Sprintf("%s%d", s.Row, s.Number)
}

// Schedule occupies its screen over the half-open interval [StartsAt, EndsAt).
type Schedule struct {
	ID       int64     `json:"id"`
	ScreenID int64     `json:"screen_id"`
	MovieID  int64     `json:"movie_id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

func (s Schedule) Overlaps(start, end time.Time) bool {
	return s.StartsAt.Before(end) && s.EndsAt.After(start)
}

// SeatMap is the seat layout of a schedule's screen with current availability.
type SeatMap struct {
	ScheduleID int64  `json:"schedule_id"`
	ScreenID   int64  `json:"screen_id"`
	Seats      []Seat `json:"seats"`
	Available  int    `json:"available"`
	Total      int    `json:"total"`
}

// Ticket snapshots the seat type and price at booking time.
type Ticket struct {
	ID              uuid.UUID    `json:"id"`
	Number          string       `json:"ticket_number"`
	UserID          int64        `json:"user_id"`
	ScheduleID      int64        `json:"schedule_id"`
	SeatID          int64        `json:"seat_id"`
	SeatType        SeatType     `json:"seat_type"`
	PriceCents      int64        `json:"price_cents"`
	Status          TicketStatus `json:"status"`
	BookedAt        time.Time    `json:"booked_at"`
	QRToken         *string      `json:"qr_token,omitempty"`
	PaymentIntentID *string      `json:"payment_intent_id,omitempty"`
}

// TicketDetails is a ticket joined with the schedule, seat, screen and
// theater it belongs to.
type TicketDetails struct {
	Ticket
	SeatRow     string    `json:"seat_row"`
	SeatNumber  int       `json:"seat_number"`
	ScreenID    int64     `json:"screen_id"`
	ScreenName  string    `json:"screen_name"`
	TheaterID   int64     `json:"theater_id"`
	TheaterName string    `json:"theater_name"`
	MovieID     int64     `json:"movie_id"`
	MovieTitle  string    `json:"movie_title"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
}

type TicketPage struct {
	Tickets    []TicketDetails `json:"tickets"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	Total      int64           `json:"total"`
	TotalPages int             `json:"total_pages"`
}

// PaymentEvent is one processed gateway notification. Its ID is the
// gateway-assigned event id and is recorded exactly once.
type PaymentEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	IntentID   string    `json:"intent_id,omitempty"`
	Payload    []byte    `json:"-"`
	ReceivedAt time.Time `json:"received_at"`
}
