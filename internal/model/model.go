// Package model defines the core domain types for the event ticketing system.
package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTicketType is issued when nothing else is configured.
const DefaultTicketType = "regular"

// RegistrationStatus is the lifecycle state of a registration.
type RegistrationStatus string

const (
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketActive TicketStatus = "active"
	TicketUsed   TicketStatus = "used"
)

// User is the subset of an account the registration workflow needs.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Event represents a capacity-limited event created by an organizer.
type Event struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Location       string          `json:"location"`
	Venue          string          `json:"venue"`
	ImageURL       string          `json:"image_url"`
	StartsAt       time.Time       `json:"starts_at"`
	Price          decimal.Decimal `json:"price"`
	Capacity       int             `json:"capacity"`
	CommittedCount int             `json:"committed_count"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Remaining returns the number of available places. It is informational;
// admission goes through the capacity ledger.
func (e Event) Remaining() int {
	return max(e.Capacity-e.CommittedCount, 0)
}

// MarshalJSON adds the derived "remaining" field.
func (e Event) MarshalJSON() ([]byte, error) {
	type event Event
	return json.Marshal(struct {
		event
		Remaining int `json:"remaining"`
	}{event: event(e), Remaining: e.Remaining()})
}

// Reservation is one unit of event capacity claimed by the ledger.
type Reservation struct {
	EventID        string
	CommittedCount int
	Capacity       int
}

// RegistrationDetails are optional attendee details supplied with a request.
type RegistrationDetails struct {
	AttendeeName  string `json:"attendee_name" validate:"omitempty,max=200"`
	AttendeeEmail string `json:"attendee_email" validate:"omitempty,email,max=320"`
	Phone         string `json:"phone" validate:"omitempty,max=40"`
}

// Registration records that a user claimed a place at an event.
type Registration struct {
	ID        string              `json:"id"`
	UserID    string              `json:"user_id"`
	EventID   string              `json:"event_id"`
	Status    RegistrationStatus  `json:"status"`
	Details   RegistrationDetails `json:"details"`
	CreatedAt time.Time           `json:"created_at"`
}

// Ticket is the artifact bound 1:1 to a confirmed registration.
type Ticket struct {
	ID             string          `json:"id"`
	RegistrationID string          `json:"registration_id"`
	Code           string          `json:"code"`
	Status         TicketStatus    `json:"status"`
	Price          decimal.Decimal `json:"price"`
	TicketType     string          `json:"ticket_type"`
	IssuedAt       time.Time       `json:"issued_at"`
}

// TicketView is the read-only projection of a ticket and its event.
type TicketView struct {
	ID            string          `json:"id"`
	EventID       string          `json:"event_id"`
	EventTitle    string          `json:"event_title"`
	EventDate     string          `json:"event_date"`
	EventTime     string          `json:"event_time"`
	EventLocation string          `json:"event_location"`
	EventVenue    string          `json:"event_venue"`
	EventImageURL string          `json:"event_image_url"`
	PurchaseDate  time.Time       `json:"purchase_date"`
	Status        TicketStatus    `json:"status"`
	Code          string          `json:"code"`
	Price         decimal.Decimal `json:"price"`
	TicketType    string          `json:"ticket_type"`
}

// NewTicketView projects a ticket and its event into a TicketView.
func NewTicketView(t Ticket, e Event) TicketView {
	return TicketView{
		ID:            t.ID,
		EventID:       e.ID,
		EventTitle:    e.Title,
		EventDate:     e.StartsAt.Format(time.DateOnly),
		EventTime:     e.StartsAt.Format(time.TimeOnly),
		EventLocation: e.Location,
		EventVenue:    e.Venue,
		EventImageURL: e.ImageURL,
		PurchaseDate:  t.IssuedAt,
		Status:        t.Status,
		Code:          t.Code,
		Price:         t.Price,
		TicketType:    t.TicketType,
	}
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=5000"`
	Location    string          `json:"location" validate:"max=200"`
	Venue       string          `json:"venue" validate:"max=200"`
	ImageURL    string          `json:"image_url" validate:"omitempty,url"`
	StartsAt    time.Time       `json:"starts_at" validate:"required"`
	Price       decimal.Decimal `json:"price"`
	Capacity    int             `json:"capacity" validate:"gt=0,lte=100000"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
