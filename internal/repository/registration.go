package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/google/uuid"
)

// RegistrationRepository handles persistence for registrations.
//
// At most one confirmed registration per (user, event) is enforced by the
// registrations_confirmed_pair partial unique index, not by a prior SELECT:
// a concurrent insert for the same pair blocks on the index entry and fails
// with a unique violation once the first transaction commits.
type RegistrationRepository struct {
	q   querier
	now func() time.Time
}

// CreateIfAbsent inserts a confirmed registration or returns
// model.ErrAlreadyRegistered.
func (r *RegistrationRepository) CreateIfAbsent(ctx context.Context, userID, eventID string, details model.RegistrationDetails) (*model.Registration, error) {
	reg := &model.Registration{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventID:   eventID,
		Status:    model.RegistrationConfirmed,
		Details:   details,
		CreatedAt: r.now(),
	}
	_, err := r.q.exec(ctx,
		`INSERT INTO registrations (id, user_id, event_id, status, attendee_name, attendee_email, phone, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		reg.ID, reg.UserID, reg.EventID, reg.Status,
		details.AttendeeName, details.AttendeeEmail, details.Phone, reg.CreatedAt,
	)
	if err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return nil, model.ErrAlreadyRegistered
		case pgForeignKeyViolation, pgInvalidTextRepr:
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("insert registration: %w", err)
	}
	return reg, nil
}

// ListRegistrationsByEvent returns all registrations for a given event.
func (r *RegistrationRepository) ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := r.q.query(ctx,
		`SELECT id, user_id, event_id, status, attendee_name, attendee_email, phone, created_at
		 FROM registrations
		 WHERE event_id = $1
		 ORDER BY created_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		var reg model.Registration
		if err := rows.Scan(&reg.ID, &reg.UserID, &reg.EventID, &reg.Status,
			&reg.Details.AttendeeName, &reg.Details.AttendeeEmail, &reg.Details.Phone, &reg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// ListTicketViewsByUser joins the user's tickets with their events.
func (r *RegistrationRepository) ListTicketViewsByUser(ctx context.Context, userID string) ([]model.TicketView, error) {
	rows, err := r.q.query(ctx,
		`SELECT t.id, t.registration_id, t.code, t.status, t.price, t.ticket_type, t.issued_at,
		        e.id, e.title, e.location, e.venue, e.image_url, e.starts_at
		 FROM tickets t
		 JOIN registrations r ON r.id = t.registration_id
		 JOIN events e ON e.id = r.event_id
		 WHERE r.user_id = $1
		 ORDER BY t.issued_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var views []model.TicketView
	for rows.Next() {
		var (
			t model.Ticket
			e model.Event
		)
		if err := rows.Scan(&t.ID, &t.RegistrationID, &t.Code, &t.Status, &t.Price, &t.TicketType, &t.IssuedAt,
			&e.ID, &e.Title, &e.Location, &e.Venue, &e.ImageURL, &e.StartsAt); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		views = append(views, model.NewTicketView(t, e))
	}
	return views, rows.Err()
}
