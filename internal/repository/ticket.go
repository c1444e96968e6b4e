package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxCodeAttempts = 5

var errCodeSpaceExhausted = errors.New("could not generate a unique ticket code")

// TicketRepository issues tickets.
type TicketRepository struct {
	q       querier
	now     func() time.Time
	newCode func() string
}

// Issue persists an active ticket bound to reg. A code collision is retried
// with a fresh code inside a savepoint so the enclosing transaction survives.
func (r *TicketRepository) Issue(ctx context.Context, reg model.Registration, price decimal.Decimal, ticketType string) (*model.Ticket, error) {
	t := &model.Ticket{
		ID:             uuid.NewString(),
		RegistrationID: reg.ID,
		Status:         model.TicketActive,
		Price:          price,
		TicketType:     ticketType,
		IssuedAt:       r.now(),
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		t.Code = r.newCode()
		err := r.q.execSavepoint(ctx,
			`INSERT INTO tickets (id, registration_id, code, status, price, ticket_type, issued_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			t.ID, t.RegistrationID, t.Code, t.Status, t.Price, t.TicketType, t.IssuedAt,
		)
		switch {
		case err == nil:
			return t, nil
		case isUniqueViolation(err, "tickets_code_key"):
			metrics.TicketCodeCollisions.Inc()
			continue
		case isUniqueViolation(err, "tickets_registration_id_key"):
			return nil, fmt.Errorf("registration %s already has a ticket", reg.ID)
		case pgCode(err) == pgForeignKeyViolation:
			return nil, model.ErrNotFound
		default:
			return nil, fmt.Errorf("insert ticket: %w", err)
		}
	}
	return nil, errCodeSpaceExhausted
}
