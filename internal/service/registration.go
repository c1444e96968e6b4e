package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// UserFinder resolves users by id.
type UserFinder interface {
	FindUserByID(ctx context.Context, id string) (*model.User, error)
}

// EventFinder resolves events by id.
type EventFinder interface {
	FindEventByID(ctx context.Context, id string) (*model.Event, error)
}

// CapacityLedger admits registrations against an event's capacity.
// TryReserveSlot must be atomic: concurrent callers can never push the
// committed count past capacity.
type CapacityLedger interface {
	TryReserveSlot(ctx context.Context, eventID string) (model.Reservation, error)
	ReleaseSlot(ctx context.Context, eventID string) error
}

// RegistrationStore persists registrations. CreateIfAbsent returns
// model.ErrAlreadyRegistered when a confirmed registration exists for the pair.
type RegistrationStore interface {
	CreateIfAbsent(ctx context.Context, userID, eventID string, details model.RegistrationDetails) (*model.Registration, error)
}

// TicketIssuer creates the ticket bound to a registration.
type TicketIssuer interface {
	Issue(ctx context.Context, reg model.Registration, price decimal.Decimal, ticketType string) (*model.Ticket, error)
}

// TicketViewLister reads ticket projections for a user.
type TicketViewLister interface {
	ListTicketViewsByUser(ctx context.Context, userID string) ([]model.TicketView, error)
}

// Transactor runs fn as one atomic unit scoped to an event. Every write made
// through ctx inside fn is committed together or discarded together.
type Transactor interface {
	Atomically(ctx context.Context, eventID string, fn func(ctx context.Context) error) error
}

// Stores groups the collaborators of the registration workflow.
type Stores struct {
	Tx            Transactor
	Users         UserFinder
	Events        EventFinder
	Ledger        CapacityLedger
	Registrations RegistrationStore
	Tickets       TicketIssuer
	TicketViews   TicketViewLister
}

// RegistrationService is the registration workflow: it admits a user to an
// event and issues the ticket in one atomic step.
type RegistrationService struct {
	stores     Stores
	validate   *validator.Validate
	logger     zerolog.Logger
	ticketType string
}

// RegistrationOption configures NewRegistrationService.
type RegistrationOption func(*RegistrationService)

// WithLogger sets the logger that records one line per registration attempt.
func WithLogger(logger zerolog.Logger) RegistrationOption {
	return func(s *RegistrationService) {
		s.logger = logger
	}
}

// WithDefaultTicketType overrides the ticket type stamped on new tickets.
func WithDefaultTicketType(t string) RegistrationOption {
	return func(s *RegistrationService) {
		if t = strings.TrimSpace(t); t != "" {
			s.ticketType = t
		}
	}
}

// NewRegistrationService constructs the workflow over stores.
func NewRegistrationService(stores Stores, opts ...RegistrationOption) *RegistrationService {
	s := &RegistrationService{
		stores:     stores,
		validate:   validator.New(),
		logger:     zerolog.Nop(),
		ticketType: model.DefaultTicketType,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterUserForEvent registers userID for eventID and returns the issued ticket.
//
// The uniqueness check runs before the capacity check, so a user who is
// already registered gets ErrAlreadyRegistered even when the event is also
// full. Any failure discards every write made by the call.
func (s *RegistrationService) RegisterUserForEvent(ctx context.Context, userID, eventID string, details model.RegistrationDetails) (*model.TicketView, error) {
	start := time.Now()
	userID = strings.TrimSpace(userID)
	eventID = strings.TrimSpace(eventID)

	view, err := s.register(ctx, userID, eventID, details)
	err = classify(err)
	outcome := outcomeOf(err)
	metrics.RegistrationAttempts.WithLabelValues(outcome).Inc()
	metrics.RegistrationDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	level := zerolog.DebugLevel
	switch outcome {
	case metrics.OutcomeSuccess:
		level = zerolog.InfoLevel
	case metrics.OutcomeTransient:
		level = zerolog.WarnLevel
	case metrics.OutcomeStorage:
		level = zerolog.ErrorLevel
	}
	logEvent := s.logger.WithLevel(level).
		Str("user_id", userID).
		Str("event_id", eventID).
		Str("outcome", outcome).
		Dur("duration", time.Since(start))
	if err != nil {
		logEvent.Err(err).Msg("registration failed")
		return nil, err
	}
	logEvent.Str("ticket_id", view.ID).Msg("registration confirmed")
	return view, nil
}

func (s *RegistrationService) register(ctx context.Context, userID, eventID string, details model.RegistrationDetails) (*model.TicketView, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", model.ErrValidation)
	}
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id is required", model.ErrValidation)
	}
	details = normalizeDetails(details)
	if err := s.validate.Struct(details); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}

	var view model.TicketView
	err := s.stores.Tx.Atomically(ctx, eventID, func(ctx context.Context) error {
		if _, err := s.stores.Users.FindUserByID(ctx, userID); err != nil {
			return err
		}
		event, err := s.stores.Events.FindEventByID(ctx, eventID)
		if err != nil {
			return err
		}

		reg, err := s.stores.Registrations.CreateIfAbsent(ctx, userID, eventID, details)
		if err != nil {
			return err
		}

		if _, err := s.stores.Ledger.TryReserveSlot(ctx, eventID); err != nil {
			return err
		}

		ticket, err := s.stores.Tickets.Issue(ctx, *reg, event.Price, s.ticketType)
		if err != nil {
			return err
		}

		view = model.NewTicketView(*ticket, *event)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// ListTicketsForUser returns ticket views for every registration of userID.
func (s *RegistrationService) ListTicketsForUser(ctx context.Context, userID string) ([]model.TicketView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", model.ErrValidation)
	}
	if _, err := s.stores.Users.FindUserByID(ctx, userID); err != nil {
		return nil, classify(err)
	}
	views, err := s.stores.TicketViews.ListTicketViewsByUser(ctx, userID)
	if err != nil {
		return nil, classify(err)
	}
	return views, nil
}

func normalizeDetails(d model.RegistrationDetails) model.RegistrationDetails {
	d.AttendeeName = strings.TrimSpace(d.AttendeeName)
	d.AttendeeEmail = strings.ToLower(strings.TrimSpace(d.AttendeeEmail))
	d.Phone = strings.TrimSpace(d.Phone)
	return d
}

// classify leaves domain errors and caller cancellation untouched and tags
// everything else as a storage failure.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrAlreadyRegistered),
		errors.Is(err, model.ErrEventFull),
		errors.Is(err, model.ErrTransientConflict),
		errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrStorageFailure),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", model.ErrStorageFailure, err)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, model.ErrAlreadyRegistered):
		return metrics.OutcomeAlreadyRegistered
	case errors.Is(err, model.ErrEventFull):
		return metrics.OutcomeEventFull
	case errors.Is(err, model.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, model.ErrValidation):
		return metrics.OutcomeInvalid
	case errors.Is(err, model.ErrTransientConflict):
		return metrics.OutcomeTransient
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomeStorage
	}
}
