// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the storage layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/go-playground/validator/v10"
)

// EventStore is the event catalogue consumed by EventService.
type EventStore interface {
	EventFinder
	CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
}

// EventService orchestrates event-related business operations.
type EventService struct {
	events   EventStore
	validate *validator.Validate
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(events EventStore) *EventService {
	return &EventService{events: events, validate: validator.New()}
}

// CreateEvent validates the request and delegates to the store.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price cannot be negative", model.ErrValidation)
	}
	event, err := s.events.CreateEvent(ctx, req)
	if err != nil {
		return nil, classify(err)
	}
	return event, nil
}

// ListEvents returns all events.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	events, err := s.events.ListEvents(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return events, nil
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: event id is required", model.ErrValidation)
	}
	event, err := s.events.FindEventByID(ctx, id)
	if err != nil {
		return nil, classify(err)
	}
	return event, nil
}

// ListRegistrations returns all registrations for an event.
func (s *EventService) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, model.ErrValidation) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	regs, err := s.events.ListRegistrationsByEvent(ctx, eventID)
	if err != nil {
		return nil, classify(err)
	}
	return regs, nil
}
