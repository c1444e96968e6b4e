package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newWorkflow(store *Store) *service.RegistrationService {
	return service.NewRegistrationService(service.Stores{
		Tx:            store,
		Users:         store,
		Events:        store,
		Ledger:        store,
		Registrations: store,
		Tickets:       store,
		TicketViews:   store,
	})
}

func TestWorkflowRegistersAndListsTicket(t *testing.T) {
	pool := setupPostgres(t)
	store := NewStore(pool)
	svc := newWorkflow(store)
	ctx := context.Background()
	userID := insertUser(t, pool)
	eventID := insertEvent(t, pool, 10, 3)

	view, err := svc.RegisterUserForEvent(ctx, userID, eventID, noDetails)
	require.NoError(t, err)
	assert.Equal(t, model.TicketActive, view.Status)
	assert.Equal(t, "Go Meetup", view.EventTitle)
	assert.Equal(t, "2026-11-20", view.EventDate)
	assert.Equal(t, "18:30:00", view.EventTime)
	assert.Equal(t, "12.5", view.Price.String())
	assert.Equal(t, model.DefaultTicketType, view.TicketType)
	assert.NotEmpty(t, view.Code)
	assert.Equal(t, 4, committedCount(t, pool, eventID))

	views, err := svc.ListTicketsForUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, view.Code, views[0].Code)
}

func TestWorkflowSecondAttemptIsAlreadyRegistered(t *testing.T) {
	pool := setupPostgres(t)
	svc := newWorkflow(NewStore(pool))
	ctx := context.Background()
	userID := insertUser(t, pool)
	eventID := insertEvent(t, pool, 10, 0)

	_, err := svc.RegisterUserForEvent(ctx, userID, eventID, noDetails)
	require.NoError(t, err)

	_, err = svc.RegisterUserForEvent(ctx, userID, eventID, noDetails)
	assert.ErrorIs(t, err, model.ErrAlreadyRegistered)

	regs, tickets := countRows(t, pool, eventID)
	assert.Equal(t, 1, regs)
	assert.Equal(t, 1, tickets)
	assert.Equal(t, 1, committedCount(t, pool, eventID))
}

func TestWorkflowFullEventLeavesNoRows(t *testing.T) {
	pool := setupPostgres(t)
	svc := newWorkflow(NewStore(pool))
	ctx := context.Background()
	eventID := insertEvent(t, pool, 2, 2)

	_, err := svc.RegisterUserForEvent(ctx, insertUser(t, pool), eventID, noDetails)
	assert.ErrorIs(t, err, model.ErrEventFull)

	regs, tickets := countRows(t, pool, eventID)
	assert.Zero(t, regs)
	assert.Zero(t, tickets)
	assert.Equal(t, 2, committedCount(t, pool, eventID))
}

func TestWorkflowLastSlotRace(t *testing.T) {
	pool := setupPostgres(t)
	svc := newWorkflow(NewStore(pool))
	eventID := insertEvent(t, pool, 1, 0)
	users := []string{insertUser(t, pool), insertUser(t, pool)}

	var ok, full atomic.Int32
	var g errgroup.Group
	for _, userID := range users {
		g.Go(func() error {
			_, err := svc.RegisterUserForEvent(context.Background(), userID, eventID, noDetails)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, model.ErrEventFull):
				full.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(1), full.Load())
	assert.Equal(t, 1, committedCount(t, pool, eventID))
	regs, tickets := countRows(t, pool, eventID)
	assert.Equal(t, 1, regs)
	assert.Equal(t, 1, tickets)
}

func TestWorkflowNeverOversells(t *testing.T) {
	pool := setupPostgres(t)
	svc := newWorkflow(NewStore(pool))
	const capacity, attempts = 5, 24
	eventID := insertEvent(t, pool, capacity, 0)

	users := make([]string, attempts)
	for i := range users {
		users[i] = insertUser(t, pool)
	}

	var ok, full atomic.Int32
	var g errgroup.Group
	for _, userID := range users {
		g.Go(func() error {
			_, err := svc.RegisterUserForEvent(context.Background(), userID, eventID, noDetails)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, model.ErrEventFull):
				full.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(capacity), ok.Load())
	assert.Equal(t, int32(attempts-capacity), full.Load())
	assert.Equal(t, capacity, committedCount(t, pool, eventID))
	regs, tickets := countRows(t, pool, eventID)
	assert.Equal(t, capacity, regs)
	assert.Equal(t, capacity, tickets)
}

func TestWorkflowConcurrentDuplicatePair(t *testing.T) {
	pool := setupPostgres(t)
	svc := newWorkflow(NewStore(pool))
	userID := insertUser(t, pool)
	eventID := insertEvent(t, pool, 10, 0)

	var ok, dup atomic.Int32
	var g errgroup.Group
	for range 4 {
		g.Go(func() error {
			_, err := svc.RegisterUserForEvent(context.Background(), userID, eventID, noDetails)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, model.ErrAlreadyRegistered):
				dup.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(3), dup.Load())
	assert.Equal(t, 1, committedCount(t, pool, eventID))
}
