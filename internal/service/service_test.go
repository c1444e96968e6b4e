package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/memstore"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	valid := model.CreateEventRequest{
		Title:    "  Startup Pitch  ",
		StartsAt: time.Date(2026, 12, 5, 14, 0, 0, 0, time.UTC),
		Price:    decimal.RequireFromString("10"),
		Capacity: 50,
	}

	t.Run("creates and reads back", func(t *testing.T) {
		svc := service.NewEventService(memstore.New())

		created, err := svc.CreateEvent(ctx, valid)
		require.NoError(t, err)
		assert.Equal(t, "Startup Pitch", created.Title)
		assert.Zero(t, created.CommittedCount)

		got, err := svc.GetEvent(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)

		events, err := svc.ListEvents(ctx)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("rejects invalid requests", func(t *testing.T) {
		svc := service.NewEventService(memstore.New())

		bad := []func(r *model.CreateEventRequest){
			func(r *model.CreateEventRequest) { r.Title = "   " },
			func(r *model.CreateEventRequest) { r.Capacity = 0 },
			func(r *model.CreateEventRequest) { r.Capacity = 100_001 },
			func(r *model.CreateEventRequest) { r.Price = decimal.RequireFromString("-1") },
			func(r *model.CreateEventRequest) { r.StartsAt = time.Time{} },
		}
		for _, mutate := range bad {
			req := valid
			mutate(&req)
			_, err := svc.CreateEvent(ctx, req)
			assert.ErrorIs(t, err, model.ErrValidation)
		}
	})

	t.Run("registrations of unknown event", func(t *testing.T) {
		svc := service.NewEventService(memstore.New())

		_, err := svc.ListRegistrations(ctx, "missing")
		assert.ErrorIs(t, err, model.ErrNotFound)

		_, err = svc.ListRegistrations(ctx, "")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}
