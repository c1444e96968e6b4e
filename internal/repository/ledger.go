package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/jackc/pgx/v5"
)

// CapacityLedger owns events.committed_count.
//
// A naive read-then-write (SELECT committed_count, compare, UPDATE) lets two
// transactions read the same count and both admit the last place. The
// reservation is instead one conditional UPDATE: the row lock it takes makes
// a concurrent reserver wait, and under READ COMMITTED the waiter re-checks
// the WHERE clause against the committed row before updating it.
type CapacityLedger struct {
	q querier
}

// TryReserveSlot claims one unit of capacity or fails with model.ErrEventFull.
func (l *CapacityLedger) TryReserveSlot(ctx context.Context, eventID string) (model.Reservation, error) {
	res := model.Reservation{EventID: eventID}
	err := l.q.queryRow(ctx,
		`UPDATE events
		 SET committed_count = committed_count + 1
		 WHERE id = $1 AND committed_count < capacity
		 RETURNING committed_count, capacity`,
		eventID,
	).Scan(&res.CommittedCount, &res.Capacity)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if pgCode(err) == pgInvalidTextRepr {
			return model.Reservation{}, model.ErrNotFound
		}
		return model.Reservation{}, fmt.Errorf("reserve slot: %w", err)
	}

	exists, err := l.eventExists(ctx, eventID)
	if err != nil {
		return model.Reservation{}, err
	}
	if !exists {
		return model.Reservation{}, model.ErrNotFound
	}
	return model.Reservation{}, model.ErrEventFull
}

// ReleaseSlot gives one unit of capacity back. The count never drops below zero.
func (l *CapacityLedger) ReleaseSlot(ctx context.Context, eventID string) error {
	tag, err := l.q.exec(ctx,
		`UPDATE events
		 SET committed_count = committed_count - 1
		 WHERE id = $1 AND committed_count > 0`,
		eventID,
	)
	if err != nil {
		if pgCode(err) == pgInvalidTextRepr {
			return model.ErrNotFound
		}
		return fmt.Errorf("release slot: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	exists, err := l.eventExists(ctx, eventID)
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrNotFound
	}
	return nil
}

func (l *CapacityLedger) eventExists(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	if err := l.q.queryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`,
		eventID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check event: %w", err)
	}
	return exists, nil
}
