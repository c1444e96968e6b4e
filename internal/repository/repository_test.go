package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindByIDNotFound(t *testing.T) {
	pool := setupPostgres(t)
	store := NewStore(pool)
	ctx := context.Background()

	_, err := store.FindUserByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = store.FindEventByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreateAndListEvents(t *testing.T) {
	pool := setupPostgres(t)
	store := NewStore(pool)
	ctx := context.Background()

	created, err := store.CreateEvent(ctx, model.CreateEventRequest{
		Title:    "Hack Night",
		Venue:    "Lab 2",
		StartsAt: time.Date(2026, 12, 1, 19, 0, 0, 0, time.UTC),
		Price:    decimal.RequireFromString("5.00"),
		Capacity: 40,
	})
	require.NoError(t, err)

	got, err := store.FindEventByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hack Night", got.Title)
	assert.Equal(t, 40, got.Capacity)
	assert.Equal(t, 0, got.CommittedCount)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("5")))

	events, err := store.ListEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestTryReserveSlot(t *testing.T) {
	pool := setupPostgres(t)
	store := NewStore(pool)
	ctx := context.Background()
	eventID := insertEvent(t, pool, 2, 1)

	res, err := store.TryReserveSlot(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.CommittedCount)
	assert.Equal(t, 2, res.Capacity)

	_, err = store.TryReserveSlot(ctx, eventID)
	assert.ErrorIs(t, err, model.ErrEventFull)
	assert.Equal(t, 2, committedCount(t, pool, eventID))

	_, err = store.TryReserveSlot(ctx, uuid.NewString())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestReleaseSlotNeverGoesNegative(t *testing.T) {
	pool := setupPostgres(t)
	store := NewStore(pool)
	ctx := context.Background()
	eventID := insertEvent(t, pool, 3, 1)

	require.NoError(t, store.ReleaseSlot(ctx, eventID))
	require.NoError(t, store.ReleaseSlot(ctx, eventID))
	assert.Equal(t, 0, committedCount(t, pool, eventID))

	assert.ErrorIs(t, store.ReleaseSlot(ctx, uuid.NewString()), model.ErrNotFound)
}

func TestCreateIfAbsentRejectsSecondConfirmed(t *testing.T) {
	pool := setupPostgres(t)
	store := NewStore(pool)
	ctx := context.Background()
	userID := insertUser(t, pool)
	eventID := insertEvent(t, pool, 5, 0)

	reg, err := store.CreateIfAbsent(ctx, userID, eventID, model.RegistrationDetails{AttendeeName: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, model.RegistrationConfirmed, reg.Status)

	_, err = store.CreateIfAbsent(ctx, userID, eventID, noDetails)
	assert.ErrorIs(t, err, model.ErrAlreadyRegistered)

	_, err = store.CreateIfAbsent(ctx, userID, uuid.NewString(), noDetails)
	assert.ErrorIs(t, err, model.ErrNotFound)

	regs, err := store.ListRegistrationsByEvent(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, "Ana", regs[0].Details.AttendeeName)
}

func TestIssueRetriesCodeCollision(t *testing.T) {
	pool := setupPostgres(t)
	codes := []string{"dup", "dup", "fresh"}
	store := NewStore(pool, WithCodeGenerator(func() string {
		c := codes[0]
		codes = codes[1:]
		return c
	}))
	ctx := context.Background()
	eventID := insertEvent(t, pool, 5, 0)

	var first, second *model.Ticket
	err := store.Atomically(ctx, eventID, func(ctx context.Context) error {
		regA, err := store.CreateIfAbsent(ctx, insertUser(t, pool), eventID, noDetails)
		if err != nil {
			return err
		}
		if first, err = store.Issue(ctx, *regA, decimal.Zero, model.DefaultTicketType); err != nil {
			return err
		}
		regB, err := store.CreateIfAbsent(ctx, insertUser(t, pool), eventID, noDetails)
		if err != nil {
			return err
		}
		second, err = store.Issue(ctx, *regB, decimal.Zero, model.DefaultTicketType)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "dup", first.Code)
	assert.Equal(t, "fresh", second.Code)
	assert.Equal(t, model.TicketActive, second.Status)
}

func TestAtomicallyRollsBackEveryWrite(t *testing.T) {
	pool := setupPostgres(t)
	store := NewStore(pool)
	ctx := context.Background()
	userID := insertUser(t, pool)
	eventID := insertEvent(t, pool, 5, 0)
	boom := errors.New("boom")

	err := store.Atomically(ctx, eventID, func(ctx context.Context) error {
		reg, err := store.CreateIfAbsent(ctx, userID, eventID, noDetails)
		require.NoError(t, err)
		_, err = store.TryReserveSlot(ctx, eventID)
		require.NoError(t, err)
		_, err = store.Issue(ctx, *reg, decimal.Zero, model.DefaultTicketType)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	regs, tickets := countRows(t, pool, eventID)
	assert.Zero(t, regs)
	assert.Zero(t, tickets)
	assert.Zero(t, committedCount(t, pool, eventID))
}

func TestAtomicallyReportsTransientConflictOnLockTimeout(t *testing.T) {
	pool := setupPostgres(t)
	store := NewStore(pool, WithLockTimeout(50*time.Millisecond), WithMaxAttempts(2))
	ctx := context.Background()
	eventID := insertEvent(t, pool, 5, 0)

	// Hold the event row lock from a separate transaction.
	blocker, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = blocker.Rollback(ctx) }()
	_, err = blocker.Exec(ctx, `SELECT 1 FROM events WHERE id = $1 FOR UPDATE`, eventID)
	require.NoError(t, err)

	err = store.Atomically(ctx, eventID, func(ctx context.Context) error {
		_, err := store.TryReserveSlot(ctx, eventID)
		return err
	})
	assert.ErrorIs(t, err, model.ErrTransientConflict)
	assert.Zero(t, committedCount(t, pool, eventID))
}

func TestDeletingRegistrationCascadesToTicket(t *testing.T) {
	pool := setupPostgres(t)
	store := NewStore(pool)
	ctx := context.Background()
	userID := insertUser(t, pool)
	eventID := insertEvent(t, pool, 5, 0)

	reg, err := store.CreateIfAbsent(ctx, userID, eventID, noDetails)
	require.NoError(t, err)
	_, err = store.Issue(ctx, *reg, decimal.Zero, model.DefaultTicketType)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	require.NoError(t, err)

	regs, tickets := countRows(t, pool, eventID)
	assert.Zero(t, regs)
	assert.Zero(t, tickets)
}
