// Package repository implements all database queries for the ticketing system.
// It uses pgx directly (no ORM) for transparency and performance.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	defaultLockTimeout = 2 * time.Second
	defaultMaxAttempts = 3
)

// Store bundles every PostgreSQL-backed collaborator of the services.
type Store struct {
	*TxManager
	*UserRepository
	*EventRepository
	*CapacityLedger
	*RegistrationRepository
	*TicketRepository
}

type storeOptions struct {
	lockTimeout time.Duration
	maxAttempts int
	logger      zerolog.Logger
	now         func() time.Time
	newCode     func() string
}

// Option configures NewStore.
type Option func(*storeOptions)

// WithLockTimeout bounds how long a registration waits on a row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(o *storeOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithMaxAttempts bounds whole-transaction retries on contention.
func WithMaxAttempts(n int) Option {
	return func(o *storeOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *storeOptions) {
		o.logger = logger
	}
}

// WithClock replaces the source of creation and issue timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithCodeGenerator replaces the ticket code generator.
func WithCodeGenerator(gen func() string) Option {
	return func(o *storeOptions) {
		if gen != nil {
			o.newCode = gen
		}
	}
}

// NewStore wires every repository onto one pool.
func NewStore(pool *pgxpool.Pool, opts ...Option) *Store {
	o := storeOptions{
		lockTimeout: defaultLockTimeout,
		maxAttempts: defaultMaxAttempts,
		logger:      zerolog.Nop(),
		now:         func() time.Time { return time.Now().UTC() },
		newCode:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	q := querier{pool: pool}
	return &Store{
		TxManager:              newTxManager(pool, o.lockTimeout, o.maxAttempts, o.logger),
		UserRepository:         &UserRepository{q: q},
		EventRepository:        &EventRepository{q: q, now: o.now},
		CapacityLedger:         &CapacityLedger{q: q},
		RegistrationRepository: &RegistrationRepository{q: q, now: o.now},
		TicketRepository:       &TicketRepository{q: q, now: o.now, newCode: o.newCode},
	}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.TxManager.pool.Ping(ctx)
}

// UserRepository reads users owned by the account system.
type UserRepository struct {
	q querier
}

// FindUserByID returns a single user or model.ErrNotFound.
func (r *UserRepository) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.q.queryRow(ctx,
		`SELECT id, email, name, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == pgInvalidTextRepr {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// EventRepository handles persistence for events.
type EventRepository struct {
	q   querier
	now func() time.Time
}

const eventColumns = `id, title, description, location, venue, image_url, starts_at,
		price, capacity, committed_count, created_at`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.Venue, &e.ImageURL,
		&e.StartsAt, &e.Price, &e.Capacity, &e.CommittedCount, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateEvent inserts a new event and returns it with a generated UUID.
func (r *EventRepository) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	event := &model.Event{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Venue:       req.Venue,
		ImageURL:    req.ImageURL,
		StartsAt:    req.StartsAt.UTC(),
		Price:       req.Price,
		Capacity:    req.Capacity,
		CreatedAt:   r.now(),
	}

	_, err := r.q.exec(ctx,
		`INSERT INTO events (id, title, description, location, venue, image_url, starts_at,
		                     price, capacity, committed_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10)`,
		event.ID, event.Title, event.Description, event.Location, event.Venue, event.ImageURL,
		event.StartsAt, event.Price, event.Capacity, event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

// ListEvents returns all events ordered by creation time descending.
func (r *EventRepository) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := r.q.query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// FindEventByID returns a single event or model.ErrNotFound.
func (r *EventRepository) FindEventByID(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.q.queryRow(ctx,
		`SELECT `+eventColumns+`
		 FROM events WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == pgInvalidTextRepr {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}
