// Package memstore is an in-process implementation of the registration
// stores. Registrations for one event are serialised by a per-event lock
// acquired with a bounded wait; uniqueness of (user, event) is enforced by an
// index map.
//
// Writes made inside Atomically are staged in a per-unit overlay. Reads made
// with the unit's context see the overlay; every other reader sees only
// committed rows. The overlay is applied in one step when the unit commits
// and thrown away when it fails or the caller goes away first.
//
// It is only correct when every registration for an event is served by the
// same process.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultLockWait = 2 * time.Second
	maxCodeAttempts = 5
)

var (
	errCodeSpaceExhausted = errors.New("could not generate a unique ticket code")

	// ErrCrossEventUnit is returned when Atomically is nested for a different
	// event than the unit already open on the context.
	ErrCrossEventUnit = errors.New("nested unit for a different event")
)

type pairKey struct {
	userID  string
	eventID string
}

// Store holds users, events, registrations and tickets in memory.
type Store struct {
	mu            sync.Mutex
	users         map[string]model.User
	events        map[string]model.Event
	registrations map[string]model.Registration
	confirmed     map[pairKey]string
	tickets       map[string]model.Ticket
	ticketByReg   map[string]string
	// codes holds committed codes and codes reserved by open units, so two
	// units on different events never hand out the same code.
	codes      map[string]struct{}
	eventLocks map[string]chan struct{}

	lockWait time.Duration
	now      func() time.Time
	newCode  func() string
}

// Option configures a Store.
type Option func(*Store)

// WithLockWait bounds how long Atomically waits for an event's lock.
func WithLockWait(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockWait = d
		}
	}
}

// WithClock replaces the source of creation and issue timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCodeGenerator replaces the ticket code generator.
func WithCodeGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newCode = gen
		}
	}
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		users:         make(map[string]model.User),
		events:        make(map[string]model.Event),
		registrations: make(map[string]model.Registration),
		confirmed:     make(map[pairKey]string),
		tickets:       make(map[string]model.Ticket),
		ticketByReg:   make(map[string]string),
		codes:         make(map[string]struct{}),
		eventLocks:    make(map[string]chan struct{}),
		lockWait:      defaultLockWait,
		now:           func() time.Time { return time.Now().UTC() },
		newCode:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PutUser inserts or replaces a user. Users are owned by the account system;
// this is how an embedding process makes them visible.
func (s *Store) PutUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.users[u.ID] = u
}

// PutEvent inserts or replaces an event as-is, including its committed count.
func (s *Store) PutEvent(e model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.events[e.ID] = e
}

// ─── Units of work ────────────────────────────────────────────────────────────

type unitKey struct{}

// unit is the overlay of one open Atomically call. Its maps are only touched
// with Store.mu held.
type unit struct {
	eventID       string
	events        map[string]model.Event
	registrations map[string]model.Registration
	confirmed     map[pairKey]string
	tickets       map[string]model.Ticket
	ticketByReg   map[string]string
	codes         []string
}

func newUnit(eventID string) *unit {
	return &unit{
		eventID:       eventID,
		events:        make(map[string]model.Event),
		registrations: make(map[string]model.Registration),
		confirmed:     make(map[pairKey]string),
		tickets:       make(map[string]model.Ticket),
		ticketByReg:   make(map[string]string),
	}
}

func unitFrom(ctx context.Context) *unit {
	u, _ := ctx.Value(unitKey{}).(*unit)
	return u
}

// commitLocked publishes the overlay.
func (s *Store) commitLocked(u *unit) {
	for id, e := range u.events {
		s.events[id] = e
	}
	for id, r := range u.registrations {
		s.registrations[id] = r
	}
	for k, id := range u.confirmed {
		s.confirmed[k] = id
	}
	for id, t := range u.tickets {
		s.tickets[id] = t
	}
	for reg, id := range u.ticketByReg {
		s.ticketByReg[reg] = id
	}
}

// discardLocked releases the codes the unit reserved.
func (s *Store) discardLocked(u *unit) {
	for _, code := range u.codes {
		delete(s.codes, code)
	}
}

func (s *Store) eventLock(eventID string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.eventLocks[eventID]
	if !ok {
		lock = make(chan struct{}, 1)
		s.eventLocks[eventID] = lock
	}
	return lock
}

// Atomically runs fn while holding eventID's lock. A nested call for the same
// event joins the outer unit; a nested call for another event fails with
// ErrCrossEventUnit.
func (s *Store) Atomically(ctx context.Context, eventID string, fn func(ctx context.Context) error) error {
	if outer := unitFrom(ctx); outer != nil {
		if outer.eventID != eventID {
			return fmt.Errorf("%w: %s inside %s", ErrCrossEventUnit, eventID, outer.eventID)
		}
		return fn(ctx)
	}

	lock := s.eventLock(eventID)
	timer := time.NewTimer(s.lockWait)
	defer timer.Stop()
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		metrics.TransactionRetries.WithLabelValues("lock_timeout").Inc()
		return fmt.Errorf("wait for event %s: %w", eventID, model.ErrTransientConflict)
	}
	defer func() { <-lock }()

	u := newUnit(eventID)
	committed := false
	defer func() {
		if !committed {
			s.mu.Lock()
			s.discardLocked(u)
			s.mu.Unlock()
		}
	}()

	if err := fn(context.WithValue(ctx, unitKey{}, u)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The caller may have gone away while fn ran; nothing is published then.
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commitLocked(u)
	committed = true
	return nil
}

// ─── Read-through helpers (Store.mu held) ─────────────────────────────────────

func (s *Store) eventLocked(u *unit, id string) (model.Event, bool) {
	if u != nil {
		if e, ok := u.events[id]; ok {
			return e, true
		}
	}
	e, ok := s.events[id]
	return e, ok
}

func (s *Store) registrationLocked(u *unit, id string) (model.Registration, bool) {
	if u != nil {
		if r, ok := u.registrations[id]; ok {
			return r, true
		}
	}
	r, ok := s.registrations[id]
	return r, ok
}

func (s *Store) confirmedLocked(u *unit, key pairKey) bool {
	if u != nil {
		if _, ok := u.confirmed[key]; ok {
			return true
		}
	}
	_, ok := s.confirmed[key]
	return ok
}

func (s *Store) ticketOfLocked(u *unit, regID string) (model.Ticket, bool) {
	if u != nil {
		if id, ok := u.ticketByReg[regID]; ok {
			return u.tickets[id], true
		}
	}
	id, ok := s.ticketByReg[regID]
	if !ok {
		return model.Ticket{}, false
	}
	return s.tickets[id], true
}

// eachRegistrationLocked visits committed registrations and the unit's own,
// the latter taking precedence.
func (s *Store) eachRegistrationLocked(u *unit, visit func(model.Registration)) {
	for id, r := range s.registrations {
		if u != nil {
			if _, shadowed := u.registrations[id]; shadowed {
				continue
			}
		}
		visit(r)
	}
	if u != nil {
		for _, r := range u.registrations {
			visit(r)
		}
	}
}

func (s *Store) putEventLocked(u *unit, e model.Event) {
	if u != nil {
		u.events[e.ID] = e
		return
	}
	s.events[e.ID] = e
}

// ─── Users & events ───────────────────────────────────────────────────────────

// FindUserByID returns a single user or model.ErrNotFound.
func (s *Store) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &u, nil
}

// FindEventByID returns a single event or model.ErrNotFound. Inside a unit
// it sees the unit's own uncommitted count.
func (s *Store) FindEventByID(ctx context.Context, id string) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.eventLocked(unitFrom(ctx), id)
	if !ok {
		return nil, model.ErrNotFound
	}
	return &e, nil
}

// CreateEvent stores a new event with a generated id.
func (s *Store) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	e := model.Event{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Venue:       req.Venue,
		ImageURL:    req.ImageURL,
		StartsAt:    req.StartsAt.UTC(),
		Price:       req.Price,
		Capacity:    req.Capacity,
		CreatedAt:   s.now(),
	}
	s.mu.Lock()
	s.putEventLocked(unitFrom(ctx), e)
	s.mu.Unlock()
	return &e, nil
}

// ListEvents returns all events ordered by creation time descending.
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	u := unitFrom(ctx)
	s.mu.Lock()
	events := make([]model.Event, 0, len(s.events))
	for id := range s.events {
		e, _ := s.eventLocked(u, id)
		events = append(events, e)
	}
	if u != nil {
		for id, e := range u.events {
			if _, committed := s.events[id]; !committed {
				events = append(events, e)
			}
		}
	}
	s.mu.Unlock()

	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return events, nil
}

// ─── Capacity ledger ──────────────────────────────────────────────────────────

// TryReserveSlot claims one unit of capacity or fails with model.ErrEventFull.
func (s *Store) TryReserveSlot(ctx context.Context, eventID string) (model.Reservation, error) {
	u := unitFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.eventLocked(u, eventID)
	if !ok {
		return model.Reservation{}, model.ErrNotFound
	}
	if e.CommittedCount >= e.Capacity {
		return model.Reservation{}, model.ErrEventFull
	}
	e.CommittedCount++
	s.putEventLocked(u, e)
	return model.Reservation{EventID: eventID, CommittedCount: e.CommittedCount, Capacity: e.Capacity}, nil
}

// ReleaseSlot gives one unit of capacity back. The count never drops below zero.
func (s *Store) ReleaseSlot(ctx context.Context, eventID string) error {
	u := unitFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.eventLocked(u, eventID)
	if !ok {
		return model.ErrNotFound
	}
	if e.CommittedCount > 0 {
		e.CommittedCount--
		s.putEventLocked(u, e)
	}
	return nil
}

// ─── Registrations ────────────────────────────────────────────────────────────

// CreateIfAbsent stores a confirmed registration or returns
// model.ErrAlreadyRegistered.
func (s *Store) CreateIfAbsent(ctx context.Context, userID, eventID string, details model.RegistrationDetails) (*model.Registration, error) {
	u := unitFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, model.ErrNotFound
	}
	if _, ok := s.eventLocked(u, eventID); !ok {
		return nil, model.ErrNotFound
	}
	key := pairKey{userID: userID, eventID: eventID}
	if s.confirmedLocked(u, key) {
		return nil, model.ErrAlreadyRegistered
	}

	reg := model.Registration{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventID:   eventID,
		Status:    model.RegistrationConfirmed,
		Details:   details,
		CreatedAt: s.now(),
	}
	if u != nil {
		u.registrations[reg.ID] = reg
		u.confirmed[key] = reg.ID
	} else {
		s.registrations[reg.ID] = reg
		s.confirmed[key] = reg.ID
	}
	return &reg, nil
}

// ListRegistrationsByEvent returns the event's registrations, oldest first.
func (s *Store) ListRegistrationsByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	s.mu.Lock()
	var regs []model.Registration
	s.eachRegistrationLocked(unitFrom(ctx), func(r model.Registration) {
		if r.EventID == eventID {
			regs = append(regs, r)
		}
	})
	s.mu.Unlock()

	sort.Slice(regs, func(i, j int) bool {
		return regs[i].CreatedAt.Before(regs[j].CreatedAt)
	})
	return regs, nil
}

// ─── Tickets ──────────────────────────────────────────────────────────────────

// Issue stores an active ticket bound to reg with a fresh unique code.
func (s *Store) Issue(ctx context.Context, reg model.Registration, price decimal.Decimal, ticketType string) (*model.Ticket, error) {
	u := unitFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registrationLocked(u, reg.ID); !ok {
		return nil, model.ErrNotFound
	}
	if _, ok := s.ticketOfLocked(u, reg.ID); ok {
		return nil, fmt.Errorf("registration %s already has a ticket", reg.ID)
	}

	code, err := s.reserveCodeLocked()
	if err != nil {
		return nil, err
	}
	t := model.Ticket{
		ID:             uuid.NewString(),
		RegistrationID: reg.ID,
		Code:           code,
		Status:         model.TicketActive,
		Price:          price,
		TicketType:     ticketType,
		IssuedAt:       s.now(),
	}
	if u != nil {
		u.tickets[t.ID] = t
		u.ticketByReg[reg.ID] = t.ID
		u.codes = append(u.codes, code)
	} else {
		s.tickets[t.ID] = t
		s.ticketByReg[reg.ID] = t.ID
	}
	return &t, nil
}

func (s *Store) reserveCodeLocked() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := strings.TrimSpace(s.newCode())
		if code == "" {
			continue
		}
		if _, taken := s.codes[code]; !taken {
			s.codes[code] = struct{}{}
			return code, nil
		}
		metrics.TicketCodeCollisions.Inc()
	}
	return "", errCodeSpaceExhausted
}

// ListTicketViewsByUser returns the user's tickets, newest first.
func (s *Store) ListTicketViewsByUser(ctx context.Context, userID string) ([]model.TicketView, error) {
	u := unitFrom(ctx)
	s.mu.Lock()
	var views []model.TicketView
	s.eachRegistrationLocked(u, func(r model.Registration) {
		if r.UserID != userID {
			return
		}
		t, ok := s.ticketOfLocked(u, r.ID)
		if !ok {
			return
		}
		e, _ := s.eventLocked(u, r.EventID)
		views = append(views, model.NewTicketView(t, e))
	})
	s.mu.Unlock()

	sort.Slice(views, func(i, j int) bool {
		return views[i].PurchaseDate.After(views[j].PurchaseDate)
	})
	return views, nil
}

// ─── Inspection ───────────────────────────────────────────────────────────────

// Snapshot is a point-in-time copy of the store's committed rows.
type Snapshot struct {
	Events        map[string]model.Event
	Registrations map[string]model.Registration
	Tickets       map[string]model.Ticket
}

// Snapshot returns a consistent copy of committed events, registrations and
// tickets. Open units are not visible.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Events:        make(map[string]model.Event, len(s.events)),
		Registrations: make(map[string]model.Registration, len(s.registrations)),
		Tickets:       make(map[string]model.Ticket, len(s.tickets)),
	}
	for k, v := range s.events {
		snap.Events[k] = v
	}
	for k, v := range s.registrations {
		snap.Registrations[k] = v
	}
	for k, v := range s.tickets {
		snap.Tickets[k] = v
	}
	return snap
}
