package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"parkspot/internal/db"
	apperrors "parkspot/internal/errors"
)

// MemoryStore keeps locations, spots, reservations and the event log in process memory.
// It honours the same compare-and-swap contract as the postgres repositories.
type MemoryStore struct {
	mu           sync.Mutex
	locations    map[uuid.UUID]db.ParkingLocation
	spots        map[uuid.UUID]db.ParkingSpot
	reservations map[uuid.UUID]db.Reservation
	events       []db.ReservationEvent
	contacts     map[uuid.UUID]db.CustomerContact
	admins       map[string]Admin
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locations:    make(map[uuid.UUID]db.ParkingLocation),
		spots:        make(map[uuid.UUID]db.ParkingSpot),
		reservations: make(map[uuid.UUID]db.Reservation),
		contacts:     make(map[uuid.UUID]db.CustomerContact),
		admins:       make(map[string]Admin),
	}
}

func (m *MemoryStore) AddLocation(l db.ParkingLocation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[l.ID] = l
}

func (m *MemoryStore) AddContact(c db.CustomerContact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[c.CustomerID] = c
}

func (m *MemoryStore) GetContact(_ context.Context, customerID uuid.UUID) (*db.CustomerContact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[customerID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *MemoryStore) GetByEmail(_ context.Context, email string) (*Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.admins[email]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *MemoryStore) CreateNewUser(_ context.Context, email, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[email]; ok {
		return fmt.Errorf("admin %s already exists", email)
	}
	m.admins[email] = Admin{ID: len(m.admins) + 1, Email: email, PasswordHash: string(hashed)}
	return nil
}

func (m *MemoryStore) GetLocation(_ context.Context, id uuid.UUID) (*db.ParkingLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locations[id]
	if !ok {
		return nil, fmt.Errorf("location %s: %w", id, apperrors.ErrLocationNotFound)
	}
	return &l, nil
}

func (m *MemoryStore) ListLocations(_ context.Context) ([]db.ParkingLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.ParkingLocation, 0, len(m.locations))
	for _, l := range m.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) ListSpots(_ context.Context) ([]db.ParkingSpot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.ParkingSpot, 0, len(m.spots))
	for _, s := range m.spots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *MemoryStore) AddSpot(_ context.Context, spot *db.ParkingSpot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locations[spot.LocationID]; !ok {
		return fmt.Errorf("location %s: %w", spot.LocationID, apperrors.ErrLocationNotFound)
	}
	for _, s := range m.spots {
		if s.LocationID == spot.LocationID && s.Number == spot.Number {
			return fmt.Errorf("spot number %d already exists at location %s", spot.Number, spot.LocationID)
		}
	}
	m.spots[spot.ID] = *spot
	return nil
}

func (m *MemoryStore) UpdateSpot(_ context.Context, id uuid.UUID, size db.SizeClass, outOfService bool) (*db.ParkingSpot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.spots[id]
	if !ok {
		return nil, fmt.Errorf("spot %s: %w", id, apperrors.ErrSpotNotFound)
	}
	s.SizeClass = size
	s.OutOfService = outOfService
	m.spots[id] = s
	return &s, nil
}

func (m *MemoryStore) Create(_ context.Context, res *db.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.reservations[res.ID]; exists {
		return fmt.Errorf("reservation %s already exists", res.ID)
	}
	// mirrors the reservations_no_overlap exclusion constraint
	for _, other := range m.reservations {
		if other.SpotID == res.SpotID && !other.Status.IsTerminal() &&
			other.StartTime.Before(res.EndTime) && res.StartTime.Before(other.EndTime) {
			return fmt.Errorf("spot %s: %w", res.SpotID, apperrors.ErrConflict)
		}
	}
	m.reservations[res.ID] = *res
	m.appendEvent(res.ID, "", res.Status, res.CreatedAt, "created")
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*db.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.reservations[id]
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", id, apperrors.ErrReservationNotFound)
	}
	return &res, nil
}

func (m *MemoryStore) Transition(_ context.Context, t db.Transition) (*db.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.reservations[t.ID]
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", t.ID, apperrors.ErrReservationNotFound)
	}
	if res.Status != t.From {
		return nil, fmt.Errorf("reservation %s is %s, expected %s: %w", t.ID, res.Status, t.From, apperrors.ErrStaleStatus)
	}
	res.Status = t.To
	res.UpdatedAt = t.At
	if t.Fee != nil {
		res.Fee = *t.Fee
	}
	if t.Refund != nil {
		res.Refund = *t.Refund
	}
	if t.TransactionID != "" {
		res.TransactionID = t.TransactionID
	}
	m.reservations[t.ID] = res
	m.appendEvent(t.ID, t.From, t.To, t.At, t.Detail)
	return &res, nil
}

func (m *MemoryStore) appendEvent(id uuid.UUID, from, to db.ReservationStatus, at time.Time, detail string) {
	m.events = append(m.events, db.ReservationEvent{
		Seq:           int64(len(m.events) + 1),
		ReservationID: id,
		From:          from,
		To:            to,
		At:            at,
		Detail:        detail,
	})
}

func (m *MemoryStore) EventsSince(_ context.Context, afterSeq int64, limit int) ([]db.ReservationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if afterSeq < 0 {
		afterSeq = 0
	}
	var out []db.ReservationEvent
	for i := int(afterSeq); i < len(m.events) && len(out) < limit; i++ {
		out = append(out, m.events[i])
	}
	return out, nil
}

func (m *MemoryStore) filter(keep func(db.Reservation) bool, less func(a, b db.Reservation) bool, limit int) []db.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.Reservation
	for _, r := range m.reservations {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func byStart(a, b db.Reservation) bool { return a.StartTime.Before(b.StartTime) }

func byStartDesc(a, b db.Reservation) bool { return a.StartTime.After(b.StartTime) }

func (m *MemoryStore) ListNonTerminal(_ context.Context) ([]db.Reservation, error) {
	return m.filter(func(r db.Reservation) bool { return !r.Status.IsTerminal() }, byStart, 0), nil
}

func (m *MemoryStore) ListByCustomer(_ context.Context, customerID uuid.UUID) ([]db.Reservation, error) {
	return m.filter(func(r db.Reservation) bool { return r.CustomerID == customerID }, byStartDesc, 0), nil
}

func (m *MemoryStore) ListByLocation(_ context.Context, locationID uuid.UUID) ([]db.Reservation, error) {
	return m.filter(func(r db.Reservation) bool { return r.LocationID == locationID }, byStartDesc, 0), nil
}

func (m *MemoryStore) ListBySpot(_ context.Context, spotID uuid.UUID) ([]db.Reservation, error) {
	return m.filter(func(r db.Reservation) bool { return r.SpotID == spotID }, byStartDesc, 0), nil
}

func (m *MemoryStore) PendingPastDeadline(_ context.Context, now time.Time, locationID *uuid.UUID, limit int) ([]db.Reservation, error) {
	return m.filter(func(r db.Reservation) bool {
		if locationID != nil && r.LocationID != *locationID {
			return false
		}
		return r.Status == db.StatusPending && r.ConfirmationDeadline.Before(now)
	}, func(a, b db.Reservation) bool { return a.ConfirmationDeadline.Before(b.ConfirmationDeadline) }, limit), nil
}

func (m *MemoryStore) ConfirmedPastStart(_ context.Context, now time.Time, limit int) ([]db.Reservation, error) {
	return m.filter(func(r db.Reservation) bool {
		return r.Status == db.StatusConfirmed && !r.StartTime.After(now)
	}, byStart, limit), nil
}

func (m *MemoryStore) InUsePastEnd(_ context.Context, now time.Time, limit int) ([]db.Reservation, error) {
	return m.filter(func(r db.Reservation) bool {
		return (r.Status == db.StatusConfirmed || r.Status == db.StatusActive) && !r.EndTime.After(now)
	}, func(a, b db.Reservation) bool { return a.EndTime.Before(b.EndTime) }, limit), nil
}
