package service

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"parkspot/internal/db"
	apperrors "parkspot/internal/errors"
)

type claim struct {
	reservationID uuid.UUID
	start, end    time.Time
}

// spotClaims is one spot's interval set. Claims never overlap, so ordering by
// start also orders them by end.
type spotClaims struct {
	mu     sync.Mutex
	claims []claim
}

// overlapping returns the index of a claim intersecting [start, end), or -1.
// Caller holds sc.mu.
func (sc *spotClaims) overlapping(start, end time.Time) int {
	i := sort.Search(len(sc.claims), func(i int) bool { return sc.claims[i].end.After(start) })
	if i < len(sc.claims) && sc.claims[i].start.Before(end) {
		return i
	}
	return -1
}

// AvailabilityIndex tracks, per spot, the half-open intervals held by non-terminal
// reservations. It is a cache over the reservation store and can be rebuilt from it.
type AvailabilityIndex struct {
	inventory *SpotInventory

	mu    sync.Mutex
	spots map[uuid.UUID]*spotClaims
}

func NewAvailabilityIndex(inventory *SpotInventory) *AvailabilityIndex {
	return &AvailabilityIndex{
		inventory: inventory,
		spots:     make(map[uuid.UUID]*spotClaims),
	}
}

func (ix *AvailabilityIndex) entry(spotID uuid.UUID) *spotClaims {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	sc, ok := ix.spots[spotID]
	if !ok {
		sc = &spotClaims{}
		ix.spots[spotID] = sc
	}
	return sc
}

// QueryFree lists in-service spots of the location with no claim intersecting
// [start, end), in ascending spot number.
func (ix *AvailabilityIndex) QueryFree(locationID uuid.UUID, start, end time.Time) []uuid.UUID {
	var free []uuid.UUID
	for _, spot := range ix.inventory.InService(locationID) {
		sc := ix.entry(spot.ID)
		sc.mu.Lock()
		busy := sc.overlapping(start, end) >= 0
		sc.mu.Unlock()
		if !busy {
			free = append(free, spot.ID)
		}
	}
	return free
}

func (ix *AvailabilityIndex) FreeCount(locationID uuid.UUID, start, end time.Time) int {
	return len(ix.QueryFree(locationID, start, end))
}

// ReserveInterval claims [start, end) on a spot for a reservation. Concurrent
// overlapping claims on the same spot resolve with exactly one winner; losers get
// ErrConflict. Re-claiming the identical interval for the same reservation succeeds.
func (ix *AvailabilityIndex) ReserveInterval(spotID, reservationID uuid.UUID, start, end time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("empty interval: %w", apperrors.ErrInvalidTimeWindow)
	}
	sc := ix.entry(spotID)
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if i := sc.overlapping(start, end); i >= 0 {
		held := sc.claims[i]
		if held.reservationID == reservationID && held.start.Equal(start) && held.end.Equal(end) {
			return nil
		}
		return fmt.Errorf("spot %s held by %s: %w", spotID, held.reservationID, apperrors.ErrConflict)
	}

	i := sort.Search(len(sc.claims), func(i int) bool { return !sc.claims[i].start.Before(start) })
	sc.claims = append(sc.claims, claim{})
	copy(sc.claims[i+1:], sc.claims[i:])
	sc.claims[i] = claim{reservationID: reservationID, start: start, end: end}
	return nil
}

// ReleaseInterval drops the reservation's claim. Releasing twice is a no-op.
func (ix *AvailabilityIndex) ReleaseInterval(spotID, reservationID uuid.UUID) {
	sc := ix.entry(spotID)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	for i, c := range sc.claims {
		if c.reservationID == reservationID {
			sc.claims = append(sc.claims[:i], sc.claims[i+1:]...)
			return
		}
	}
}

// Occupied reports whether some claim covers the instant at.
func (ix *AvailabilityIndex) Occupied(spotID uuid.UUID, at time.Time) bool {
	sc := ix.entry(spotID)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.overlapping(at, at.Add(time.Nanosecond)) >= 0
}

// Load discards every claim and replays the given non-terminal reservations.
func (ix *AvailabilityIndex) Load(reservations []db.Reservation) {
	ix.mu.Lock()
	ix.spots = make(map[uuid.UUID]*spotClaims)
	ix.mu.Unlock()

	for _, r := range reservations {
		if r.Status.IsTerminal() {
			continue
		}
		if err := ix.ReserveInterval(r.SpotID, r.ID, r.StartTime, r.EndTime); err != nil {
			log.Printf("availability: skipping reservation %s on rebuild: %v", r.ID, err)
		}
	}
}

// Held returns every claim as reservation id -> spot id.
func (ix *AvailabilityIndex) Held() map[uuid.UUID]uuid.UUID {
	ix.mu.Lock()
	entries := make(map[uuid.UUID]*spotClaims, len(ix.spots))
	for spotID, sc := range ix.spots {
		entries[spotID] = sc
	}
	ix.mu.Unlock()

	held := make(map[uuid.UUID]uuid.UUID)
	for spotID, sc := range entries {
		sc.mu.Lock()
		for _, c := range sc.claims {
			held[c.reservationID] = spotID
		}
		sc.mu.Unlock()
	}
	return held
}
