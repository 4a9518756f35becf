package service

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"parkspot/internal/db"
)

// SpotInventory is the per-location registry of spots and their static attributes.
// Spots of a location are kept ordered by Number.
type SpotInventory struct {
	mu         sync.RWMutex
	byLocation map[uuid.UUID][]db.ParkingSpot
	byID       map[uuid.UUID]db.ParkingSpot
}

func NewSpotInventory() *SpotInventory {
	return &SpotInventory{
		byLocation: make(map[uuid.UUID][]db.ParkingSpot),
		byID:       make(map[uuid.UUID]db.ParkingSpot),
	}
}

// Load replaces the whole snapshot.
func (inv *SpotInventory) Load(spots []db.ParkingSpot) {
	byLocation := make(map[uuid.UUID][]db.ParkingSpot)
	byID := make(map[uuid.UUID]db.ParkingSpot, len(spots))
	for _, s := range spots {
		byLocation[s.LocationID] = append(byLocation[s.LocationID], s)
		byID[s.ID] = s
	}
	for _, list := range byLocation {
		sortSpots(list)
	}

	inv.mu.Lock()
	inv.byLocation = byLocation
	inv.byID = byID
	inv.mu.Unlock()
}

// Upsert adds a spot or replaces its attributes.
func (inv *SpotInventory) Upsert(spot db.ParkingSpot) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	list := inv.byLocation[spot.LocationID]
	replaced := false
	for i := range list {
		if list[i].ID == spot.ID {
			list[i] = spot
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, spot)
	}
	sortSpots(list)
	inv.byLocation[spot.LocationID] = list
	inv.byID[spot.ID] = spot
}

func (inv *SpotInventory) Spot(id uuid.UUID) (db.ParkingSpot, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	s, ok := inv.byID[id]
	return s, ok
}

// Spots returns a copy of every spot at the location, out-of-service ones included.
func (inv *SpotInventory) Spots(locationID uuid.UUID) []db.ParkingSpot {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return append([]db.ParkingSpot(nil), inv.byLocation[locationID]...)
}

// InService returns the bookable spots of a location in ascending Number order.
func (inv *SpotInventory) InService(locationID uuid.UUID) []db.ParkingSpot {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	var out []db.ParkingSpot
	for _, s := range inv.byLocation[locationID] {
		if !s.OutOfService {
			out = append(out, s)
		}
	}
	return out
}

// Capacity is derived from the spots, never stored separately.
func (inv *SpotInventory) Capacity(locationID uuid.UUID) int {
	return len(inv.InService(locationID))
}

func sortSpots(list []db.ParkingSpot) {
	sort.Slice(list, func(i, j int) bool { return list[i].Number < list[j].Number })
}
