package db

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusActive    ReservationStatus = "active"
	StatusCompleted ReservationStatus = "completed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusExpired   ReservationStatus = "expired"
)

// NonTerminal statuses still hold an interval claim on their spot.
var NonTerminal = []ReservationStatus{StatusPending, StatusConfirmed, StatusActive}

func (s ReservationStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// CanMoveTo reports whether to is a forward edge of the reservation state machine.
func (s ReservationStatus) CanMoveTo(to ReservationStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled || to == StatusExpired
	case StatusConfirmed:
		return to == StatusActive || to == StatusCancelled
	case StatusActive:
		// mid-session cancellation is gated by policy in the service
		return to == StatusCompleted || to == StatusCancelled
	}
	return false
}

type SizeClass string

const (
	SizeCompact  SizeClass = "compact"
	SizeStandard SizeClass = "standard"
	SizeLarge    SizeClass = "large"
)

type SpotStatus string

const (
	SpotFree         SpotStatus = "free"
	SpotReserved     SpotStatus = "reserved"
	SpotOutOfService SpotStatus = "out_of_service"
)

type ParkingLocation struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Name       string
	Address    string
	Latitude   float64
	Longitude  float64
	HourlyRate int64 // cents
	OpensAt    int   // minutes from midnight UTC
	ClosesAt   int
	CreatedAt  time.Time
}

// OpenAllDay is true when the operating window covers the whole day.
func (l ParkingLocation) OpenAllDay() bool {
	return l.OpensAt <= 0 && (l.ClosesAt == 0 || l.ClosesAt >= 24*60)
}

type ParkingSpot struct {
	ID           uuid.UUID
	LocationID   uuid.UUID
	Number       int
	SizeClass    SizeClass
	OutOfService bool
}

type Reservation struct {
	ID                   uuid.UUID
	SpotID               uuid.UUID
	LocationID           uuid.UUID
	CustomerID           uuid.UUID
	VehicleID            uuid.UUID
	StartTime            time.Time
	EndTime              time.Time
	Status               ReservationStatus
	Fee                  int64
	Refund               int64
	TransactionID        string
	CreatedAt            time.Time
	ConfirmationDeadline time.Time
	UpdatedAt            time.Time
}

type ReservationEvent struct {
	Seq           int64
	ReservationID uuid.UUID
	From          ReservationStatus
	To            ReservationStatus
	At            time.Time
	Detail        string
}

// Transition is a compare-and-swap request on a reservation's status.
type Transition struct {
	ID            uuid.UUID
	From          ReservationStatus
	To            ReservationStatus
	At            time.Time
	Fee           *int64
	Refund        *int64
	TransactionID string
	Detail        string
}

type CustomerContact struct {
	CustomerID uuid.UUID
	Name       string
	Email      string
	Phone      string
	Language   string
}
