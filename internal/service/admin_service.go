package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"parkspot/internal/db"
	apperrors "parkspot/internal/errors"
	"parkspot/internal/utils"
)

// AdminService is the provider-facing side: spot inventory changes and reporting.
type AdminService struct {
	reservations *ReservationService
}

func NewAdminService(reservations *ReservationService) *AdminService {
	return &AdminService{reservations: reservations}
}

func (s *AdminService) ListReservations(ctx context.Context, locationID uuid.UUID) ([]db.Reservation, error) {
	return s.reservations.ListByLocation(ctx, locationID)
}

func (s *AdminService) ListSpotReservations(ctx context.Context, spotID uuid.UUID) ([]db.Reservation, error) {
	return s.reservations.ListBySpot(ctx, spotID)
}

func (s *AdminService) SpotStatuses(ctx context.Context, locationID uuid.UUID, at time.Time) ([]SpotView, error) {
	return s.reservations.SpotStatuses(ctx, locationID, at)
}

// AddSpot registers a new spot; it is bookable immediately.
func (s *AdminService) AddSpot(ctx context.Context, locationID uuid.UUID, number int, sizeClass string) (*db.ParkingSpot, error) {
	if number <= 0 {
		return nil, apperrors.ErrBadRequest("spot number must be positive")
	}
	size, err := utils.ParseSizeClass(sizeClass)
	if err != nil {
		return nil, apperrors.ErrBadRequest(err.Error())
	}
	if _, err := s.reservations.Spots.GetLocation(ctx, locationID); err != nil {
		return nil, err
	}
	spot := &db.ParkingSpot{ID: uuid.New(), LocationID: locationID, Number: number, SizeClass: size}
	if err := s.reservations.Spots.AddSpot(ctx, spot); err != nil {
		return nil, err
	}
	s.reservations.Inventory.Upsert(*spot)
	s.reservations.invalidate(ctx, locationID)
	return spot, nil
}

// UpdateSpot changes static attributes. Taking a spot out of service keeps existing
// claims but removes it from future candidate lists.
func (s *AdminService) UpdateSpot(ctx context.Context, spotID uuid.UUID, sizeClass string, outOfService bool) (*db.ParkingSpot, error) {
	size, err := utils.ParseSizeClass(sizeClass)
	if err != nil {
		return nil, apperrors.ErrBadRequest(err.Error())
	}
	spot, err := s.reservations.Spots.UpdateSpot(ctx, spotID, size, outOfService)
	if err != nil {
		return nil, err
	}
	s.reservations.Inventory.Upsert(*spot)
	s.reservations.invalidate(ctx, spot.LocationID)
	return spot, nil
}

// Overstay computes the extra fee for a vehicle leaving after its reservation ended.
func (s *AdminService) Overstay(ctx context.Context, reservationID uuid.UUID, exit time.Time) (*db.Reservation, int64, error) {
	res, err := s.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, 0, err
	}
	if res.Status != db.StatusActive && res.Status != db.StatusCompleted {
		return nil, 0, fmt.Errorf("reservation is %s: %w", res.Status, apperrors.ErrInvalidTransition)
	}
	loc, err := s.reservations.Spots.GetLocation(ctx, res.LocationID)
	if err != nil {
		return nil, 0, err
	}
	return res, OverstayFee(loc.HourlyRate, res.EndTime, exit.UTC()), nil
}

// ConfirmReservation records a payment taken outside the checkout flow, such as
// cash at the counter.
func (s *AdminService) ConfirmReservation(ctx context.Context, reservationID uuid.UUID, payment PaymentResult) (*db.Reservation, error) {
	return s.reservations.ConfirmReservation(ctx, reservationID, payment)
}
