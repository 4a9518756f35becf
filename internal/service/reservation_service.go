package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"parkspot/internal/db"
	apperrors "parkspot/internal/errors"
	"parkspot/internal/repository"
)

// Policy holds the tunables of the booking state machine.
type Policy struct {
	ConfirmationGrace     time.Duration
	MaxDuration           time.Duration
	MaxClaimAttempts      int
	AllowMidSessionCancel bool
	SweepOnRead           bool
	Refund                RefundPolicy
}

func DefaultPolicy() Policy {
	return Policy{
		ConfirmationGrace: 15 * time.Minute,
		MaxDuration:       7 * 24 * time.Hour,
		MaxClaimAttempts:  10,
		Refund:            DefaultRefundPolicy(),
	}
}

// CountCache memoizes free-spot counts under a per-location version that
// Invalidate advances. Implemented by repository.AvailabilityCache.
type CountCache interface {
	Version(ctx context.Context, locationID uuid.UUID) (int64, error)
	Get(ctx context.Context, locationID uuid.UUID, version int64, start, end time.Time) (int, bool, error)
	Set(ctx context.Context, locationID uuid.UUID, version int64, start, end time.Time, count int) error
	Invalidate(ctx context.Context, locationID uuid.UUID) error
}

type CreateReservationRequest struct {
	LocationID uuid.UUID
	CustomerID uuid.UUID
	VehicleID  uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
}

// PaymentResult is supplied by the payment collaborator.
type PaymentResult struct {
	Success       bool
	TransactionID string
}

type CancelResult struct {
	Reservation *db.Reservation
	Refund      int64
}

type SpotView struct {
	Spot   db.ParkingSpot
	Status db.SpotStatus
}

// ReservationService coordinates the reservation lifecycle. Interval claims live in
// Index; the store is the source of truth for status, changed only by compare-and-swap.
type ReservationService struct {
	Repo      repository.ReservationStore
	Spots     repository.SpotStore
	Due       repository.DueFinder
	Inventory *SpotInventory
	Index     *AvailabilityIndex
	Cache     CountCache
	Policy    Policy
	Now       func() time.Time
}

func NewReservationService(repo repository.ReservationStore, spots repository.SpotStore, due repository.DueFinder, policy Policy) *ReservationService {
	inventory := NewSpotInventory()
	return &ReservationService{
		Repo:      repo,
		Spots:     spots,
		Due:       due,
		Inventory: inventory,
		Index:     NewAvailabilityIndex(inventory),
		Policy:    policy,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *ReservationService) now() time.Time {
	return s.Now().UTC()
}

// Rebuild reloads the spot snapshot and replays every non-terminal reservation
// into the availability index.
func (s *ReservationService) Rebuild(ctx context.Context) error {
	spots, err := s.Spots.ListSpots(ctx)
	if err != nil {
		return fmt.Errorf("loading spot inventory: %w", err)
	}
	s.Inventory.Load(spots)

	open, err := s.Repo.ListNonTerminal(ctx)
	if err != nil {
		return fmt.Errorf("loading non-terminal reservations: %w", err)
	}
	s.Index.Load(open)
	log.Printf("Availability index rebuilt: %d spots, %d open reservations", len(spots), len(open))
	return nil
}

// Reconcile brings the index in line with transitions made by other processes
// sharing the store. Claims whose reservation is terminal in the store are
// released; open reservations this process has never seen are claimed.
// Claims with no stored row yet belong to an in-flight create and are kept.
func (s *ReservationService) Reconcile(ctx context.Context) (released, claimed int, err error) {
	held := s.Index.Held()
	open, err := s.Repo.ListNonTerminal(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("loading non-terminal reservations: %w", err)
	}

	touched := make(map[uuid.UUID]bool)
	stillOpen := make(map[uuid.UUID]bool, len(open))
	for _, r := range open {
		stillOpen[r.ID] = true
		if _, ok := held[r.ID]; ok {
			continue
		}
		if err := s.Index.ReserveInterval(r.SpotID, r.ID, r.StartTime, r.EndTime); err != nil {
			log.Printf("Reconcile: cannot claim reservation %s: %v", r.ID, err)
			continue
		}
		claimed++
		touched[r.LocationID] = true
	}

	for reservationID, spotID := range held {
		if stillOpen[reservationID] {
			continue
		}
		res, err := s.Repo.Get(ctx, reservationID)
		if err != nil {
			if !errors.Is(err, apperrors.ErrReservationNotFound) {
				log.Printf("Reconcile: reservation %s: %v", reservationID, err)
			}
			continue
		}
		if !res.Status.IsTerminal() {
			continue
		}
		s.Index.ReleaseInterval(spotID, reservationID)
		released++
		touched[res.LocationID] = true
	}

	for locationID := range touched {
		s.invalidate(ctx, locationID)
	}
	if released > 0 || claimed > 0 {
		log.Printf("Availability index reconciled: %d released, %d claimed", released, claimed)
	}
	return released, claimed, nil
}

func (s *ReservationService) validateWindow(loc *db.ParkingLocation, start, end, now time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("end must be after start: %w", apperrors.ErrInvalidTimeWindow)
	}
	if start.Before(now) {
		return fmt.Errorf("start is in the past: %w", apperrors.ErrInvalidTimeWindow)
	}
	if s.Policy.MaxDuration > 0 && end.Sub(start) > s.Policy.MaxDuration {
		return fmt.Errorf("window longer than %s: %w", s.Policy.MaxDuration, apperrors.ErrInvalidTimeWindow)
	}
	if !withinOperatingHours(loc, start, end) {
		return fmt.Errorf("window outside operating hours: %w", apperrors.ErrInvalidTimeWindow)
	}
	return nil
}

// withinOperatingHours requires the window to fit in one opening span. A location
// whose OpensAt is not before ClosesAt is open overnight, across midnight UTC.
func withinOperatingHours(loc *db.ParkingLocation, start, end time.Time) bool {
	if loc.OpenAllDay() {
		return true
	}
	const day = 24 * time.Hour
	dayStart := start.Truncate(day)
	opens := time.Duration(loc.OpensAt) * time.Minute
	closes := time.Duration(loc.ClosesAt) * time.Minute

	if opens < closes {
		return !start.Before(dayStart.Add(opens)) && !end.After(dayStart.Add(closes))
	}
	switch offset := start.Sub(dayStart); {
	case offset >= opens:
		return !end.After(dayStart.Add(day + closes))
	case offset < closes:
		return !end.After(dayStart.Add(closes))
	}
	return false
}

// CreateReservation claims the lowest-numbered free spot for the window and records a
// Pending reservation that must be confirmed before its deadline.
func (s *ReservationService) CreateReservation(ctx context.Context, req CreateReservationRequest) (*db.Reservation, error) {
	now := s.now()
	start, end := req.StartTime.UTC(), req.EndTime.UTC()

	loc, err := s.Spots.GetLocation(ctx, req.LocationID)
	if err != nil {
		return nil, err
	}
	if err := s.validateWindow(loc, start, end, now); err != nil {
		return nil, err
	}
	if s.Policy.SweepOnRead {
		s.ExpireStale(ctx, &loc.ID)
	}

	candidates := s.Index.QueryFree(loc.ID, start, end)
	if len(candidates) == 0 {
		return nil, apperrors.ErrSpotUnavailable
	}

	id := uuid.New()
	attempts := 0
	for _, spotID := range candidates {
		if s.Policy.MaxClaimAttempts > 0 && attempts >= s.Policy.MaxClaimAttempts {
			break
		}
		attempts++

		if err := s.Index.ReserveInterval(spotID, id, start, end); err != nil {
			if errors.Is(err, apperrors.ErrConflict) {
				continue
			}
			return nil, err
		}

		res := &db.Reservation{
			ID:                   id,
			SpotID:               spotID,
			LocationID:           loc.ID,
			CustomerID:           req.CustomerID,
			VehicleID:            req.VehicleID,
			StartTime:            start,
			EndTime:              end,
			Status:               db.StatusPending,
			Fee:                  Fee(loc.HourlyRate, start, end),
			CreatedAt:            now,
			ConfirmationDeadline: now.Add(s.Policy.ConfirmationGrace),
			UpdatedAt:            now,
		}
		if err := s.Repo.Create(ctx, res); err != nil {
			s.Index.ReleaseInterval(spotID, id)
			if errors.Is(err, apperrors.ErrConflict) {
				// claimed by another process sharing the database
				continue
			}
			return nil, fmt.Errorf("persisting reservation: %w", err)
		}

		s.invalidate(ctx, loc.ID)
		log.Printf("Reservation %s pending on spot %s (%s - %s)", id, spotID, start.Format(time.RFC3339), end.Format(time.RFC3339))
		return res, nil
	}

	return nil, fmt.Errorf("%d claim attempts lost: %w", attempts, apperrors.ErrContended)
}

// ConfirmReservation applies the payment outcome to a Pending reservation.
func (s *ReservationService) ConfirmReservation(ctx context.Context, id uuid.UUID, payment PaymentResult) (*db.Reservation, error) {
	res, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(res, db.StatusPending); err != nil {
		return nil, err
	}

	now := s.now()
	if now.After(res.ConfirmationDeadline) {
		if _, err := s.release(ctx, res, db.StatusExpired, db.Transition{Detail: "confirmation deadline passed"}); err != nil && !isLostRace(err) {
			return nil, err
		}
		return nil, apperrors.ErrConfirmationExpired
	}

	if !payment.Success {
		t := db.Transition{TransactionID: payment.TransactionID, Detail: "payment failed"}
		if _, err := s.release(ctx, res, db.StatusCancelled, t); err != nil {
			return nil, s.explainLostRace(ctx, id, err)
		}
		return nil, apperrors.ErrPaymentFailed
	}

	loc, err := s.Spots.GetLocation(ctx, res.LocationID)
	if err != nil {
		return nil, err
	}
	fee := Fee(loc.HourlyRate, res.StartTime, res.EndTime)
	updated, err := s.Repo.Transition(ctx, db.Transition{
		ID:            id,
		From:          db.StatusPending,
		To:            db.StatusConfirmed,
		At:            now,
		Fee:           &fee,
		TransactionID: payment.TransactionID,
		Detail:        "payment confirmed",
	})
	if err != nil {
		return nil, s.explainLostRace(ctx, id, err)
	}
	log.Printf("Reservation %s confirmed (transaction %s, fee %d)", id, payment.TransactionID, fee)
	return updated, nil
}

// CancelReservation releases the spot immediately and computes the tiered refund.
// Cancelling an already-terminal reservation returns ErrAlreadyTerminal and no refund.
func (s *ReservationService) CancelReservation(ctx context.Context, id uuid.UUID, now time.Time) (*CancelResult, error) {
	now = now.UTC()
	// one retry covers a concurrent Pending -> Confirmed move
	for attempt := 0; attempt < 2; attempt++ {
		res, err := s.Repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if res.Status.IsTerminal() {
			return nil, apperrors.ErrAlreadyTerminal
		}
		started := res.Status == db.StatusActive || !now.Before(res.StartTime)
		if started && !s.Policy.AllowMidSessionCancel {
			return nil, apperrors.ErrTooLateToCancel
		}

		var refund int64
		if res.Status == db.StatusConfirmed {
			refund = Refund(res.Fee, res.StartTime, now, s.Policy.Refund)
		}

		updated, err := s.release(ctx, res, db.StatusCancelled, db.Transition{At: now, Refund: &refund, Detail: "cancelled by customer"})
		if errors.Is(err, apperrors.ErrStaleStatus) {
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Printf("Reservation %s cancelled, refund %d", id, refund)
		return &CancelResult{Reservation: updated, Refund: refund}, nil
	}
	return nil, s.explainLostRace(ctx, id, apperrors.ErrStaleStatus)
}

// Activate moves a Confirmed reservation to Active once its window has started.
// The interval claim is unchanged.
func (s *ReservationService) Activate(ctx context.Context, id uuid.UUID) (*db.Reservation, error) {
	res, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(res, db.StatusConfirmed); err != nil {
		return nil, err
	}
	now := s.now()
	if now.Before(res.StartTime) {
		return nil, fmt.Errorf("window starts at %s: %w", res.StartTime.Format(time.RFC3339), apperrors.ErrInvalidTransition)
	}
	return s.Repo.Transition(ctx, db.Transition{ID: id, From: db.StatusConfirmed, To: db.StatusActive, At: now, Detail: "window started"})
}

// Complete finalizes an Active reservation whose window has elapsed.
func (s *ReservationService) Complete(ctx context.Context, id uuid.UUID) (*db.Reservation, error) {
	res, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(res, db.StatusActive); err != nil {
		return nil, err
	}
	if s.now().Before(res.EndTime) {
		return nil, fmt.Errorf("window ends at %s: %w", res.EndTime.Format(time.RFC3339), apperrors.ErrInvalidTransition)
	}
	return s.release(ctx, res, db.StatusCompleted, db.Transition{Detail: "window elapsed"})
}

// Expire moves a Pending reservation past its confirmation deadline to Expired.
func (s *ReservationService) Expire(ctx context.Context, id uuid.UUID) (*db.Reservation, error) {
	res, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireStatus(res, db.StatusPending); err != nil {
		return nil, err
	}
	if !s.now().After(res.ConfirmationDeadline) {
		return nil, fmt.Errorf("deadline not reached: %w", apperrors.ErrInvalidTransition)
	}
	return s.release(ctx, res, db.StatusExpired, db.Transition{Detail: "confirmation deadline passed"})
}

// ExpireStale expires Pending reservations past their deadline, optionally for one
// location only. It returns how many were expired.
func (s *ReservationService) ExpireStale(ctx context.Context, locationID *uuid.UUID) int {
	due, err := s.Due.PendingPastDeadline(ctx, s.now(), locationID, 100)
	if err != nil {
		log.Printf("Error fetching stale pending reservations: %v", err)
		return 0
	}
	expired := 0
	for _, res := range due {
		if _, err := s.Expire(ctx, res.ID); err != nil {
			if !isLostRace(err) {
				log.Printf("Failed to expire reservation %s: %v", res.ID, err)
			}
			continue
		}
		expired++
	}
	return expired
}

// release performs a terminal transition and drops the interval claim.
func (s *ReservationService) release(ctx context.Context, res *db.Reservation, to db.ReservationStatus, t db.Transition) (*db.Reservation, error) {
	t.ID = res.ID
	t.From = res.Status
	t.To = to
	if t.At.IsZero() {
		t.At = s.now()
	}
	updated, err := s.Repo.Transition(ctx, t)
	if err != nil {
		return nil, err
	}
	s.Index.ReleaseInterval(res.SpotID, res.ID)
	s.invalidate(ctx, res.LocationID)
	return updated, nil
}

func requireStatus(res *db.Reservation, want db.ReservationStatus) error {
	if res.Status == want {
		return nil
	}
	if res.Status.IsTerminal() {
		return apperrors.ErrAlreadyTerminal
	}
	return fmt.Errorf("reservation is %s, not %s: %w", res.Status, want, apperrors.ErrInvalidTransition)
}

func isLostRace(err error) bool {
	return errors.Is(err, apperrors.ErrStaleStatus) ||
		errors.Is(err, apperrors.ErrAlreadyTerminal) ||
		errors.Is(err, apperrors.ErrInvalidTransition)
}

// explainLostRace turns a failed compare-and-swap into the caller-facing error for
// the status the reservation actually reached.
func (s *ReservationService) explainLostRace(ctx context.Context, id uuid.UUID, err error) error {
	if !errors.Is(err, apperrors.ErrStaleStatus) {
		return err
	}
	current, getErr := s.Repo.Get(ctx, id)
	if getErr != nil {
		return getErr
	}
	switch {
	case current.Status == db.StatusExpired:
		return apperrors.ErrConfirmationExpired
	case current.Status.IsTerminal():
		return apperrors.ErrAlreadyTerminal
	}
	return fmt.Errorf("reservation is %s: %w", current.Status, apperrors.ErrInvalidTransition)
}

func (s *ReservationService) invalidate(ctx context.Context, locationID uuid.UUID) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, locationID); err != nil {
		log.Printf("availability cache: invalidate %s: %v", locationID, err)
	}
}

// GetAvailability counts the spots of a location free for the whole window.
func (s *ReservationService) GetAvailability(ctx context.Context, locationID uuid.UUID, start, end time.Time) (int, error) {
	start, end = start.UTC(), end.UTC()
	if !end.After(start) {
		return 0, fmt.Errorf("end must be after start: %w", apperrors.ErrInvalidTimeWindow)
	}
	if _, err := s.Spots.GetLocation(ctx, locationID); err != nil {
		return 0, err
	}
	if s.Policy.SweepOnRead && s.ExpireStale(ctx, &locationID) > 0 {
		s.invalidate(ctx, locationID)
	}

	if s.Cache == nil {
		return s.Index.FreeCount(locationID, start, end), nil
	}

	// the version is read before counting; a claim landing after that bumps it
	version, err := s.Cache.Version(ctx, locationID)
	if err != nil {
		log.Printf("availability cache: version: %v", err)
		return s.Index.FreeCount(locationID, start, end), nil
	}
	n, ok, err := s.Cache.Get(ctx, locationID, version, start, end)
	if err != nil {
		log.Printf("availability cache: get: %v", err)
	} else if ok {
		return n, nil
	}

	n = s.Index.FreeCount(locationID, start, end)
	if err := s.Cache.Set(ctx, locationID, version, start, end, n); err != nil {
		log.Printf("availability cache: set: %v", err)
	}
	return n, nil
}

// SpotStatuses projects the Free/Reserved/OutOfService label of each spot at an instant.
func (s *ReservationService) SpotStatuses(ctx context.Context, locationID uuid.UUID, at time.Time) ([]SpotView, error) {
	if _, err := s.Spots.GetLocation(ctx, locationID); err != nil {
		return nil, err
	}
	spots := s.Inventory.Spots(locationID)
	views := make([]SpotView, 0, len(spots))
	for _, spot := range spots {
		status := db.SpotFree
		switch {
		case spot.OutOfService:
			status = db.SpotOutOfService
		case s.Index.Occupied(spot.ID, at):
			status = db.SpotReserved
		}
		views = append(views, SpotView{Spot: spot, Status: status})
	}
	return views, nil
}

func (s *ReservationService) GetReservation(ctx context.Context, id uuid.UUID) (*db.Reservation, error) {
	return s.Repo.Get(ctx, id)
}

func (s *ReservationService) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]db.Reservation, error) {
	return s.Repo.ListByCustomer(ctx, customerID)
}

func (s *ReservationService) ListByLocation(ctx context.Context, locationID uuid.UUID) ([]db.Reservation, error) {
	return s.Repo.ListByLocation(ctx, locationID)
}

func (s *ReservationService) ListBySpot(ctx context.Context, spotID uuid.UUID) ([]db.Reservation, error) {
	return s.Repo.ListBySpot(ctx, spotID)
}

func (s *ReservationService) Events(ctx context.Context, afterSeq int64, limit int) ([]db.ReservationEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.Repo.EventsSince(ctx, afterSeq, limit)
}
