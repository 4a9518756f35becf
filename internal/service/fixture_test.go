package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"parkspot/internal/db"
	"parkspot/internal/repository"
	"parkspot/internal/service"
)

var baseTime = time.Date(2030, time.January, 10, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store *repository.MemoryStore
	svc   *service.ReservationService
	jobs  *service.JobService
	loc   db.ParkingLocation
	spots []db.ParkingSpot
	now   time.Time
}

func newFixture(t *testing.T, spots int, tune ...func(*service.Policy)) *fixture {
	t.Helper()
	f := &fixture{store: repository.NewMemoryStore(), now: baseTime}
	f.loc = db.ParkingLocation{
		ID:         uuid.New(),
		ProviderID: uuid.New(),
		Name:       "Central",
		HourlyRate: 500,
		ClosesAt:   24 * 60,
	}
	f.store.AddLocation(f.loc)
	for n := 1; n <= spots; n++ {
		spot := db.ParkingSpot{ID: uuid.New(), LocationID: f.loc.ID, Number: n, SizeClass: db.SizeStandard}
		require.NoError(t, f.store.AddSpot(context.Background(), &spot))
		f.spots = append(f.spots, spot)
	}

	policy := service.DefaultPolicy()
	for _, fn := range tune {
		fn(&policy)
	}
	f.svc = f.newService(t, policy)
	f.jobs = service.NewJobService(f.svc, f.store)
	return f
}

// newService builds a coordinator over the fixture's store, sharing its clock.
func (f *fixture) newService(t *testing.T, policy service.Policy) *service.ReservationService {
	t.Helper()
	svc := service.NewReservationService(f.store, f.store, f.store, policy)
	svc.Now = func() time.Time { return f.now }
	require.NoError(t, svc.Rebuild(context.Background()))
	return svc
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) create(start, end time.Time) (*db.Reservation, error) {
	return f.svc.CreateReservation(context.Background(), service.CreateReservationRequest{
		LocationID: f.loc.ID,
		CustomerID: uuid.New(),
		VehicleID:  uuid.New(),
		StartTime:  start,
		EndTime:    end,
	})
}

// book creates a reservation starting lead from now and lasting d.
func (f *fixture) book(t *testing.T, lead, d time.Duration) *db.Reservation {
	t.Helper()
	res, err := f.create(f.now.Add(lead), f.now.Add(lead+d))
	require.NoError(t, err)
	return res
}

func (f *fixture) bookConfirmed(t *testing.T, lead, d time.Duration) *db.Reservation {
	t.Helper()
	res := f.book(t, lead, d)
	confirmed, err := f.svc.ConfirmReservation(context.Background(), res.ID, service.PaymentResult{Success: true, TransactionID: "pi_" + res.ID.String()[:8]})
	require.NoError(t, err)
	return confirmed
}

func (f *fixture) spotNumber(id uuid.UUID) int {
	for _, s := range f.spots {
		if s.ID == id {
			return s.Number
		}
	}
	return -1
}
