package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"parkspot/internal/db"
)

// DueFinder lists reservations whose lifecycle is due for a time-driven transition.
type DueFinder interface {
	PendingPastDeadline(ctx context.Context, now time.Time, locationID *uuid.UUID, limit int) ([]db.Reservation, error)
	ConfirmedPastStart(ctx context.Context, now time.Time, limit int) ([]db.Reservation, error)
	InUsePastEnd(ctx context.Context, now time.Time, limit int) ([]db.Reservation, error)
}

type JobRepository struct {
	DB *sql.DB
	// reuses the reservation scanner
	reservations *ReservationRepository
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{DB: db, reservations: NewReservationRepository(db)}
}

// PendingPastDeadline busca reservas pendientes cuyo plazo de confirmación ya pasó.
func (r *JobRepository) PendingPastDeadline(ctx context.Context, now time.Time, locationID *uuid.UUID, limit int) ([]db.Reservation, error) {
	if locationID != nil {
		query := `SELECT ` + reservationColumns + ` FROM reservations
			WHERE status = 'pending' AND confirmation_deadline < $1 AND location_id = $2
			ORDER BY confirmation_deadline LIMIT $3`
		return r.due(ctx, "pending past deadline", query, now, *locationID, limit)
	}
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE status = 'pending' AND confirmation_deadline < $1
		ORDER BY confirmation_deadline LIMIT $2`
	return r.due(ctx, "pending past deadline", query, now, limit)
}

func (r *JobRepository) ConfirmedPastStart(ctx context.Context, now time.Time, limit int) ([]db.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE status = 'confirmed' AND start_time <= $1
		ORDER BY start_time LIMIT $2`
	return r.due(ctx, "confirmed past start", query, now, limit)
}

func (r *JobRepository) InUsePastEnd(ctx context.Context, now time.Time, limit int) ([]db.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE status IN ('confirmed', 'active') AND end_time <= $1
		ORDER BY end_time LIMIT $2`
	return r.due(ctx, "in use past end", query, now, limit)
}

func (r *JobRepository) due(ctx context.Context, what, query string, args ...any) ([]db.Reservation, error) {
	out, err := r.reservations.list(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying reservations %s: %w", what, err)
	}
	return out, nil
}
