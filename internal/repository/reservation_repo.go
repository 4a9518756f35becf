package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"parkspot/internal/db"
	apperrors "parkspot/internal/errors"
)

// ReservationStore persists reservations. Status changes only go through Transition,
// which is a compare-and-swap on the expected prior status.
type ReservationStore interface {
	Create(ctx context.Context, res *db.Reservation) error
	Get(ctx context.Context, id uuid.UUID) (*db.Reservation, error)
	Transition(ctx context.Context, t db.Transition) (*db.Reservation, error)
	ListNonTerminal(ctx context.Context) ([]db.Reservation, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]db.Reservation, error)
	ListByLocation(ctx context.Context, locationID uuid.UUID) ([]db.Reservation, error)
	ListBySpot(ctx context.Context, spotID uuid.UUID) ([]db.Reservation, error)
	EventsSince(ctx context.Context, afterSeq int64, limit int) ([]db.ReservationEvent, error)
}

// exclusion_violation, raised by the reservations_no_overlap constraint.
const pqExclusionViolation = "23P01"

const reservationColumns = `id, spot_id, location_id, customer_id, vehicle_id, start_time, end_time, status,
	fee, refund, transaction_id, created_at, confirmation_deadline, updated_at`

type ReservationRepository struct {
	DB *sql.DB
}

func NewReservationRepository(db *sql.DB) *ReservationRepository {
	return &ReservationRepository{DB: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*db.Reservation, error) {
	var res db.Reservation
	err := row.Scan(
		&res.ID, &res.SpotID, &res.LocationID, &res.CustomerID, &res.VehicleID,
		&res.StartTime, &res.EndTime, &res.Status,
		&res.Fee, &res.Refund, &res.TransactionID, &res.CreatedAt, &res.ConfirmationDeadline, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	res.StartTime = res.StartTime.UTC()
	res.EndTime = res.EndTime.UTC()
	return &res, nil
}

func (r *ReservationRepository) Create(ctx context.Context, res *db.Reservation) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO reservations
		(id, spot_id, location_id, customer_id, vehicle_id, start_time, end_time, status, fee, refund, transaction_id, created_at, confirmation_deadline, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = tx.ExecContext(ctx, query,
		res.ID, res.SpotID, res.LocationID, res.CustomerID, res.VehicleID,
		res.StartTime, res.EndTime, res.Status,
		res.Fee, res.Refund, res.TransactionID, res.CreatedAt, res.ConfirmationDeadline, res.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqExclusionViolation {
			return fmt.Errorf("spot %s: %w", res.SpotID, apperrors.ErrConflict)
		}
		return fmt.Errorf("error inserting reservation: %w", err)
	}

	if err := appendEvent(ctx, tx, res.ID, "", res.Status, res.CreatedAt, "created"); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reservation: %w", err)
	}
	return nil
}

func (r *ReservationRepository) Get(ctx context.Context, id uuid.UUID) (*db.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	res, err := scanReservation(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reservation %s: %w", id, apperrors.ErrReservationNotFound)
		}
		return nil, fmt.Errorf("error querying reservation: %w", err)
	}
	return res, nil
}

func (r *ReservationRepository) Transition(ctx context.Context, t db.Transition) (*db.Reservation, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
		UPDATE reservations
		SET status = $1,
			updated_at = $2,
			fee = COALESCE($3, fee),
			refund = COALESCE($4, refund),
			transaction_id = CASE WHEN $5 = '' THEN transaction_id ELSE $5 END
		WHERE id = $6 AND status = $7
		RETURNING ` + reservationColumns

	res, err := scanReservation(tx.QueryRowContext(ctx, query,
		t.To, t.At, nullInt64(t.Fee), nullInt64(t.Refund), t.TransactionID, t.ID, t.From,
	))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("error updating reservation status: %w", err)
		}
		var current string
		err = tx.QueryRowContext(ctx, `SELECT status FROM reservations WHERE id = $1`, t.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reservation %s: %w", t.ID, apperrors.ErrReservationNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("error querying reservation status: %w", err)
		}
		return nil, fmt.Errorf("reservation %s is %s, expected %s: %w", t.ID, current, t.From, apperrors.ErrStaleStatus)
	}

	if err := appendEvent(ctx, tx, t.ID, t.From, t.To, t.At, t.Detail); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status transition: %w", err)
	}
	return res, nil
}

func appendEvent(ctx context.Context, tx *sql.Tx, id uuid.UUID, from, to db.ReservationStatus, at time.Time, detail string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO reservation_events (reservation_id, from_status, to_status, at, detail) VALUES ($1, $2, $3, $4, $5)`,
		id, from, to, at, detail,
	)
	if err != nil {
		return fmt.Errorf("error appending reservation event: %w", err)
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func (r *ReservationRepository) ListNonTerminal(ctx context.Context) ([]db.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE status = ANY($1) ORDER BY start_time`
	return r.list(ctx, query, pq.Array(statusStrings(db.NonTerminal)))
}

func (r *ReservationRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]db.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE customer_id = $1 ORDER BY start_time DESC`
	return r.list(ctx, query, customerID)
}

func (r *ReservationRepository) ListByLocation(ctx context.Context, locationID uuid.UUID) ([]db.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE location_id = $1 ORDER BY start_time DESC`
	return r.list(ctx, query, locationID)
}

func (r *ReservationRepository) ListBySpot(ctx context.Context, spotID uuid.UUID) ([]db.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE spot_id = $1 ORDER BY start_time DESC`
	return r.list(ctx, query, spotID)
}

func (r *ReservationRepository) list(ctx context.Context, query string, args ...any) ([]db.Reservation, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying reservations: %w", err)
	}
	defer rows.Close()

	var out []db.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning reservation: %w", err)
		}
		out = append(out, *res)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error after iterating reservations: %w", err)
	}
	return out, nil
}

func (r *ReservationRepository) EventsSince(ctx context.Context, afterSeq int64, limit int) ([]db.ReservationEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT seq, reservation_id, from_status, to_status, at, detail
		FROM reservation_events
		WHERE seq > $1
		ORDER BY seq
		LIMIT $2`, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying reservation events: %w", err)
	}
	defer rows.Close()

	var events []db.ReservationEvent
	for rows.Next() {
		var ev db.ReservationEvent
		if err := rows.Scan(&ev.Seq, &ev.ReservationID, &ev.From, &ev.To, &ev.At, &ev.Detail); err != nil {
			return nil, fmt.Errorf("error scanning reservation event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func statusStrings(statuses []db.ReservationStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
