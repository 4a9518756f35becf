package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"parkspot/internal/db"
	apperrors "parkspot/internal/errors"
)

// SpotStore is the provider-managed inventory snapshot: locations and their spots.
type SpotStore interface {
	GetLocation(ctx context.Context, id uuid.UUID) (*db.ParkingLocation, error)
	ListLocations(ctx context.Context) ([]db.ParkingLocation, error)
	ListSpots(ctx context.Context) ([]db.ParkingSpot, error)
	AddSpot(ctx context.Context, spot *db.ParkingSpot) error
	UpdateSpot(ctx context.Context, id uuid.UUID, size db.SizeClass, outOfService bool) (*db.ParkingSpot, error)
}

type SpotRepository struct {
	DB *sql.DB
}

func NewSpotRepository(db *sql.DB) *SpotRepository {
	return &SpotRepository{DB: db}
}

const locationColumns = `id, provider_id, name, address, latitude, longitude, hourly_rate, opens_at, closes_at, created_at`

func scanLocation(row rowScanner) (*db.ParkingLocation, error) {
	var l db.ParkingLocation
	err := row.Scan(&l.ID, &l.ProviderID, &l.Name, &l.Address, &l.Latitude, &l.Longitude,
		&l.HourlyRate, &l.OpensAt, &l.ClosesAt, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *SpotRepository) GetLocation(ctx context.Context, id uuid.UUID) (*db.ParkingLocation, error) {
	l, err := scanLocation(r.DB.QueryRowContext(ctx, `SELECT `+locationColumns+` FROM parking_locations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("location %s: %w", id, apperrors.ErrLocationNotFound)
		}
		return nil, fmt.Errorf("error querying location: %w", err)
	}
	return l, nil
}

func (r *SpotRepository) ListLocations(ctx context.Context) ([]db.ParkingLocation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+locationColumns+` FROM parking_locations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []db.ParkingLocation
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning location: %w", err)
		}
		locations = append(locations, *l)
	}
	return locations, rows.Err()
}

func (r *SpotRepository) ListSpots(ctx context.Context) ([]db.ParkingSpot, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, location_id, number, size_class, out_of_service
		FROM parking_spots
		ORDER BY location_id, number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spots []db.ParkingSpot
	for rows.Next() {
		var s db.ParkingSpot
		if err := rows.Scan(&s.ID, &s.LocationID, &s.Number, &s.SizeClass, &s.OutOfService); err != nil {
			return nil, fmt.Errorf("error scanning spot: %w", err)
		}
		spots = append(spots, s)
	}
	return spots, rows.Err()
}

func (r *SpotRepository) AddSpot(ctx context.Context, spot *db.ParkingSpot) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO parking_spots (id, location_id, number, size_class, out_of_service)
		VALUES ($1, $2, $3, $4, $5)`,
		spot.ID, spot.LocationID, spot.Number, spot.SizeClass, spot.OutOfService)
	if err != nil {
		return fmt.Errorf("error inserting spot %d: %w", spot.Number, err)
	}
	return nil
}

func (r *SpotRepository) UpdateSpot(ctx context.Context, id uuid.UUID, size db.SizeClass, outOfService bool) (*db.ParkingSpot, error) {
	var s db.ParkingSpot
	err := r.DB.QueryRowContext(ctx, `
		UPDATE parking_spots
		SET size_class = $1,
			out_of_service = $2
		WHERE id = $3
		RETURNING id, location_id, number, size_class, out_of_service`,
		size, outOfService, id,
	).Scan(&s.ID, &s.LocationID, &s.Number, &s.SizeClass, &s.OutOfService)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("spot %s: %w", id, apperrors.ErrSpotNotFound)
		}
		return nil, fmt.Errorf("error updating spot: %w", err)
	}
	return &s, nil
}
