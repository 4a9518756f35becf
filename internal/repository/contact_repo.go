package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"parkspot/internal/db"
)

type ContactRepository struct {
	DB *sql.DB
}

func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{DB: db}
}

// GetContact returns nil, nil when the customer has no contact details on file.
func (r *ContactRepository) GetContact(ctx context.Context, customerID uuid.UUID) (*db.CustomerContact, error) {
	var c db.CustomerContact
	err := r.DB.QueryRowContext(ctx,
		`SELECT customer_id, name, email, phone, language FROM customer_contacts WHERE customer_id = $1`, customerID).
		Scan(&c.CustomerID, &c.Name, &c.Email, &c.Phone, &c.Language)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
