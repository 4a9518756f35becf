package entities

import (
	"time"

	"parkspot/internal/db"
)

type ReservationResponse struct {
	ID                   string    `json:"id"`
	SpotID               string    `json:"spot_id"`
	LocationID           string    `json:"location_id"`
	CustomerID           string    `json:"customer_id"`
	VehicleID            string    `json:"vehicle_id"`
	StartTime            time.Time `json:"start_time"`
	EndTime              time.Time `json:"end_time"`
	Status               string    `json:"status"`
	Fee                  int64     `json:"fee"`
	Refund               int64     `json:"refund,omitempty"`
	TransactionID        string    `json:"transaction_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	ConfirmationDeadline time.Time `json:"confirmation_deadline"`
	CheckoutURL          string    `json:"checkout_url,omitempty"`
}

func NewReservationResponse(r *db.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:                   r.ID.String(),
		SpotID:               r.SpotID.String(),
		LocationID:           r.LocationID.String(),
		CustomerID:           r.CustomerID.String(),
		VehicleID:            r.VehicleID.String(),
		StartTime:            r.StartTime,
		EndTime:              r.EndTime,
		Status:               string(r.Status),
		Fee:                  r.Fee,
		Refund:               r.Refund,
		TransactionID:        r.TransactionID,
		CreatedAt:            r.CreatedAt,
		ConfirmationDeadline: r.ConfirmationDeadline,
	}
}

type ReservationsList struct {
	Total        int                   `json:"total"`
	Reservations []ReservationResponse `json:"reservations"`
}

func NewReservationsList(list []db.Reservation) ReservationsList {
	out := ReservationsList{Total: len(list), Reservations: make([]ReservationResponse, 0, len(list))}
	for i := range list {
		out.Reservations = append(out.Reservations, NewReservationResponse(&list[i]))
	}
	return out
}

type CancelResponse struct {
	Reservation ReservationResponse `json:"reservation"`
	Refund      int64               `json:"refund"`
}

type EventResponse struct {
	Seq           int64     `json:"seq"`
	ReservationID string    `json:"reservation_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	At            time.Time `json:"at"`
	Detail        string    `json:"detail,omitempty"`
}

type OverstayResponse struct {
	ReservationID string    `json:"reservation_id"`
	EndTime       time.Time `json:"end_time"`
	ExitTime      time.Time `json:"exit_time"`
	AdditionalFee int64     `json:"additional_fee"`
}
