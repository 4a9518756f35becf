package entities

import "time"

type ReservationRequest struct {
	LocationID string    `json:"location_id"`
	VehicleID  string    `json:"vehicle_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

type ConfirmRequest struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
}

type SpotRequest struct {
	Number       int    `json:"number"`
	SizeClass    string `json:"size_class"`
	OutOfService bool   `json:"out_of_service"`
}
