package entities

import "time"

type AvailabilityRequest struct {
	LocationID string    `json:"location_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

type AvailabilityResponse struct {
	LocationID         string    `json:"location_id"`
	RequestedStartTime time.Time `json:"requested_start_time"`
	RequestedEndTime   time.Time `json:"requested_end_time"`
	FreeSpots          int       `json:"free_spots"`
	IsAvailable        bool      `json:"is_available"`
}

type SpotStatusResponse struct {
	ID           string `json:"id"`
	Number       int    `json:"number"`
	SizeClass    string `json:"size_class"`
	OutOfService bool   `json:"out_of_service"`
	Status       string `json:"status"`
}
