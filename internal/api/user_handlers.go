package api

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"parkspot/internal/auth"
	"parkspot/internal/db"
	"parkspot/internal/entities"
	apperrors "parkspot/internal/errors"
	"parkspot/internal/service"
)

// CheckoutCreator opens a hosted payment page for a pending reservation.
type CheckoutCreator interface {
	CreateCheckoutSession(res *db.Reservation, customerEmail string) (url string, sessionID string, err error)
}

// Refunder returns money for a cancelled reservation.
type Refunder interface {
	Refund(paymentIntentID string, amount int64) error
}

type UserReservationHandler struct {
	Service  *service.ReservationService
	Checkout CheckoutCreator
	Refunds  Refunder
	Contacts service.ContactFinder
}

func NewUserReservationHandler(svc *service.ReservationService) *UserReservationHandler {
	return &UserReservationHandler{Service: svc}
}

func (h *UserReservationHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req entities.AvailabilityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	locationID, err := parseUUID(req.LocationID, "location_id")
	if err != nil {
		writeError(w, err)
		return
	}
	free, err := h.Service.GetAvailability(r.Context(), locationID, req.StartTime, req.EndTime)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.AvailabilityResponse{
		LocationID:         locationID.String(),
		RequestedStartTime: req.StartTime,
		RequestedEndTime:   req.EndTime,
		FreeSpots:          free,
		IsAvailable:        free > 0,
	})
}

func (h *UserReservationHandler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	customerID, err := auth.CustomerID(r.Context())
	if err != nil {
		writeError(w, apperrors.ErrForbidden(err.Error()))
		return
	}
	var req entities.ReservationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	locationID, err := parseUUID(req.LocationID, "location_id")
	if err != nil {
		writeError(w, err)
		return
	}
	vehicleID, err := parseUUID(req.VehicleID, "vehicle_id")
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.Service.CreateReservation(r.Context(), service.CreateReservationRequest{
		LocationID: locationID,
		CustomerID: customerID,
		VehicleID:  vehicleID,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := entities.NewReservationResponse(res)
	if h.Checkout != nil {
		url, _, err := h.Checkout.CreateCheckoutSession(res, h.customerEmail(r.Context(), customerID))
		if err != nil {
			// the reservation stays pending and expires if never paid
			log.Printf("Error creating checkout session for %s: %v", res.ID, err)
		} else {
			resp.CheckoutURL = url
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *UserReservationHandler) customerEmail(ctx context.Context, customerID uuid.UUID) string {
	if h.Contacts == nil {
		return ""
	}
	contact, err := h.Contacts.GetContact(ctx, customerID)
	if err != nil || contact == nil {
		return ""
	}
	return contact.Email
}

// owned loads a reservation and checks it belongs to the calling customer.
func (h *UserReservationHandler) owned(r *http.Request) (*db.Reservation, error) {
	customerID, err := auth.CustomerID(r.Context())
	if err != nil {
		return nil, apperrors.ErrForbidden(err.Error())
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		return nil, err
	}
	res, err := h.Service.GetReservation(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if res.CustomerID != customerID {
		// same answer as a missing reservation
		return nil, apperrors.ErrReservationNotFound
	}
	return res, nil
}

func (h *UserReservationHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.owned(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.NewReservationResponse(res))
}

func (h *UserReservationHandler) ListMyReservations(w http.ResponseWriter, r *http.Request) {
	customerID, err := auth.CustomerID(r.Context())
	if err != nil {
		writeError(w, apperrors.ErrForbidden(err.Error()))
		return
	}
	list, err := h.Service.ListByCustomer(r.Context(), customerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.NewReservationsList(list))
}

func (h *UserReservationHandler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.owned(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.Service.CancelReservation(r.Context(), res.ID, h.Service.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	if result.Refund > 0 && h.Refunds != nil && result.Reservation.TransactionID != "" {
		if err := h.Refunds.Refund(result.Reservation.TransactionID, result.Refund); err != nil {
			log.Printf("Error issuing refund of %d for reservation %s: %v", result.Refund, res.ID, err)
		}
	}
	writeJSON(w, http.StatusOK, entities.CancelResponse{
		Reservation: entities.NewReservationResponse(result.Reservation),
		Refund:      result.Refund,
	})
}

// Events serves the reservation event log to polling collaborators.
func (h *UserReservationHandler) Events(w http.ResponseWriter, r *http.Request) {
	var after int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeError(w, apperrors.ErrBadRequest("Invalid after"))
			return
		}
		after = n
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.Service.Events(r.Context(), after, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]entities.EventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, entities.EventResponse{
			Seq:           ev.Seq,
			ReservationID: ev.ReservationID.String(),
			From:          string(ev.From),
			To:            string(ev.To),
			At:            ev.At,
			Detail:        ev.Detail,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
