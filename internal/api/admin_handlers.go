package api

import (
	"net/http"
	"time"

	"parkspot/internal/entities"
	"parkspot/internal/service"
)

type AdminHandler struct {
	Service *service.AdminService
	Now     func() time.Time
}

func NewAdminHandler(svc *service.AdminService) *AdminHandler {
	return &AdminHandler{Service: svc, Now: func() time.Time { return time.Now().UTC() }}
}

func (h *AdminHandler) ListReservations(w http.ResponseWriter, r *http.Request) {
	locationID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	reservations, err := h.Service.ListReservations(r.Context(), locationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.NewReservationsList(reservations))
}

func (h *AdminHandler) ListSpotReservations(w http.ResponseWriter, r *http.Request) {
	spotID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	reservations, err := h.Service.ListSpotReservations(r.Context(), spotID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.NewReservationsList(reservations))
}

// ListSpots shows each spot with its status at ?at= (default now).
func (h *AdminHandler) ListSpots(w http.ResponseWriter, r *http.Request) {
	locationID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	at, err := queryTime(r, "at", h.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	views, err := h.Service.SpotStatuses(r.Context(), locationID, at)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]entities.SpotStatusResponse, 0, len(views))
	for _, v := range views {
		out = append(out, entities.SpotStatusResponse{
			ID:           v.Spot.ID.String(),
			Number:       v.Spot.Number,
			SizeClass:    string(v.Spot.SizeClass),
			OutOfService: v.Spot.OutOfService,
			Status:       string(v.Status),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) AddSpot(w http.ResponseWriter, r *http.Request) {
	locationID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req entities.SpotRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	spot, err := h.Service.AddSpot(r.Context(), locationID, req.Number, req.SizeClass)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entities.SpotStatusResponse{
		ID:        spot.ID.String(),
		Number:    spot.Number,
		SizeClass: string(spot.SizeClass),
		Status:    "free",
	})
}

func (h *AdminHandler) UpdateSpot(w http.ResponseWriter, r *http.Request) {
	spotID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req entities.SpotRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	spot, err := h.Service.UpdateSpot(r.Context(), spotID, req.SizeClass, req.OutOfService)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":             spot.ID.String(),
		"number":         spot.Number,
		"size_class":     spot.SizeClass,
		"out_of_service": spot.OutOfService,
	})
}

// Overstay reports the extra fee for a vehicle that left at ?exit= (default now).
func (h *AdminHandler) Overstay(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	exit, err := queryTime(r, "exit", h.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	res, fee, err := h.Service.Overstay(r.Context(), id, exit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.OverstayResponse{
		ReservationID: res.ID.String(),
		EndTime:       res.EndTime,
		ExitTime:      exit,
		AdditionalFee: fee,
	})
}

// ConfirmReservation applies a payment result reported by an operator.
func (h *AdminHandler) ConfirmReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req entities.ConfirmRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	updated, err := h.Service.ConfirmReservation(r.Context(), id, service.PaymentResult{
		Success:       req.Success,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.NewReservationResponse(updated))
}
