package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"parkspot/internal/db"
	apperrors "parkspot/internal/errors"
	"parkspot/internal/service"
)

// Confirmer applies a payment outcome to a pending reservation.
type Confirmer interface {
	ConfirmReservation(ctx context.Context, id uuid.UUID, payment service.PaymentResult) (*db.Reservation, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*db.Reservation, error)
}

type StripeWebhookHandler struct {
	StripeSecret string
	Refunds      Refunder // returns payments that could not confirm their reservation
	reservations Confirmer
}

func NewStripeWebhookHandler(stripeSecret string, reservations Confirmer) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		StripeSecret: stripeSecret,
		reservations: reservations,
	}
}

func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Error reading body: %v", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.StripeSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		log.Printf("Webhook signature verification failed: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var payment service.PaymentResult
	switch event.Type {
	case "checkout.session.completed":
		payment.Success = true
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		payment.Success = false
	default:
		log.Printf("Unhandled event type: %s", event.Type)
		w.WriteHeader(http.StatusOK)
		return
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		log.Printf("Error parsing checkout.session: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	reservationID, err := uuid.Parse(sess.ClientReferenceID)
	if err != nil {
		log.Printf("Checkout session %s has no reservation reference", sess.ID)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if sess.PaymentIntent != nil {
		payment.TransactionID = sess.PaymentIntent.ID
	}

	_, err = h.reservations.ConfirmReservation(r.Context(), reservationID, payment)
	switch {
	case err == nil, errors.Is(err, apperrors.ErrPaymentFailed):
	case errors.Is(err, apperrors.ErrAlreadyTerminal), errors.Is(err, apperrors.ErrInvalidTransition),
		errors.Is(err, apperrors.ErrConfirmationExpired), errors.Is(err, apperrors.ErrReservationNotFound):
		log.Printf("Stripe event %s for reservation %s not applied: %v", event.Type, reservationID, err)
		if payment.Success {
			if err := h.refundUnapplied(r.Context(), reservationID, payment.TransactionID, sess.AmountTotal); err != nil {
				log.Printf("Error refunding payment %s for reservation %s: %v", payment.TransactionID, reservationID, err)
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		}
	default:
		log.Printf("Error applying %s to reservation %s: %v", event.Type, reservationID, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// refundUnapplied gives back a completed payment that did not confirm the
// reservation: it arrived after the deadline, or another payment settled the
// reservation first. A redelivery of the confirming payment is left alone.
func (h *StripeWebhookHandler) refundUnapplied(ctx context.Context, reservationID uuid.UUID, paymentIntentID string, amount int64) error {
	if h.Refunds == nil || paymentIntentID == "" || amount <= 0 {
		return nil
	}
	res, err := h.reservations.GetReservation(ctx, reservationID)
	switch {
	case err == nil && res.TransactionID == paymentIntentID:
		return nil
	case err != nil && !errors.Is(err, apperrors.ErrReservationNotFound):
		return err
	}
	if err := h.Refunds.Refund(paymentIntentID, amount); err != nil {
		return err
	}
	log.Printf("Refunded %d on payment %s, reservation %s was not confirmed by it", amount, paymentIntentID, reservationID)
	return nil
}
