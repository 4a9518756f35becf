package service

import (
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/refund"

	"parkspot/internal/db"
)

// StripeService is the payment collaborator: it opens checkout sessions for pending
// reservations and issues refunds. The engine itself only sees PaymentResult values.
type StripeService struct {
	Currency   string
	SuccessURL string
	CancelURL  string
	Now        func() time.Time
}

func NewStripeService(secretKey, currency, successURL, cancelURL string) *StripeService {
	stripe.Key = secretKey
	return &StripeService{Currency: currency, SuccessURL: successURL, CancelURL: cancelURL, Now: time.Now}
}

// Stripe accepts session lifetimes between 30 minutes and 24 hours.
const (
	minCheckoutLifetime = 30*time.Minute + time.Minute
	maxCheckoutLifetime = 24 * time.Hour
)

// checkoutExpiresAt closes the session at the confirmation deadline, clamped to
// what Stripe accepts. A payment landing after the deadline is refunded by the
// webhook.
func checkoutExpiresAt(deadline, now time.Time) int64 {
	if lo := now.Add(minCheckoutLifetime); deadline.Before(lo) {
		deadline = lo
	}
	if hi := now.Add(maxCheckoutLifetime); deadline.After(hi) {
		deadline = hi
	}
	return deadline.Unix()
}

// CreateCheckoutSession returns the hosted payment URL and the session id.
// The reservation id travels as the client reference so the webhook can confirm it.
func (s *StripeService) CreateCheckoutSession(res *db.Reservation, customerEmail string) (string, string, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(s.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Parking reservation %s", res.ID)),
					},
					UnitAmount: stripe.Int64(res.Fee),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.SuccessURL),
		CancelURL:         stripe.String(s.CancelURL),
		ClientReferenceID: stripe.String(res.ID.String()),
		ExpiresAt:         stripe.Int64(checkoutExpiresAt(res.ConfirmationDeadline, s.Now())),
	}
	if customerEmail != "" {
		params.CustomerEmail = stripe.String(customerEmail)
	}
	params.AddMetadata("reservation_id", res.ID.String())

	sess, err := session.New(params)
	if err != nil {
		return "", "", err
	}
	return sess.URL, sess.ID, nil
}

// Refund returns amount cents of a captured payment intent.
func (s *StripeService) Refund(paymentIntentID string, amount int64) error {
	if paymentIntentID == "" {
		return fmt.Errorf("no payment intent to refund")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Amount:        stripe.Int64(amount),
	}
	// webhook redeliveries replay the same refund instead of issuing another
	params.SetIdempotencyKey(fmt.Sprintf("refund-%s-%d", paymentIntentID, amount))
	_, err := refund.New(params)
	return err
}
