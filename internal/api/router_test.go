package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"parkspot/internal/auth"
	"parkspot/internal/db"
	"parkspot/internal/entities"
	"parkspot/internal/repository"
	"parkspot/internal/service"
)

var testSecret = []byte("router-test-secret")

const webhookSecret = "whsec_test"

type fakeRefunder struct {
	calls []string
}

func (f *fakeRefunder) Refund(paymentIntentID string, amount int64) error {
	f.calls = append(f.calls, fmt.Sprintf("%s:%d", paymentIntentID, amount))
	return nil
}

type testEnv struct {
	store   *repository.MemoryStore
	svc     *service.ReservationService
	refunds *fakeRefunder
	loc     db.ParkingLocation
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{store: repository.NewMemoryStore(), refunds: &fakeRefunder{}}
	env.loc = db.ParkingLocation{ID: uuid.New(), ProviderID: uuid.New(), Name: "Central", HourlyRate: 500, ClosesAt: 24 * 60}
	env.store.AddLocation(env.loc)
	for n := 1; n <= 2; n++ {
		spot := db.ParkingSpot{ID: uuid.New(), LocationID: env.loc.ID, Number: n, SizeClass: db.SizeStandard}
		require.NoError(t, env.store.AddSpot(context.Background(), &spot))
	}
	require.NoError(t, env.store.CreateNewUser(context.Background(), "root@example.com", "s3cret"))

	env.svc = service.NewReservationService(env.store, env.store, env.store, service.DefaultPolicy())
	require.NoError(t, env.svc.Rebuild(context.Background()))

	user := NewUserReservationHandler(env.svc)
	user.Refunds = env.refunds
	stripeHandler := NewStripeWebhookHandler(webhookSecret, env.svc)
	stripeHandler.Refunds = env.refunds
	env.handler = NewRouter(Handlers{
		User:      user,
		Admin:     NewAdminHandler(service.NewAdminService(env.svc)),
		AdminAuth: NewAdminAuthHandler(service.NewAdminAuthService(env.store, testSecret)),
		Stripe:    stripeHandler,
	}, testSecret, nil)
	return env
}

func customerToken(t *testing.T, id uuid.UUID) string {
	t.Helper()
	token, err := auth.IssueToken(testSecret, id.String(), auth.RoleCustomer, time.Hour)
	require.NoError(t, err)
	return token
}

func (env *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) reserve(t *testing.T, token string, lead, d time.Duration) entities.ReservationResponse {
	t.Helper()
	start := time.Now().UTC().Add(lead).Truncate(time.Minute)
	rec := env.do(t, http.MethodPost, "/api/reservations", token, entities.ReservationRequest{
		LocationID: env.loc.ID.String(),
		VehicleID:  uuid.NewString(),
		StartTime:  start,
		EndTime:    start.Add(d),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res entities.ReservationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestAvailabilityIsPublic(t *testing.T) {
	env := newTestEnv(t)
	start := time.Now().UTC().Add(2 * time.Hour)

	rec := env.do(t, http.MethodPost, "/api/availability", "", entities.AvailabilityRequest{
		LocationID: env.loc.ID.String(),
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp entities.AvailabilityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.FreeSpots)
	assert.True(t, resp.IsAvailable)

	rec = env.do(t, http.MethodPost, "/api/availability", "", entities.AvailabilityRequest{
		LocationID: env.loc.ID.String(),
		StartTime:  start,
		EndTime:    start,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/availability", "", entities.AvailabilityRequest{
		LocationID: uuid.NewString(),
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReservationLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	customer := uuid.New()
	token := customerToken(t, customer)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/reservations", "", nil).Code)

	res := env.reserve(t, token, 48*time.Hour, 90*time.Minute)
	assert.Equal(t, "pending", res.Status)
	assert.Equal(t, int64(1000), res.Fee)
	assert.Equal(t, customer.String(), res.CustomerID)

	rec := env.do(t, http.MethodGet, "/api/reservations/"+res.ID, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	stranger := customerToken(t, uuid.New())
	rec = env.do(t, http.MethodGet, "/api/reservations/"+res.ID, stranger, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "foreign reservations are invisible")

	rec = env.do(t, http.MethodGet, "/api/reservations", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list entities.ReservationsList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)

	admin := adminToken(t, env)
	rec = env.do(t, http.MethodPost, "/admin/reservations/"+res.ID+"/confirm", admin, entities.ConfirmRequest{Success: true, TransactionID: "pi_http"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/admin/reservations/"+res.ID+"/confirm", admin, entities.ConfirmRequest{Success: true})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/reservations/"+res.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cancelled entities.CancelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	assert.Equal(t, int64(1000), cancelled.Refund)
	assert.Equal(t, "cancelled", cancelled.Reservation.Status)
	assert.Equal(t, []string{"pi_http:1000"}, env.refunds.calls)

	rec = env.do(t, http.MethodDelete, "/api/reservations/"+res.ID, token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, env.refunds.calls, 1, "no second refund")
}

func TestPaymentFailureOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	token := customerToken(t, uuid.New())
	res := env.reserve(t, token, 2*time.Hour, time.Hour)

	rec := env.do(t, http.MethodPost, "/admin/reservations/"+res.ID+"/confirm", adminToken(t, env), entities.ConfirmRequest{Success: false})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestCustomerCannotConfirmOwnPayment(t *testing.T) {
	env := newTestEnv(t)
	token := customerToken(t, uuid.New())
	res := env.reserve(t, token, 2*time.Hour, time.Hour)
	paid := entities.ConfirmRequest{Success: true, TransactionID: "pi_self"}

	rec := env.do(t, http.MethodPost, "/admin/reservations/"+res.ID+"/confirm", token, paid)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/reservations/"+res.ID+"/confirm", token, paid)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	got, err := env.svc.GetReservation(context.Background(), uuid.MustParse(res.ID))
	require.NoError(t, err)
	assert.Equal(t, db.StatusPending, got.Status)
	assert.Empty(t, got.TransactionID)

	rec = env.do(t, http.MethodDelete, "/api/reservations/"+res.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.refunds.calls, "nothing was paid, nothing is refunded")
}

func TestCreateReservationRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	token := customerToken(t, uuid.New())
	start := time.Now().UTC().Add(time.Hour)

	rec := env.do(t, http.MethodPost, "/api/reservations", token, entities.ReservationRequest{
		LocationID: "not-a-uuid",
		VehicleID:  uuid.NewString(),
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/reservations", token, entities.ReservationRequest{
		LocationID: env.loc.ID.String(),
		VehicleID:  uuid.NewString(),
		StartTime:  start.Add(-2 * time.Hour),
		EndTime:    start,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLocationFullReturnsConflict(t *testing.T) {
	env := newTestEnv(t)
	token := customerToken(t, uuid.New())
	env.reserve(t, token, time.Hour, time.Hour)
	env.reserve(t, token, time.Hour, time.Hour)

	start := time.Now().UTC().Add(time.Hour).Truncate(time.Minute)
	rec := env.do(t, http.MethodPost, "/api/reservations", token, entities.ReservationRequest{
		LocationID: env.loc.ID.String(),
		VehicleID:  uuid.NewString(),
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func adminToken(t *testing.T, env *testEnv) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/admin/login", "", LoginRequest{Email: "root@example.com", Password: "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func TestAdminLogin(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/admin/login", "", LoginRequest{Email: "root@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, adminToken(t, env))
}

func TestAdminEndpointsRequireAdminRole(t *testing.T) {
	env := newTestEnv(t)
	path := "/admin/locations/" + env.loc.ID.String() + "/spots"

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, path, "", nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, path, customerToken(t, uuid.New()), nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, path, adminToken(t, env), nil).Code)
}

func TestAdminSpotManagement(t *testing.T) {
	env := newTestEnv(t)
	admin := adminToken(t, env)
	customer := customerToken(t, uuid.New())
	res := env.reserve(t, customer, time.Hour, time.Hour)

	rec := env.do(t, http.MethodGet, "/admin/locations/"+env.loc.ID.String()+"/spots?at="+res.StartTime.Format(time.RFC3339), admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var spots []entities.SpotStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &spots))
	require.Len(t, spots, 2)
	assert.Equal(t, "reserved", spots[0].Status)
	assert.Equal(t, "free", spots[1].Status)

	rec = env.do(t, http.MethodPut, "/admin/spots/"+spots[1].ID, admin, entities.SpotRequest{SizeClass: "compact", OutOfService: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/admin/locations/"+env.loc.ID.String()+"/spots", admin, entities.SpotRequest{Number: 3, SizeClass: "large"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/admin/locations/"+env.loc.ID.String()+"/spots", admin, entities.SpotRequest{Number: 4, SizeClass: "bus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/admin/locations/"+env.loc.ID.String()+"/reservations", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list entities.ReservationsList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)

	rec = env.do(t, http.MethodGet, "/admin/events?after=0", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []entities.EventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "pending", events[0].To)

	rec = env.do(t, http.MethodGet, "/admin/reservations/"+res.ID+"/overstay", admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "pending reservations have no overstay")
}

func signedEvent(t *testing.T, eventType string, reservationID string) (payload []byte, header string) {
	t.Helper()
	return signedPayment(t, eventType, reservationID, "pi_webhook", 500)
}

func signedPayment(t *testing.T, eventType, reservationID, paymentIntent string, amount int64) (payload []byte, header string) {
	t.Helper()
	payload = []byte(fmt.Sprintf(`{
		"id": "evt_test",
		"object": "event",
		"type": %q,
		"data": {"object": {"id": "cs_test", "object": "checkout.session", "client_reference_id": %q, "payment_intent": %q, "amount_total": %d}}
	}`, eventType, reservationID, paymentIntent, amount))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func (env *testEnv) webhook(t *testing.T, payload []byte, header string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestStripeWebhookConfirmsReservation(t *testing.T) {
	env := newTestEnv(t)
	res := env.reserve(t, customerToken(t, uuid.New()), time.Hour, time.Hour)
	id := uuid.MustParse(res.ID)

	payload, header := signedEvent(t, "checkout.session.completed", res.ID)
	assert.Equal(t, http.StatusOK, env.webhook(t, payload, header))

	got, err := env.svc.GetReservation(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, db.StatusConfirmed, got.Status)
	assert.Equal(t, "pi_webhook", got.TransactionID)

	// redelivery is acknowledged without changes
	assert.Equal(t, http.StatusOK, env.webhook(t, payload, header))
	assert.Empty(t, env.refunds.calls, "the confirming payment is kept")
}

func TestStripeWebhookRefundsLatePayment(t *testing.T) {
	env := newTestEnv(t)
	res := env.reserve(t, customerToken(t, uuid.New()), time.Hour, time.Hour)
	env.svc.Now = func() time.Time { return time.Now().UTC().Add(20 * time.Minute) }

	payload, header := signedEvent(t, "checkout.session.completed", res.ID)
	assert.Equal(t, http.StatusOK, env.webhook(t, payload, header))

	got, err := env.svc.GetReservation(context.Background(), uuid.MustParse(res.ID))
	require.NoError(t, err)
	assert.Equal(t, db.StatusExpired, got.Status)
	assert.Equal(t, []string{"pi_webhook:500"}, env.refunds.calls)
}

func TestStripeWebhookRefundsSecondPayment(t *testing.T) {
	env := newTestEnv(t)
	res := env.reserve(t, customerToken(t, uuid.New()), time.Hour, time.Hour)

	payload, header := signedEvent(t, "checkout.session.completed", res.ID)
	require.Equal(t, http.StatusOK, env.webhook(t, payload, header))

	payload, header = signedPayment(t, "checkout.session.completed", res.ID, "pi_second", 500)
	assert.Equal(t, http.StatusOK, env.webhook(t, payload, header))
	assert.Equal(t, []string{"pi_second:500"}, env.refunds.calls)

	got, err := env.svc.GetReservation(context.Background(), uuid.MustParse(res.ID))
	require.NoError(t, err)
	assert.Equal(t, "pi_webhook", got.TransactionID)
}

func TestStripeWebhookExpiredSessionReleasesSpot(t *testing.T) {
	env := newTestEnv(t)
	res := env.reserve(t, customerToken(t, uuid.New()), time.Hour, time.Hour)

	payload, header := signedEvent(t, "checkout.session.expired", res.ID)
	assert.Equal(t, http.StatusOK, env.webhook(t, payload, header))

	got, err := env.svc.GetReservation(context.Background(), uuid.MustParse(res.ID))
	require.NoError(t, err)
	assert.Equal(t, db.StatusCancelled, got.Status)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	payload, _ := signedEvent(t, "checkout.session.completed", uuid.NewString())
	assert.Equal(t, http.StatusBadRequest, env.webhook(t, payload, "t=1,v1=deadbeef"))
}
