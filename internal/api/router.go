package api

import (
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"parkspot/internal/auth"
)

type Handlers struct {
	User      *UserReservationHandler
	Admin     *AdminHandler
	AdminAuth *AdminAuthHandler
	Stripe    *StripeWebhookHandler
}

// NewRouter wires every endpoint. Customer routes need a customer token, admin
// routes an admin token; availability and the Stripe webhook are public.
// Payment results only arrive through the webhook or an admin, never from the customer.
func NewRouter(h Handlers, jwtSecret []byte, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()
	requireToken := auth.Middleware(jwtSecret)

	// Public endpoints
	r.HandleFunc("/api/availability", h.User.CheckAvailability).Methods("POST")
	if h.Stripe != nil {
		r.HandleFunc("/api/stripe/webhook", h.Stripe.HandleWebhook).Methods("POST")
	}
	if h.AdminAuth != nil {
		r.HandleFunc("/admin/login", h.AdminAuth.Login).Methods("POST")
	}

	// Customer endpoints
	customer := r.PathPrefix("/api").Subrouter()
	customer.Use(requireToken)
	customer.HandleFunc("/reservations", h.User.CreateReservation).Methods("POST")
	customer.HandleFunc("/reservations", h.User.ListMyReservations).Methods("GET")
	customer.HandleFunc("/reservations/{id}", h.User.GetReservation).Methods("GET")
	customer.HandleFunc("/reservations/{id}", h.User.CancelReservation).Methods("DELETE")

	// Admin endpoints (protected)
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(requireToken, auth.RequireRole(auth.RoleAdmin))
	admin.HandleFunc("/events", h.User.Events).Methods("GET")
	if h.AdminAuth != nil {
		admin.HandleFunc("/admins", h.AdminAuth.CreateUserAdmin).Methods("POST")
	}
	admin.HandleFunc("/locations/{id}/spots", h.Admin.ListSpots).Methods("GET")
	admin.HandleFunc("/locations/{id}/spots", h.Admin.AddSpot).Methods("POST")
	admin.HandleFunc("/locations/{id}/reservations", h.Admin.ListReservations).Methods("GET")
	admin.HandleFunc("/spots/{id}", h.Admin.UpdateSpot).Methods("PUT")
	admin.HandleFunc("/spots/{id}/reservations", h.Admin.ListSpotReservations).Methods("GET")
	admin.HandleFunc("/reservations/{id}/overstay", h.Admin.Overstay).Methods("GET")
	admin.HandleFunc("/reservations/{id}/confirm", h.Admin.ConfirmReservation).Methods("POST")

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(allowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	return handlers.LoggingHandler(os.Stdout, cors(r))
}
