package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"parkspot/internal/config"
	"parkspot/internal/db"
	"parkspot/internal/repository"
	"parkspot/internal/service"
)

// app holds the stores and services shared by the subcommands.
type app struct {
	cfg          config.Config
	sqlDB        *sql.DB
	redis        *redis.Client
	memory       *repository.MemoryStore
	reservations *service.ReservationService
	jobs         *service.JobService
	admins       repository.AdminAuthRepository
	contacts     service.ContactFinder
}

func policyFromConfig(cfg config.Config) service.Policy {
	p := service.DefaultPolicy()
	p.ConfirmationGrace = cfg.ConfirmationGrace
	p.MaxDuration = cfg.MaxDuration
	p.MaxClaimAttempts = cfg.MaxClaimAttempts
	p.AllowMidSessionCancel = cfg.AllowMidSessionCancel
	p.SweepOnRead = cfg.SweepOnRead
	p.Refund.PartialPercent = cfg.PartialRefundPercent
	return p
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}
	policy := policyFromConfig(cfg)

	switch cfg.Store {
	case "memory":
		a.memory = repository.NewMemoryStore()
		seedDemo(a.memory, cfg.DemoSpots)
		a.reservations = service.NewReservationService(a.memory, a.memory, a.memory, policy)
		a.jobs = service.NewJobService(a.reservations, a.memory)
		a.admins = a.memory
		a.contacts = a.memory
	default:
		conn, err := db.Open(cfg.DatabaseURL, 10, 2*time.Second)
		if err != nil {
			return nil, err
		}
		a.sqlDB = conn
		jobs := repository.NewJobRepository(conn)
		a.reservations = service.NewReservationService(
			repository.NewReservationRepository(conn),
			repository.NewSpotRepository(conn),
			jobs,
			policy,
		)
		a.jobs = service.NewJobService(a.reservations, jobs)
		a.admins = repository.NewAdminAuthRepository(conn)
		a.contacts = repository.NewContactRepository(conn)
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Printf("Redis at %s unavailable, availability cache disabled: %v", cfg.RedisAddr, err)
			client.Close()
		} else {
			a.redis = client
			a.reservations.Cache = repository.NewAvailabilityCache(client, cfg.CacheTTL)
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.sqlDB != nil {
		a.sqlDB.Close()
	}
}

// seedDemo gives the in-memory store one open-all-day location to book against.
func seedDemo(m *repository.MemoryStore, spots int) {
	if spots == 0 {
		return
	}
	loc := db.ParkingLocation{
		ID:         uuid.New(),
		ProviderID: uuid.New(),
		Name:       "Demo Garage",
		HourlyRate: 500,
		ClosesAt:   24 * 60,
		CreatedAt:  time.Now().UTC(),
	}
	m.AddLocation(loc)
	for n := 1; n <= spots; n++ {
		spot := db.ParkingSpot{ID: uuid.New(), LocationID: loc.ID, Number: n, SizeClass: db.SizeStandard}
		if err := m.AddSpot(context.Background(), &spot); err != nil {
			log.Printf("Error seeding spot %d: %v", n, err)
		}
	}
	log.Printf("Demo location %s seeded with %d spots", loc.ID, spots)
}

// bootstrapAdmin creates the ADMIN_EMAIL account on first start.
func (a *app) bootstrapAdmin(ctx context.Context) error {
	if a.cfg.AdminEmail == "" || a.cfg.AdminPassword == "" {
		return nil
	}
	existing, err := a.admins.GetByEmail(ctx, a.cfg.AdminEmail)
	if err != nil {
		return fmt.Errorf("looking up bootstrap admin: %w", err)
	}
	if existing != nil {
		return nil
	}
	if err := a.admins.CreateNewUser(ctx, a.cfg.AdminEmail, a.cfg.AdminPassword); err != nil {
		return fmt.Errorf("creating bootstrap admin: %w", err)
	}
	log.Printf("Admin %s created", a.cfg.AdminEmail)
	return nil
}

func requireSecret(cfg config.Config) error {
	if len(cfg.JWTSecret) == 0 {
		return fmt.Errorf("JWT_SECRET not set")
	}
	return nil
}
