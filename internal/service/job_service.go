package service

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"parkspot/internal/repository"
)

const sweepBatch = 100

type SweepReport struct {
	Expired   int
	Activated int
	Completed int
	Released  int // claims dropped after another process ended the reservation
}

// JobService is the expiry sweeper: it reconciles time-driven transitions that no
// caller triggers. Every step is a compare-and-swap, so runs are idempotent and may
// overlap with direct cancels or confirms.
type JobService struct {
	Reservations *ReservationService
	Due          repository.DueFinder

	mu   sync.Mutex // one sweep at a time per process
	cron *cron.Cron
}

func NewJobService(reservations *ReservationService, due repository.DueFinder) *JobService {
	return &JobService{Reservations: reservations, Due: due}
}

// RunOnce performs a full sweep.
func (s *JobService) RunOnce(ctx context.Context) (SweepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report SweepReport
	released, _, err := s.Reservations.Reconcile(ctx)
	if err != nil {
		return report, fmt.Errorf("cron job: failed to reconcile availability index: %w", err)
	}
	report.Released = released
	now := s.Reservations.now()

	stale, err := s.Due.PendingPastDeadline(ctx, now, nil, sweepBatch)
	if err != nil {
		return report, fmt.Errorf("cron job: failed to get pending reservations past deadline: %w", err)
	}
	for _, res := range stale {
		if _, err := s.Reservations.Expire(ctx, res.ID); err != nil {
			s.skip("expire", res.ID.String(), err)
			continue
		}
		report.Expired++
	}

	started, err := s.Due.ConfirmedPastStart(ctx, now, sweepBatch)
	if err != nil {
		return report, fmt.Errorf("cron job: failed to get confirmed reservations past start: %w", err)
	}
	for _, res := range started {
		if _, err := s.Reservations.Activate(ctx, res.ID); err != nil {
			s.skip("activate", res.ID.String(), err)
			continue
		}
		report.Activated++
	}

	ended, err := s.Due.InUsePastEnd(ctx, now, sweepBatch)
	if err != nil {
		return report, fmt.Errorf("cron job: failed to get reservations past end time: %w", err)
	}
	for _, res := range ended {
		if _, err := s.Reservations.Complete(ctx, res.ID); err != nil {
			s.skip("complete", res.ID.String(), err)
			continue
		}
		report.Completed++
	}

	if report != (SweepReport{}) {
		log.Printf("Cron Job: expired %d, activated %d, completed %d reservations, released %d stale claims",
			report.Expired, report.Activated, report.Completed, report.Released)
	}
	return report, nil
}

// skip logs failures other than losing a race to another writer.
func (s *JobService) skip(step, id string, err error) {
	if isLostRace(err) {
		return
	}
	log.Printf("Cron Job: failed to %s reservation %s: %v", step, id, err)
}

// Start schedules RunOnce on a cron spec such as "@every 30s".
func (s *JobService) Start(ctx context.Context, spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			log.Printf("Cron Job: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	s.cron = c
	c.Start()
	log.Printf("Cron Job: reservation sweeper scheduled (%s)", spec)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *JobService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
