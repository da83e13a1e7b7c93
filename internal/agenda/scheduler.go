package agenda

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/denapp-control/backend/internal/storage/models"
)

// DefaultDailySpec runs the daily full resync at midnight.
const DefaultDailySpec = "0 0 0 * * *"

// Scheduler runs agenda sync cycles on a fixed interval and once a day.
type Scheduler struct {
	cron    *cron.Cron
	service *Service

	interval  time.Duration
	dailySpec string

	// initial tracks the startup sync, which runs outside cron.
	initial sync.WaitGroup

	mu          sync.RWMutex
	running     bool
	intervalJob cron.EntryID
	dailyJob    cron.EntryID
}

// NewScheduler creates a sync scheduler for service. intervalMin <= 0
// falls back to 5 minutes; an empty dailySpec to midnight.
func NewScheduler(service *Service, intervalMin int, dailySpec string) *Scheduler {
	if intervalMin <= 0 {
		intervalMin = 5
	}
	if dailySpec == "" {
		dailySpec = DefaultDailySpec
	}

	logger := cron.PrintfLogger(log.Default())
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		service:   service,
		interval:  time.Duration(intervalMin) * time.Minute,
		dailySpec: dailySpec,
	}
	service.schedule = s
	return s
}

// Start registers the periodic and daily jobs, starts the timers and runs
// an initial sync in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	log.Println("Starting agenda sync scheduler...")

	if !s.service.Configured() {
		log.Println("Agenda sheet not configured; scheduler not started")
		return ErrUnconfigured
	}

	intervalID, err := s.cron.AddFunc("@every "+s.interval.String(), func() {
		s.runSync(models.SyncTriggerInterval)
	})
	if err != nil {
		return fmt.Errorf("scheduling agenda sync: %w", err)
	}

	dailyID, err := s.cron.AddFunc(s.dailySpec, func() {
		log.Println("Starting daily full agenda synchronization")
		s.runSync(models.SyncTriggerDaily)
	})
	if err != nil {
		s.cron.Remove(intervalID)
		return fmt.Errorf("scheduling daily agenda sync %q: %w", s.dailySpec, err)
	}

	s.mu.Lock()
	s.intervalJob = intervalID
	s.dailyJob = dailyID
	s.running = true
	s.mu.Unlock()

	s.cron.Start()
	log.Printf("Agenda scheduler started - syncing every %s, daily at %q", s.interval, s.dailySpec)

	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		s.runSync(models.SyncTriggerStartup)
	}()
	return nil
}

// Stop halts the timers and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()
	if !wasRunning {
		return
	}

	log.Println("Stopping agenda sync scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.initial.Wait()
	log.Println("Agenda scheduler stopped")
}

// TriggerSync runs a manual sync and waits for it. A cycle that is already
// running makes this a no-op returning ErrSyncInProgress.
func (s *Scheduler) TriggerSync(ctx context.Context) (*models.SyncResult, error) {
	log.Println("Forcing immediate agenda synchronization")
	return s.service.Sync(ctx, models.SyncTriggerManual)
}

// runSync is the timer callback. Failures are already recorded by the
// service; the next tick fires regardless.
func (s *Scheduler) runSync(trigger string) {
	_, err := s.service.Sync(context.Background(), trigger)
	if err != nil && !errors.Is(err, ErrSyncInProgress) {
		log.Printf("Scheduled agenda sync (%s) failed: %v", trigger, err)
	}
}

// Running reports whether the timers are active.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// NextRun returns the next periodic sync time, or nil when not scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return nil
	}
	entry := s.cron.Entry(s.intervalJob)
	if entry.Next.IsZero() {
		return nil
	}
	next := entry.Next
	return &next
}

// NextDailyRun returns the next daily resync time, or nil when not scheduled.
func (s *Scheduler) NextDailyRun() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return nil
	}
	entry := s.cron.Entry(s.dailyJob)
	if entry.Next.IsZero() {
		return nil
	}
	next := entry.Next
	return &next
}
