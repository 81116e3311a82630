package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler runs named background jobs on cron expressions (with seconds).
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[string]cron.EntryID // name -> entry_id
	jobsMux sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(), // Support seconds in cron expressions
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		jobs: make(map[string]cron.EntryID),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("jobs", len(s.Jobs())).Msg("⏰ Scheduler started")
}

// Stop stops the scheduler and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		log.Info().Msg("✅ Scheduler stopped")
	case <-ctx.Done():
		log.Warn().Msg("⚠️ Scheduler stop timed out with jobs still running")
	}
}

// AddJob schedules job under name, replacing any job with the same name.
// schedule is a six-field cron expression, e.g. "0 */5 * * * *".
func (s *Scheduler) AddJob(name string, schedule string, job func()) error {
	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	// Remove existing job if any
	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
	}

	entryID, err := s.cron.AddFunc(schedule, job)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.jobs[name] = entryID
	log.Info().Str("job", name).Str("schedule", schedule).Msg("   ✅ Scheduled job")

	return nil
}

// RemoveJob removes a job from the scheduler
func (s *Scheduler) RemoveJob(name string) {
	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
	}
}

// Jobs returns the names of all scheduled jobs, sorted.
func (s *Scheduler) Jobs() []string {
	s.jobsMux.RLock()
	defer s.jobsMux.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
