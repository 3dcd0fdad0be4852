// Package reminder implements the daily dose reminder scheduler. Each
// medicine contributes one recurring job per scheduled time; jobs are
// persisted so reminders survive restarts and are re-derived from the
// medicine list on startup.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/medikeep/medikeep/internal/medicine"
	"github.com/medikeep/medikeep/internal/metrics"
	"github.com/medikeep/medikeep/internal/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds scheduler settings
type Config struct {
	CheckInterval int // Seconds between due-job checks
	PerMinute     int // Delivery rate limit (0 = unlimited)
	Burst         int
}

// Scheduler manages reminder jobs and fires due ones
type Scheduler struct {
	config   Config
	store    *store.Store
	notifier Notifier
	logger   *zap.Logger
	limiter  *rate.Limiter
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new reminder scheduler
func NewScheduler(config Config, st *store.Store, notifier Notifier, logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if config.CheckInterval <= 0 {
		config.CheckInterval = 30
	}

	var limiter *rate.Limiter
	if config.PerMinute > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(config.PerMinute)/60.0), burst)
	}

	return &Scheduler{
		config:   config,
		store:    st,
		notifier: notifier,
		logger:   logger,
		limiter:  limiter,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// WithClock overrides the wall clock. Used by tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start starts the scheduler loop
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("reminder scheduler already running")
	}

	s.running = true
	s.wg.Add(1)
	go s.run()

	return nil
}

// Stop stops the scheduler loop
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info("Reminder scheduler stopped")
}

// IsRunning returns whether the scheduler loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Duration(s.config.CheckInterval) * time.Second)
	defer ticker.Stop()

	s.CheckDue()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.CheckDue()
		}
	}
}

// SyncMedicine replaces the medicine's reminder jobs with one per
// scheduled time. Times no longer scheduled are dropped with the
// replacement, so a sync after any edit leaves the schedule exact.
func (s *Scheduler) SyncMedicine(med *medicine.Medicine) error {
	if err := s.store.DeleteJobsForMedicine(med.ID); err != nil {
		return err
	}

	for _, at := range med.ScheduledTimes {
		at = medicine.PadTime(at)

		spec, err := cronSpecFor(at)
		if err != nil {
			s.logger.Warn("Skipping reminder with bad time",
				zap.Int("medicine_id", med.ID),
				zap.String("time", at),
				zap.Error(err))
			continue
		}

		next, err := nextRun(spec, s.now())
		if err != nil {
			return err
		}

		job := &store.ReminderJob{
			ID:             fmt.Sprintf("medicine-%d-%s", med.ID, at),
			MedicineID:     med.ID,
			Time:           at,
			Title:          fmt.Sprintf("Time for %s", med.Name),
			Body:           reminderBody(med, at),
			CronExpression: spec,
			IsActive:       true,
			NextRunAt:      &next,
		}
		if err := s.store.UpsertJob(job); err != nil {
			return err
		}
		metrics.RecordReminderScheduled()
	}

	s.logger.Info("Reminders synced",
		zap.Int("medicine_id", med.ID),
		zap.Int("times", len(med.ScheduledTimes)))
	return nil
}

// SyncAll rebuilds the full schedule from the medicine list. Called on
// startup so the job table always reflects current medicines.
func (s *Scheduler) SyncAll(meds []medicine.Medicine) error {
	for i := range meds {
		if err := s.SyncMedicine(&meds[i]); err != nil {
			return err
		}
	}
	return nil
}

// CancelMedicine drops every reminder for one medicine
func (s *Scheduler) CancelMedicine(medicineID int) error {
	return s.store.DeleteJobsForMedicine(medicineID)
}

// ListScheduled returns all reminder jobs
func (s *Scheduler) ListScheduled() ([]*store.ReminderJob, error) {
	return s.store.ListJobs()
}

// CheckDue fires every due job once and advances its next run time.
// Exposed so tests can drive the scheduler without the ticker loop.
func (s *Scheduler) CheckDue() {
	now := s.now()

	jobs, err := s.store.GetDueJobs(now, 50)
	if err != nil {
		s.logger.Error("Failed to get due reminders", zap.Error(err))
		return
	}

	for _, job := range jobs {
		s.fire(job, now)
	}
}

func (s *Scheduler) fire(job *store.ReminderJob, now time.Time) {
	// Advance the schedule before delivery so a slow or failing notifier
	// cannot make the same reminder fire again on the next check.
	job.LastRunAt = &now
	job.RunCount++

	next, err := nextRun(job.CronExpression, now)
	if err != nil {
		s.logger.Error("Failed to compute next run",
			zap.String("job_id", job.ID),
			zap.Error(err))
		job.IsActive = false
	} else {
		job.NextRunAt = &next
	}

	if err := s.store.UpdateJob(job); err != nil {
		s.logger.Error("Failed to update reminder state",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}
	}

	if err := s.notifier.Notify(Notification{Title: job.Title, Body: job.Body}); err != nil {
		s.logger.Error("Reminder delivery failed",
			zap.String("job_id", job.ID),
			zap.Error(err))
		metrics.RecordReminderDelivery(false)
		return
	}

	metrics.RecordReminderDelivery(true)
	s.logger.Info("Reminder delivered",
		zap.String("job_id", job.ID),
		zap.String("time", job.Time))
}

// cronSpecFor converts an HH:MM dose time into a daily cron expression
func cronSpecFor(at string) (string, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return "", fmt.Errorf("invalid reminder time %q: %w", at, err)
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}

// nextRun returns the next fire time for a standard cron expression
func nextRun(spec string, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return sched.Next(from), nil
}

func reminderBody(med *medicine.Medicine, at string) string {
	if med.Quantity > 0 {
		return fmt.Sprintf("Time to take %s (%s). %d doses remaining.", med.Name, at, med.Quantity)
	}
	return fmt.Sprintf("Time to take %s (%s). Stock is empty, refill needed.", med.Name, at)
}
