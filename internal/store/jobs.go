package store

import (
	"fmt"
	"time"

	"gorm.io/gorm/clause"
)

// ReminderJob is one scheduled dose reminder, one row per medicine and
// scheduled time. The ID is deterministic ("medicine-<id>-<HH:MM>") so
// re-syncing a medicine upserts instead of duplicating.
type ReminderJob struct {
	ID             string     `gorm:"primaryKey" json:"id"`
	MedicineID     int        `gorm:"index" json:"medicine_id"`
	Time           string     `json:"time"`
	Title          string     `json:"title"`
	Body           string     `gorm:"type:text" json:"body"`
	CronExpression string     `json:"cron_expression"`
	IsActive       bool       `json:"is_active"`
	LastRunAt      *time.Time `json:"last_run_at"`
	NextRunAt      *time.Time `json:"next_run_at"`
	RunCount       int        `json:"run_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// UpsertJob creates or replaces a reminder job by ID
func (s *Store) UpsertJob(job *ReminderJob) error {
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(job).Error; err != nil {
		return fmt.Errorf("failed to upsert job: %w", err)
	}
	return nil
}

// UpdateJob saves the full job row
func (s *Store) UpdateJob(job *ReminderJob) error {
	if err := s.db.Save(job).Error; err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// GetDueJobs returns active jobs whose next run time has passed
func (s *Store) GetDueJobs(now time.Time, limit int) ([]*ReminderJob, error) {
	var jobs []*ReminderJob
	err := s.db.
		Where("is_active = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, now).
		Order("next_run_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get due jobs: %w", err)
	}
	return jobs, nil
}

// ListJobs returns all reminder jobs ordered by medicine and time
func (s *Store) ListJobs() ([]*ReminderJob, error) {
	var jobs []*ReminderJob
	if err := s.db.Order("medicine_id ASC, time ASC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// DeleteJobsForMedicine removes every job belonging to one medicine
func (s *Store) DeleteJobsForMedicine(medicineID int) error {
	if err := s.db.Where("medicine_id = ?", medicineID).Delete(&ReminderJob{}).Error; err != nil {
		return fmt.Errorf("failed to delete jobs: %w", err)
	}
	return nil
}
