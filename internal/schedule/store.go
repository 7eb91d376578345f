// Package schedule materializes and maintains repetition schedules: the
// per-(customer, workflow template) list of future run times consumed by the
// job dispatcher.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/tuanngo/crm-pipeline/internal/models"
	"github.com/tuanngo/crm-pipeline/internal/repository"
	"go.uber.org/zap"
)

// Store implements the repetition schedule operations over the schedule
// repository.
type Store struct {
	scheduleRepo *repository.ScheduleRepository
	logger       *zap.Logger
}

// NewStore creates a new schedule store
func NewStore(scheduleRepo *repository.ScheduleRepository, logger *zap.Logger) *Store {
	return &Store{
		scheduleRepo: scheduleRepo,
		logger:       logger,
	}
}

// Materialize computes runTimes[i] = startAt + i*interval for i in
// [0, repeatCount) and upserts the pair's schedule: cursor back to 0, status
// back to pending, run times overwritten. The first run time is startAt
// itself. A uniqueness race on insert is converted into the update path and
// retried exactly once; a second failure surfaces as a storage error.
func (s *Store) Materialize(customerID, templateID int64, workflowName string, startAt time.Time, repeatCount int, interval time.Duration, intervalUnit string) (*models.RepetitionSchedule, error) {
	if repeatCount <= 0 {
		return nil, fmt.Errorf("%w: repeat count must be positive", models.ErrInvalidConfig)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", models.ErrInvalidConfig)
	}

	runTimes := make([]time.Time, repeatCount)
	for i := 0; i < repeatCount; i++ {
		runTimes[i] = startAt.Add(time.Duration(i) * interval)
	}

	schedule := &models.RepetitionSchedule{
		CustomerID:         customerID,
		WorkflowTemplateID: templateID,
		WorkflowName:       workflowName,
		RunTimes:           runTimes,
		Cursor:             0,
		Status:             models.ScheduleStatusPending,
		IntervalUnit:       intervalUnit,
	}

	// Update-first keeps the common resave path to a single statement; the
	// insert covers first-time materialization.
	err := s.scheduleRepo.Update(schedule)
	if err == nil {
		return schedule, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	err = s.scheduleRepo.Insert(schedule)
	if err == nil {
		s.logger.Info("Schedule materialized",
			zap.Int64("customer_id", customerID),
			zap.Int64("workflow_template_id", templateID),
			zap.Int("run_count", repeatCount))
		return schedule, nil
	}
	if !errors.Is(err, models.ErrScheduleConflict) {
		return nil, err
	}

	// A concurrent materialization won the insert; take the update path once.
	s.logger.Warn("Schedule insert raced, retrying as update",
		zap.Int64("customer_id", customerID),
		zap.Int64("workflow_template_id", templateID))
	if err := s.scheduleRepo.Update(schedule); err != nil {
		return nil, fmt.Errorf("failed to materialize schedule after conflict: %w", err)
	}

	return schedule, nil
}

// Disable deletes the pair's schedule if present; no-op otherwise
func (s *Store) Disable(customerID, templateID int64) error {
	return s.scheduleRepo.Delete(customerID, templateID)
}

// AdvanceCursor moves the execution cursor past the run the dispatcher just
// executed, marking the schedule done when the last run time is consumed.
func (s *Store) AdvanceCursor(customerID, templateID int64) error {
	schedule, err := s.scheduleRepo.Get(customerID, templateID)
	if err != nil {
		return err
	}
	if schedule == nil {
		return fmt.Errorf("%w: schedule for customer %d workflow %d", models.ErrNotFound, customerID, templateID)
	}
	if schedule.Cursor >= len(schedule.RunTimes) {
		return nil
	}

	cursor := schedule.Cursor + 1
	status := models.ScheduleStatusRunning
	if cursor == len(schedule.RunTimes) {
		status = models.ScheduleStatusDone
	}

	moved, err := s.scheduleRepo.UpdateCursor(customerID, templateID, schedule.Cursor, cursor, status)
	if err != nil {
		return err
	}
	if !moved {
		// Another dispatcher consumed this run between our read and write.
		s.logger.Debug("Schedule cursor already advanced",
			zap.Int64("customer_id", customerID),
			zap.Int64("workflow_template_id", templateID))
		return nil
	}

	s.logger.Debug("Schedule cursor advanced",
		zap.Int64("customer_id", customerID),
		zap.Int64("workflow_template_id", templateID),
		zap.Int("cursor", cursor),
		zap.String("status", status))

	return nil
}

// Get retrieves the pair's schedule, or nil when absent
func (s *Store) Get(customerID, templateID int64) (*models.RepetitionSchedule, error) {
	return s.scheduleRepo.Get(customerID, templateID)
}
