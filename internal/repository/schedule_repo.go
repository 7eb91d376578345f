package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/tuanngo/crm-pipeline/internal/models"
	"go.uber.org/zap"
)

// ScheduleRepository handles repetition schedule database operations. The
// (customer_id, workflow_template_id) pair is unique at the storage layer;
// Insert reports a racing insert as models.ErrScheduleConflict so the store
// can convert it into the update path.
type ScheduleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *sql.DB, logger *zap.Logger) *ScheduleRepository {
	return &ScheduleRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new schedule row for the pair
func (r *ScheduleRepository) Insert(schedule *models.RepetitionSchedule) error {
	runTimesJSON, err := json.Marshal(schedule.RunTimes)
	if err != nil {
		return fmt.Errorf("failed to marshal run times: %w", err)
	}

	query := `
		INSERT INTO repetition_schedules (
			customer_id, workflow_template_id, workflow_name, run_times,
			cursor, status, interval_unit
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		schedule.CustomerID,
		schedule.WorkflowTemplateID,
		schedule.WorkflowName,
		string(runTimesJSON),
		schedule.Cursor,
		schedule.Status,
		schedule.IntervalUnit,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return models.ErrScheduleConflict
		}
		r.logger.Error("Failed to insert schedule", zap.Error(err))
		return fmt.Errorf("failed to insert schedule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	schedule.ID = id
	return nil
}

// Update overwrites run times, cursor, status, name and interval unit for an
// existing pair row. Returns models.ErrNotFound when the pair has no row.
func (r *ScheduleRepository) Update(schedule *models.RepetitionSchedule) error {
	runTimesJSON, err := json.Marshal(schedule.RunTimes)
	if err != nil {
		return fmt.Errorf("failed to marshal run times: %w", err)
	}

	query := `
		UPDATE repetition_schedules
		SET workflow_name = ?, run_times = ?, cursor = ?, status = ?,
			interval_unit = ?, updated_at = CURRENT_TIMESTAMP
		WHERE customer_id = ? AND workflow_template_id = ?
	`
	result, err := r.db.Exec(query,
		schedule.WorkflowName,
		string(runTimesJSON),
		schedule.Cursor,
		schedule.Status,
		schedule.IntervalUnit,
		schedule.CustomerID,
		schedule.WorkflowTemplateID,
	)
	if err != nil {
		r.logger.Error("Failed to update schedule", zap.Error(err))
		return fmt.Errorf("failed to update schedule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return models.ErrNotFound
	}

	return nil
}

// Get retrieves the schedule for one pair, or nil when absent
func (r *ScheduleRepository) Get(customerID, templateID int64) (*models.RepetitionSchedule, error) {
	query := `
		SELECT id, customer_id, workflow_template_id, workflow_name, run_times,
			cursor, status, interval_unit, created_at, updated_at
		FROM repetition_schedules
		WHERE customer_id = ? AND workflow_template_id = ?
	`

	var schedule models.RepetitionSchedule
	var runTimesJSON string

	err := r.db.QueryRow(query, customerID, templateID).Scan(
		&schedule.ID,
		&schedule.CustomerID,
		&schedule.WorkflowTemplateID,
		&schedule.WorkflowName,
		&runTimesJSON,
		&schedule.Cursor,
		&schedule.Status,
		&schedule.IntervalUnit,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get schedule",
			zap.Int64("customer_id", customerID),
			zap.Int64("workflow_template_id", templateID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	if err := json.Unmarshal([]byte(runTimesJSON), &schedule.RunTimes); err != nil {
		return nil, fmt.Errorf("failed to parse run times: %w", err)
	}

	return &schedule, nil
}

// Delete removes the schedule for one pair; no-op when absent
func (r *ScheduleRepository) Delete(customerID, templateID int64) error {
	query := `DELETE FROM repetition_schedules WHERE customer_id = ? AND workflow_template_id = ?`

	_, err := r.db.Exec(query, customerID, templateID)
	if err != nil {
		r.logger.Error("Failed to delete schedule",
			zap.Int64("customer_id", customerID),
			zap.Int64("workflow_template_id", templateID),
			zap.Error(err))
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	return nil
}

// UpdateCursor persists a new cursor and status for one pair, guarded on the
// cursor value the caller read. Returns false when the row is missing or
// another writer moved the cursor first, so a lost race is observable
// instead of silently dropping a run.
func (r *ScheduleRepository) UpdateCursor(customerID, templateID int64, fromCursor, cursor int, status string) (bool, error) {
	query := `
		UPDATE repetition_schedules
		SET cursor = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE customer_id = ? AND workflow_template_id = ? AND cursor = ?
	`

	result, err := r.db.Exec(query, cursor, status, customerID, templateID, fromCursor)
	if err != nil {
		r.logger.Error("Failed to update cursor",
			zap.Int64("customer_id", customerID),
			zap.Int64("workflow_template_id", templateID),
			zap.Error(err))
		return false, fmt.Errorf("failed to update cursor: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected == 1, nil
}

// ListDue retrieves unfinished schedules whose next run time is at or before
// the given instant, for the job dispatcher.
func (r *ScheduleRepository) ListDue(now time.Time, limit int) ([]*models.RepetitionSchedule, error) {
	query := `
		SELECT id, customer_id, workflow_template_id, workflow_name, run_times,
			cursor, status, interval_unit, created_at, updated_at
		FROM repetition_schedules
		WHERE status IN (?, ?)
		ORDER BY id ASC
		LIMIT ?
	`

	rows, err := r.db.Query(query, models.ScheduleStatusPending, models.ScheduleStatusRunning, limit)
	if err != nil {
		r.logger.Error("Failed to list due schedules", zap.Error(err))
		return nil, fmt.Errorf("failed to list due schedules: %w", err)
	}
	defer rows.Close()

	var due []*models.RepetitionSchedule
	for rows.Next() {
		var schedule models.RepetitionSchedule
		var runTimesJSON string

		err := rows.Scan(
			&schedule.ID,
			&schedule.CustomerID,
			&schedule.WorkflowTemplateID,
			&schedule.WorkflowName,
			&runTimesJSON,
			&schedule.Cursor,
			&schedule.Status,
			&schedule.IntervalUnit,
			&schedule.CreatedAt,
			&schedule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		if err := json.Unmarshal([]byte(runTimesJSON), &schedule.RunTimes); err != nil {
			return nil, fmt.Errorf("failed to parse run times: %w", err)
		}

		// Run times live in a JSON column, so due filtering happens here
		// rather than in SQL.
		next := schedule.NextRunTime()
		if next == nil || next.After(now) {
			continue
		}

		due = append(due, &schedule)
	}

	return due, rows.Err()
}
