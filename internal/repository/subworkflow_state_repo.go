package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tuanngo/crm-pipeline/internal/models"
	"go.uber.org/zap"
)

// SubWorkflowStateRepository handles per-(customer, template) sub-workflow
// state rows. All writes are scoped to one pair key, so concurrent
// reconfiguration of two different templates on the same customer cannot
// clobber each other.
type SubWorkflowStateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSubWorkflowStateRepository creates a new sub-workflow state repository
func NewSubWorkflowStateRepository(db *sql.DB, logger *zap.Logger) *SubWorkflowStateRepository {
	return &SubWorkflowStateRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the state for one (customer, template) pair, or nil when absent
func (r *SubWorkflowStateRepository) Get(customerID, templateID int64) (*models.SubWorkflowState, error) {
	query := `
		SELECT id, customer_id, workflow_template_id, enabled, repeat_count,
			interval_value, interval_unit, start_at, step_count, step_completion,
			active_step_index, overall_success, auto_trigger_state, updated_at
		FROM sub_workflow_states
		WHERE customer_id = ? AND workflow_template_id = ?
	`

	state, err := r.scanOne(r.db.QueryRow(query, customerID, templateID))
	if err != nil {
		r.logger.Error("Failed to get sub-workflow state",
			zap.Int64("customer_id", customerID),
			zap.Int64("workflow_template_id", templateID),
			zap.Error(err))
		return nil, err
	}
	return state, nil
}

// Upsert inserts or replaces the state row for the pair key. The write is
// keyed on (customer_id, workflow_template_id) so it can never touch another
// template's row.
func (r *SubWorkflowStateRepository) Upsert(state *models.SubWorkflowState) error {
	completionJSON, err := json.Marshal(state.StepCompletion)
	if err != nil {
		return fmt.Errorf("failed to marshal step completion: %w", err)
	}

	query := `
		INSERT INTO sub_workflow_states (
			customer_id, workflow_template_id, enabled, repeat_count,
			interval_value, interval_unit, start_at, step_count, step_completion,
			active_step_index, overall_success, auto_trigger_state, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (customer_id, workflow_template_id) DO UPDATE SET
			enabled = excluded.enabled,
			repeat_count = excluded.repeat_count,
			interval_value = excluded.interval_value,
			interval_unit = excluded.interval_unit,
			start_at = excluded.start_at,
			step_count = excluded.step_count,
			step_completion = excluded.step_completion,
			active_step_index = excluded.active_step_index,
			overall_success = excluded.overall_success,
			auto_trigger_state = excluded.auto_trigger_state,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err = r.db.Exec(query,
		state.CustomerID,
		state.WorkflowTemplateID,
		state.Enabled,
		state.RepeatCount,
		state.IntervalValue,
		state.IntervalUnit,
		state.StartAt,
		state.StepCount,
		string(completionJSON),
		state.ActiveStepIndex,
		string(state.OverallSuccess),
		string(state.AutoTriggerState),
	)
	if err != nil {
		r.logger.Error("Failed to upsert sub-workflow state",
			zap.Int64("customer_id", state.CustomerID),
			zap.Int64("workflow_template_id", state.WorkflowTemplateID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert sub-workflow state: %w", err)
	}

	return nil
}

// MarkAutoTriggerDone flips the auto-trigger state from pending to done for
// one pair. The WHERE guard makes the flip exactly-once: a second caller
// observes zero affected rows and reports false.
func (r *SubWorkflowStateRepository) MarkAutoTriggerDone(customerID, templateID int64) (bool, error) {
	query := `
		UPDATE sub_workflow_states
		SET auto_trigger_state = ?, updated_at = CURRENT_TIMESTAMP
		WHERE customer_id = ? AND workflow_template_id = ? AND auto_trigger_state = ?
	`

	result, err := r.db.Exec(query,
		string(models.AutoTriggerDone),
		customerID,
		templateID,
		string(models.AutoTriggerPending),
	)
	if err != nil {
		r.logger.Error("Failed to mark auto trigger done",
			zap.Int64("customer_id", customerID),
			zap.Int64("workflow_template_id", templateID),
			zap.Error(err))
		return false, fmt.Errorf("failed to mark auto trigger done: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected == 1, nil
}

// ListPendingAutoTriggers retrieves all states whose auto-trigger is pending
func (r *SubWorkflowStateRepository) ListPendingAutoTriggers() ([]*models.SubWorkflowState, error) {
	query := `
		SELECT id, customer_id, workflow_template_id, enabled, repeat_count,
			interval_value, interval_unit, start_at, step_count, step_completion,
			active_step_index, overall_success, auto_trigger_state, updated_at
		FROM sub_workflow_states
		WHERE auto_trigger_state = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Query(query, string(models.AutoTriggerPending))
	if err != nil {
		r.logger.Error("Failed to list pending auto triggers", zap.Error(err))
		return nil, fmt.Errorf("failed to list pending auto triggers: %w", err)
	}
	defer rows.Close()

	var states []*models.SubWorkflowState
	for rows.Next() {
		state, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}

	return states, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SubWorkflowStateRepository) scanOne(row *sql.Row) (*models.SubWorkflowState, error) {
	state, err := r.scanInto(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sub-workflow state: %w", err)
	}
	return state, nil
}

func (r *SubWorkflowStateRepository) scanRow(rows *sql.Rows) (*models.SubWorkflowState, error) {
	state, err := r.scanInto(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sub-workflow state: %w", err)
	}
	return state, nil
}

func (r *SubWorkflowStateRepository) scanInto(scanner rowScanner) (*models.SubWorkflowState, error) {
	var state models.SubWorkflowState
	var startAt sql.NullTime
	var completionJSON string
	var overallSuccess, autoTrigger string

	err := scanner.Scan(
		&state.ID,
		&state.CustomerID,
		&state.WorkflowTemplateID,
		&state.Enabled,
		&state.RepeatCount,
		&state.IntervalValue,
		&state.IntervalUnit,
		&startAt,
		&state.StepCount,
		&completionJSON,
		&state.ActiveStepIndex,
		&overallSuccess,
		&autoTrigger,
		&state.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if startAt.Valid {
		state.StartAt = &startAt.Time
	}
	state.OverallSuccess = models.OverallSuccess(overallSuccess)
	state.AutoTriggerState = models.AutoTriggerState(autoTrigger)

	if err := json.Unmarshal([]byte(completionJSON), &state.StepCompletion); err != nil {
		return nil, fmt.Errorf("failed to parse step completion: %w", err)
	}

	return &state, nil
}
