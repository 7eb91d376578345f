// Package subflow manages the per-customer sub-workflow configuration and
// drives the schedule store whenever a configuration changes.
package subflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/tuanngo/crm-pipeline/internal/models"
	"github.com/tuanngo/crm-pipeline/internal/repository"
	"github.com/tuanngo/crm-pipeline/internal/schedule"
	"go.uber.org/zap"
)

// DefaultStartGrace is the offset added to the stage's last activity entry
// when deriving a default start time. Kept configurable; the historical value
// is 60 seconds.
const DefaultStartGrace = 60 * time.Second

// ConfigPatch carries the caller-supplied configuration fields. Nil fields
// keep their prior values (merge, not replace).
type ConfigPatch struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	RepeatCount   *int       `json:"repeat_count,omitempty"`
	IntervalValue *int       `json:"interval_value,omitempty"`
	IntervalUnit  *string    `json:"interval_unit,omitempty"`
	StartAt       *time.Time `json:"start_at,omitempty"`
}

// Manager reads and writes per-customer sub-workflow configuration and keeps
// the repetition schedule in sync with it.
type Manager struct {
	templateRepo *repository.TemplateRepository
	stateRepo    *repository.SubWorkflowStateRepository
	activityRepo *repository.ActivityRepository
	customerRepo *repository.CustomerRepository
	store        *schedule.Store
	startGrace   time.Duration
	logger       *zap.Logger

	now func() time.Time
}

// NewManager creates a new sub-workflow configuration manager. A
// non-positive startGrace falls back to DefaultStartGrace.
func NewManager(
	templateRepo *repository.TemplateRepository,
	stateRepo *repository.SubWorkflowStateRepository,
	activityRepo *repository.ActivityRepository,
	customerRepo *repository.CustomerRepository,
	store *schedule.Store,
	startGrace time.Duration,
	logger *zap.Logger,
) *Manager {
	if startGrace <= 0 {
		startGrace = DefaultStartGrace
	}
	return &Manager{
		templateRepo: templateRepo,
		stateRepo:    stateRepo,
		activityRepo: activityRepo,
		customerRepo: customerRepo,
		store:        store,
		startGrace:   startGrace,
		logger:       logger,
		now:          time.Now,
	}
}

// UpsertConfig creates or merges the (customer, template) configuration and
// then materializes, defers, or removes the pair's repetition schedule
// depending on the resulting enabled/validity state.
//
// An invalid configuration on an enabled entry is reported as
// models.ErrInvalidConfig but does not roll back the merged fields: only the
// materialization step is skipped.
func (m *Manager) UpsertConfig(customerID, templateID int64, patch ConfigPatch) (*models.SubWorkflowState, error) {
	tmpl, err := m.templateRepo.GetByID(templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	if tmpl == nil {
		return nil, fmt.Errorf("%w: workflow template %d", models.ErrNotFound, templateID)
	}

	customer, err := m.customerRepo.GetByID(customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}
	if customer == nil {
		return nil, fmt.Errorf("%w: customer %d", models.ErrNotFound, customerID)
	}

	state, err := m.stateRepo.Get(customerID, templateID)
	if err != nil {
		return nil, err
	}

	if state == nil {
		state = &models.SubWorkflowState{
			CustomerID:         customerID,
			WorkflowTemplateID: templateID,
			AutoTriggerState:   models.AutoTriggerNone,
		}
		if tmpl.IsAutomatic {
			state.AutoTriggerState = models.AutoTriggerPending
		}
	} else {
		// Template automation may have been toggled since the entry was
		// created. "done" survives every reconfiguration: a workflow that
		// already auto-fired must never become eligible again.
		if !tmpl.IsAutomatic {
			state.AutoTriggerState = models.AutoTriggerNone
		} else if state.AutoTriggerState == models.AutoTriggerNone || state.AutoTriggerState == "" {
			state.AutoTriggerState = models.AutoTriggerPending
		}
	}

	m.syncSteps(state, tmpl)
	m.applyPatch(state, patch)

	if state.Enabled && state.StartAt == nil {
		startAt, derr := m.DefaultStartTime(customerID, tmpl.AttachStage)
		if derr != nil {
			return nil, derr
		}
		state.StartAt = startAt
	}

	if err := m.stateRepo.Upsert(state); err != nil {
		return nil, err
	}

	return state, m.syncSchedule(state, tmpl)
}

// syncSteps rebuilds the step completion map against the template's current
// step list, preserving completion for steps whose id survived, and resets
// the execution snapshot.
func (m *Manager) syncSteps(state *models.SubWorkflowState, tmpl *models.WorkflowTemplate) {
	previous := state.StepCompletion
	completion := make(map[string]models.StepCompletion, len(tmpl.Steps))
	for _, step := range tmpl.Steps {
		if prior, ok := previous[step.ID]; ok {
			completion[step.ID] = prior
		} else {
			completion[step.ID] = models.StepCompletion{Completed: false}
		}
	}

	state.StepCompletion = completion
	state.StepCount = len(tmpl.Steps)
	state.ActiveStepIndex = 0
	state.OverallSuccess = models.SuccessUnset
}

// applyPatch merges the supplied fields onto the entry; omitted fields keep
// their prior values.
func (m *Manager) applyPatch(state *models.SubWorkflowState, patch ConfigPatch) {
	if patch.Enabled != nil {
		state.Enabled = *patch.Enabled
	}
	if patch.RepeatCount != nil {
		state.RepeatCount = *patch.RepeatCount
	}
	if patch.IntervalValue != nil {
		state.IntervalValue = *patch.IntervalValue
	}
	if patch.IntervalUnit != nil {
		state.IntervalUnit = *patch.IntervalUnit
	}
	if patch.StartAt != nil {
		startAt := *patch.StartAt
		state.StartAt = &startAt
	}
}

// syncSchedule materializes or removes the schedule based on the saved state.
func (m *Manager) syncSchedule(state *models.SubWorkflowState, tmpl *models.WorkflowTemplate) error {
	if !state.Enabled {
		return m.store.Disable(state.CustomerID, state.WorkflowTemplateID)
	}

	if err := m.validate(state); err != nil {
		// Enabled but incomplete: defer materialization, keep the merged
		// fields, report the problem.
		m.logger.Warn("Sub-workflow enabled but not materializable",
			zap.Int64("customer_id", state.CustomerID),
			zap.Int64("workflow_template_id", state.WorkflowTemplateID),
			zap.Error(err))
		return err
	}

	interval, err := IntervalDuration(state.IntervalValue, state.IntervalUnit)
	if err != nil {
		return err
	}

	_, err = m.store.Materialize(
		state.CustomerID,
		state.WorkflowTemplateID,
		tmpl.Name,
		*state.StartAt,
		state.RepeatCount,
		interval,
		state.IntervalUnit,
	)
	return err
}

// validate checks the conditions materialization requires.
func (m *Manager) validate(state *models.SubWorkflowState) error {
	if state.RepeatCount <= 0 {
		return fmt.Errorf("%w: repeat count must be positive, got %d", models.ErrInvalidConfig, state.RepeatCount)
	}
	if state.StartAt == nil || state.StartAt.IsZero() {
		return fmt.Errorf("%w: start time is not set", models.ErrInvalidConfig)
	}
	if _, err := IntervalDuration(state.IntervalValue, state.IntervalUnit); err != nil {
		return err
	}
	return nil
}

// DefaultStartTime derives a start time for a stage's attached workflow from
// the last activity entry tagged with that stage, plus the grace offset. The
// result is never earlier than now. Falls back to now plus grace when the
// stage has no activity yet.
func (m *Manager) DefaultStartTime(customerID int64, stage int) (*time.Time, error) {
	if stage < models.StageMin || stage > models.StageMax {
		return nil, fmt.Errorf("%w: %d", models.ErrInvalidStage, stage)
	}

	now := m.now()
	startAt := now.Add(m.startGrace)

	entry, err := m.activityRepo.LastForStage(customerID, stage)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		derived := entry.CreatedAt.Add(m.startGrace)
		if derived.After(startAt) {
			startAt = derived
		}
	}

	return &startAt, nil
}

// SeedStageWorkflows ensures a configuration entry exists for every automatic
// sub-workflow attached to the stage the customer just reached, so the
// dispatcher can observe their pending auto-trigger state. Existing entries
// are merged, not reset.
func (m *Manager) SeedStageWorkflows(customerID int64, stage int) error {
	templates, err := m.templateRepo.FindByStage(stage)
	if err != nil {
		return err
	}

	var errs []error
	for _, tmpl := range templates {
		if !tmpl.IsAutomatic {
			continue
		}
		if _, err := m.UpsertConfig(customerID, tmpl.ID, ConfigPatch{}); err != nil {
			// A disabled or incomplete automatic workflow is expected here;
			// only storage failures should stop the seeding pass.
			if errors.Is(err, models.ErrInvalidConfig) {
				continue
			}
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to seed %d stage workflows: %w", len(errs), errs[0])
	}

	return nil
}

// Disable turns the pair's configuration off and removes its schedule.
func (m *Manager) Disable(customerID, templateID int64) error {
	enabled := false
	_, err := m.UpsertConfig(customerID, templateID, ConfigPatch{Enabled: &enabled})
	return err
}
