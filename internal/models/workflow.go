package models

import "time"

// WorkflowStep is one ordered action inside a workflow template.
type WorkflowStep struct {
	ID           string            `json:"id"`
	Action       string            `json:"action"` // send_message, make_call, tag, ...
	DelaySeconds int               `json:"delay_seconds"`
	Params       map[string]string `json:"params,omitempty"`
}

// WorkflowTemplate is a reusable automation definition. Templates referenced
// by a repetition schedule are treated as immutable; structural changes get a
// new template row instead of editing steps in place.
type WorkflowTemplate struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	IsSubWorkflow bool           `json:"is_sub_workflow"`
	AttachStage   int            `json:"attach_stage"` // 1..6
	IsAutomatic   bool           `json:"is_automatic"`
	Steps         []WorkflowStep `json:"steps"`
	CreatedAt     time.Time      `json:"created_at"`
}

// AutoTriggerState is the tri-state lifecycle of an automatic sub-workflow on
// one customer. The three meanings are kept distinct rather than conflating
// "not automatic" with "not yet fired".
type AutoTriggerState string

const (
	// AutoTriggerNone marks templates that are not automatic sub-workflows.
	AutoTriggerNone AutoTriggerState = "none"
	// AutoTriggerPending means the workflow is eligible to fire and has not yet.
	AutoTriggerPending AutoTriggerState = "pending"
	// AutoTriggerDone means the workflow fired exactly once and never fires again.
	AutoTriggerDone AutoTriggerState = "done"
)

// OverallSuccess is the tri-state outcome of a sub-workflow run on a customer.
type OverallSuccess string

const (
	SuccessUnset OverallSuccess = ""
	SuccessTrue  OverallSuccess = "true"
	SuccessFalse OverallSuccess = "false"
)

// StepCompletion tracks per-step completion for one (customer, template) pair.
type StepCompletion struct {
	Completed bool `json:"completed"`
}

// SubWorkflowState is the per-customer, per-template configuration and
// execution snapshot. One row per (CustomerID, WorkflowTemplateID) pair so
// writes to one template never touch another template's state on the same
// customer.
type SubWorkflowState struct {
	ID                 int64                     `json:"id"`
	CustomerID         int64                     `json:"customer_id"`
	WorkflowTemplateID int64                     `json:"workflow_template_id"`
	Enabled            bool                      `json:"enabled"`
	RepeatCount        int                       `json:"repeat_count"`
	IntervalValue      int                       `json:"interval_value"`
	IntervalUnit       string                    `json:"interval_unit"`
	StartAt            *time.Time                `json:"start_at,omitempty"`
	StepCount          int                       `json:"step_count"`
	StepCompletion     map[string]StepCompletion `json:"step_completion"`
	ActiveStepIndex    int                       `json:"active_step_index"`
	OverallSuccess     OverallSuccess            `json:"overall_success"`
	AutoTriggerState   AutoTriggerState          `json:"auto_trigger_state"`
	UpdatedAt          time.Time                 `json:"updated_at"`
}
