package models

import "time"

// Schedule status values.
const (
	ScheduleStatusPending = "pending"
	ScheduleStatusRunning = "running"
	ScheduleStatusDone    = "done"
	ScheduleStatusFailed  = "failed"
)

// RepetitionSchedule holds the materialized future run times for one
// (customer, workflow template) pair. The pair is unique at the storage
// layer. RunTimes is strictly increasing and evenly spaced by construction;
// Cursor indexes the next unexecuted run time.
type RepetitionSchedule struct {
	ID                 int64       `json:"id"`
	CustomerID         int64       `json:"customer_id"`
	WorkflowTemplateID int64       `json:"workflow_template_id"`
	WorkflowName       string      `json:"workflow_name"`
	RunTimes           []time.Time `json:"run_times"`
	Cursor             int         `json:"cursor"`
	Status             string      `json:"status"`
	IntervalUnit       string      `json:"interval_unit"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// NextRunTime returns the run time at the cursor, or nil when the schedule is
// exhausted.
func (s *RepetitionSchedule) NextRunTime() *time.Time {
	if s.Cursor < 0 || s.Cursor >= len(s.RunTimes) {
		return nil
	}
	t := s.RunTimes[s.Cursor]
	return &t
}
