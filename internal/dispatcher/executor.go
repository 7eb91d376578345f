package dispatcher

import (
	"context"
	"fmt"

	"github.com/tuanngo/crm-pipeline/internal/models"
	"github.com/tuanngo/crm-pipeline/internal/repository"
	"go.uber.org/zap"
)

// ActivityExecutor is the default StepExecutor. It performs no outbound
// business action; it records each execution into the customer's activity
// log so operators can see the automation running. Deployments wire a real
// executor (messaging, calling) in its place.
type ActivityExecutor struct {
	activityRepo *repository.ActivityRepository
	templateRepo *repository.TemplateRepository
	logger       *zap.Logger
}

// NewActivityExecutor creates a new activity-log executor
func NewActivityExecutor(
	activityRepo *repository.ActivityRepository,
	templateRepo *repository.TemplateRepository,
	logger *zap.Logger,
) *ActivityExecutor {
	return &ActivityExecutor{
		activityRepo: activityRepo,
		templateRepo: templateRepo,
		logger:       logger,
	}
}

// ExecuteRun implements StepExecutor
func (e *ActivityExecutor) ExecuteRun(ctx context.Context, sched *models.RepetitionSchedule) error {
	tmpl, err := e.templateRepo.GetByID(sched.WorkflowTemplateID)
	if err != nil {
		return err
	}
	if tmpl == nil {
		return fmt.Errorf("%w: workflow template %d", models.ErrNotFound, sched.WorkflowTemplateID)
	}

	entry := &models.ActivityEntry{
		CustomerID: sched.CustomerID,
		Stage:      tmpl.AttachStage,
		Content:    fmt.Sprintf("Workflow %q run %d/%d executed", sched.WorkflowName, sched.Cursor+1, len(sched.RunTimes)),
		AuthorID:   "system:dispatcher",
	}
	return e.activityRepo.Append(nil, entry)
}

// ExecuteAutoTrigger implements StepExecutor
func (e *ActivityExecutor) ExecuteAutoTrigger(ctx context.Context, state *models.SubWorkflowState, tmpl *models.WorkflowTemplate) error {
	entry := &models.ActivityEntry{
		CustomerID: state.CustomerID,
		Stage:      tmpl.AttachStage,
		Content:    fmt.Sprintf("Automatic workflow %q triggered", tmpl.Name),
		AuthorID:   "system:dispatcher",
	}
	return e.activityRepo.Append(nil, entry)
}
