// Package dispatcher polls materialized schedules and pending auto-triggers
// and hands them to an injected executor. The executor owns the per-step
// business action (send message, make call, tag); the dispatcher only decides
// what is due and keeps cursors and trigger flags consistent.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tuanngo/crm-pipeline/internal/models"
	"github.com/tuanngo/crm-pipeline/internal/pipeline"
	"github.com/tuanngo/crm-pipeline/internal/repository"
	"github.com/tuanngo/crm-pipeline/internal/schedule"
	"go.uber.org/zap"
)

// StepExecutor executes due workflow runs. Implementations live outside this
// core: the dispatcher never performs business actions itself.
type StepExecutor interface {
	// ExecuteRun executes the run at the schedule's cursor.
	ExecuteRun(ctx context.Context, sched *models.RepetitionSchedule) error
	// ExecuteAutoTrigger runs an automatic sub-workflow once for a customer.
	ExecuteAutoTrigger(ctx context.Context, state *models.SubWorkflowState, tmpl *models.WorkflowTemplate) error
}

// Poller periodically scans for due schedule runs and fireable auto-triggers.
type Poller struct {
	store        *schedule.Store
	scheduleRepo *repository.ScheduleRepository
	stateRepo    *repository.SubWorkflowStateRepository
	templateRepo *repository.TemplateRepository
	customerRepo *repository.CustomerRepository
	executor     StepExecutor
	interval     time.Duration
	batchSize    int
	logger       *zap.Logger

	stopOnce sync.Once
	done     chan struct{}
}

// NewPoller creates a new schedule poller
func NewPoller(
	store *schedule.Store,
	scheduleRepo *repository.ScheduleRepository,
	stateRepo *repository.SubWorkflowStateRepository,
	templateRepo *repository.TemplateRepository,
	customerRepo *repository.CustomerRepository,
	executor StepExecutor,
	interval time.Duration,
	batchSize int,
	logger *zap.Logger,
) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Poller{
		store:        store,
		scheduleRepo: scheduleRepo,
		stateRepo:    stateRepo,
		templateRepo: templateRepo,
		customerRepo: customerRepo,
		executor:     executor,
		interval:     interval,
		batchSize:    batchSize,
		logger:       logger,
		done:         make(chan struct{}),
	}
}

// Name implements Worker
func (p *Poller) Name() string {
	return "schedule_poller"
}

// Start implements Worker; the polling loop runs until the context is
// cancelled.
func (p *Poller) Start(ctx context.Context) error {
	if p.executor == nil {
		// The loop goroutine will never run, so release Stop's wait.
		close(p.done)
		return fmt.Errorf("poller requires a step executor")
	}

	go func() {
		defer close(p.done)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Tick(ctx, time.Now())
			}
		}
	}()

	return nil
}

// Stop implements Worker; it waits for the loop to drain
func (p *Poller) Stop() error {
	p.stopOnce.Do(func() {
		<-p.done
	})
	return nil
}

// Tick runs one polling pass: due schedule runs first, then pending
// auto-triggers. Exported so tests and manual runs can drive the poller
// without the ticker.
func (p *Poller) Tick(ctx context.Context, now time.Time) {
	p.dispatchDueRuns(ctx, now)
	p.fireAutoTriggers(ctx)
}

func (p *Poller) dispatchDueRuns(ctx context.Context, now time.Time) {
	due, err := p.scheduleRepo.ListDue(now, p.batchSize)
	if err != nil {
		p.logger.Error("Failed to list due schedules", zap.Error(err))
		return
	}

	for _, sched := range due {
		if err := p.executor.ExecuteRun(ctx, sched); err != nil {
			p.logger.Error("Step execution failed",
				zap.Int64("customer_id", sched.CustomerID),
				zap.Int64("workflow_template_id", sched.WorkflowTemplateID),
				zap.Error(err))
			if _, uerr := p.scheduleRepo.UpdateCursor(sched.CustomerID, sched.WorkflowTemplateID, sched.Cursor, sched.Cursor, models.ScheduleStatusFailed); uerr != nil {
				p.logger.Error("Failed to mark schedule failed", zap.Error(uerr))
			}
			continue
		}

		if err := p.store.AdvanceCursor(sched.CustomerID, sched.WorkflowTemplateID); err != nil {
			p.logger.Error("Failed to advance cursor",
				zap.Int64("customer_id", sched.CustomerID),
				zap.Int64("workflow_template_id", sched.WorkflowTemplateID),
				zap.Error(err))
		}
	}
}

// fireAutoTriggers executes each pending automatic sub-workflow whose owning
// stage has completed, flipping the flag pending -> done exactly once. The
// flip happens before execution: losing the guarded update means another
// dispatcher already fired it.
func (p *Poller) fireAutoTriggers(ctx context.Context) {
	states, err := p.stateRepo.ListPendingAutoTriggers()
	if err != nil {
		p.logger.Error("Failed to list pending auto triggers", zap.Error(err))
		return
	}

	for _, state := range states {
		tmpl, err := p.templateRepo.GetByID(state.WorkflowTemplateID)
		if err != nil || tmpl == nil {
			continue
		}

		customer, err := p.customerRepo.GetByID(state.CustomerID)
		if err != nil || customer == nil {
			continue
		}
		if pipeline.CurrentStage(customer) < tmpl.AttachStage {
			continue
		}

		fired, err := p.stateRepo.MarkAutoTriggerDone(state.CustomerID, state.WorkflowTemplateID)
		if err != nil {
			p.logger.Error("Failed to flip auto trigger", zap.Error(err))
			continue
		}
		if !fired {
			continue
		}

		if err := p.executor.ExecuteAutoTrigger(ctx, state, tmpl); err != nil {
			p.logger.Error("Auto trigger execution failed",
				zap.Int64("customer_id", state.CustomerID),
				zap.Int64("workflow_template_id", state.WorkflowTemplateID),
				zap.Error(err))
		}
	}
}
