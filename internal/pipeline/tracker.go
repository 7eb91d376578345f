// Package pipeline owns the customer's stage-status sequence and its
// append-only activity log. It is a pure state holder: stage-specific
// reactions (assignment, automatic sub-workflows) are driven by callers.
package pipeline

import (
	"database/sql"
	"fmt"

	"github.com/tuanngo/crm-pipeline/internal/models"
	"github.com/tuanngo/crm-pipeline/internal/repository"
	"github.com/tuanngo/crm-pipeline/pkg/database"
	"go.uber.org/zap"
)

// Tracker records stage transitions with their audit trail
type Tracker struct {
	db           *database.DB
	customerRepo *repository.CustomerRepository
	activityRepo *repository.ActivityRepository
	logger       *zap.Logger
}

// NewTracker creates a new stage tracker
func NewTracker(
	db *database.DB,
	customerRepo *repository.CustomerRepository,
	activityRepo *repository.ActivityRepository,
	logger *zap.Logger,
) *Tracker {
	return &Tracker{
		db:           db,
		customerRepo: customerRepo,
		activityRepo: activityRepo,
		logger:       logger,
	}
}

// RecordTransition writes newStatus into slot 0 and slot stage of the
// customer's stage status and appends one activity entry tagged with the
// stage. The status write and the log append happen in one transaction:
// both or neither. Calling twice is idempotent in effect but appends two
// audit entries.
func (t *Tracker) RecordTransition(customerID int64, stage int, newStatus, note, authorID string) error {
	if stage < models.StageMin || stage > models.StageMax {
		return fmt.Errorf("%w: %d", models.ErrInvalidStage, stage)
	}

	customer, err := t.customerRepo.GetByID(customerID)
	if err != nil {
		return fmt.Errorf("failed to get customer: %w", err)
	}
	if customer == nil {
		return fmt.Errorf("%w: customer %d", models.ErrNotFound, customerID)
	}

	stageStatus := make([]string, models.StageStatusSlots)
	copy(stageStatus, customer.StageStatus)
	stageStatus[0] = newStatus
	stageStatus[stage] = newStatus

	content := note
	if content == "" {
		content = fmt.Sprintf("Status changed to %s", newStatus)
	}

	err = t.db.WithTransaction(func(tx *sql.Tx) error {
		if err := t.customerRepo.UpdateStageStatus(tx, customerID, stageStatus); err != nil {
			return err
		}
		return t.activityRepo.Append(tx, &models.ActivityEntry{
			CustomerID: customerID,
			Stage:      stage,
			Content:    content,
			AuthorID:   authorID,
		})
	})
	if err != nil {
		return err
	}

	t.logger.Info("Stage transition recorded",
		zap.Int64("customer_id", customerID),
		zap.Int("stage", stage),
		zap.String("status", newStatus))

	return nil
}

// CurrentStage derives the live stage purely from the stage status sequence:
// the highest-indexed slot holding a value whose normalized suffix names that
// stage. Returns 0 when no slot holds a recognizable status.
func CurrentStage(customer *models.Customer) int {
	for stage := models.StageMax; stage >= models.StageMin; stage-- {
		if stage >= len(customer.StageStatus) {
			continue
		}
		status := customer.StageStatus[stage]
		if status == "" {
			continue
		}
		if models.StageOfStatus(status) == stage {
			return stage
		}
	}
	return 0
}

// CurrentStage loads the customer and reports its live stage
func (t *Tracker) CurrentStage(customerID int64) (int, error) {
	customer, err := t.customerRepo.GetByID(customerID)
	if err != nil {
		return 0, fmt.Errorf("failed to get customer: %w", err)
	}
	if customer == nil {
		return 0, fmt.Errorf("%w: customer %d", models.ErrNotFound, customerID)
	}
	return CurrentStage(customer), nil
}
