package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tuanngo/crm-pipeline/internal/models"
	"go.uber.org/zap"
)

// TemplateRepository handles workflow template database operations
type TemplateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sql.DB, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new workflow template
func (r *TemplateRepository) Create(tmpl *models.WorkflowTemplate) error {
	stepsJSON, err := json.Marshal(tmpl.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	query := `
		INSERT INTO workflow_templates (name, is_sub_workflow, attach_stage, is_automatic, steps)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		tmpl.Name,
		tmpl.IsSubWorkflow,
		tmpl.AttachStage,
		tmpl.IsAutomatic,
		string(stepsJSON),
	)
	if err != nil {
		r.logger.Error("Failed to create template", zap.Error(err))
		return fmt.Errorf("failed to create template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	tmpl.ID = id
	return nil
}

// GetByID retrieves a workflow template by ID, or nil when absent
func (r *TemplateRepository) GetByID(id int64) (*models.WorkflowTemplate, error) {
	query := `
		SELECT id, name, is_sub_workflow, attach_stage, is_automatic, steps, created_at
		FROM workflow_templates
		WHERE id = ?
	`

	var tmpl models.WorkflowTemplate
	var stepsJSON string

	err := r.db.QueryRow(query, id).Scan(
		&tmpl.ID,
		&tmpl.Name,
		&tmpl.IsSubWorkflow,
		&tmpl.AttachStage,
		&tmpl.IsAutomatic,
		&stepsJSON,
		&tmpl.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get template by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if err := json.Unmarshal([]byte(stepsJSON), &tmpl.Steps); err != nil {
		return nil, fmt.Errorf("failed to parse steps: %w", err)
	}

	return &tmpl, nil
}

// FindByStage retrieves the sub-workflow templates attached to a stage
func (r *TemplateRepository) FindByStage(stage int) ([]*models.WorkflowTemplate, error) {
	query := `
		SELECT id, name, is_sub_workflow, attach_stage, is_automatic, steps, created_at
		FROM workflow_templates
		WHERE attach_stage = ? AND is_sub_workflow = 1
		ORDER BY id ASC
	`

	rows, err := r.db.Query(query, stage)
	if err != nil {
		r.logger.Error("Failed to find templates by stage", zap.Int("stage", stage), zap.Error(err))
		return nil, fmt.Errorf("failed to find templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.WorkflowTemplate
	for rows.Next() {
		var tmpl models.WorkflowTemplate
		var stepsJSON string

		err := rows.Scan(
			&tmpl.ID,
			&tmpl.Name,
			&tmpl.IsSubWorkflow,
			&tmpl.AttachStage,
			&tmpl.IsAutomatic,
			&stepsJSON,
			&tmpl.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		if err := json.Unmarshal([]byte(stepsJSON), &tmpl.Steps); err != nil {
			return nil, fmt.Errorf("failed to parse steps: %w", err)
		}

		templates = append(templates, &tmpl)
	}

	return templates, rows.Err()
}
