package repository

import (
	"database/sql"
	"fmt"

	"github.com/tuanngo/crm-pipeline/internal/models"
	"go.uber.org/zap"
)

// ServiceRepository handles service database operations
type ServiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewServiceRepository creates a new service repository
func NewServiceRepository(db *sql.DB, logger *zap.Logger) *ServiceRepository {
	return &ServiceRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new service
func (r *ServiceRepository) Create(service *models.Service) error {
	query := `INSERT INTO services (name, group_name) VALUES (?, ?)`
	result, err := r.db.Exec(query, service.Name, service.Group)
	if err != nil {
		r.logger.Error("Failed to create service", zap.Error(err))
		return fmt.Errorf("failed to create service: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	service.ID = id
	return nil
}

// GetByID retrieves a service by ID, or nil when absent
func (r *ServiceRepository) GetByID(id int64) (*models.Service, error) {
	query := `SELECT id, name, group_name FROM services WHERE id = ?`

	var service models.Service
	err := r.db.QueryRow(query, id).Scan(&service.ID, &service.Name, &service.Group)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get service by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get service: %w", err)
	}

	return &service, nil
}
