package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tuanngo/crm-pipeline/internal/models"
	"go.uber.org/zap"
)

// CustomerRepository handles customer database operations
type CustomerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *sql.DB, logger *zap.Logger) *CustomerRepository {
	return &CustomerRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new customer with an empty stage status sequence
func (r *CustomerRepository) Create(customer *models.Customer) error {
	if len(customer.StageStatus) == 0 {
		customer.StageStatus = make([]string, models.StageStatusSlots)
	}
	statusJSON, err := json.Marshal(customer.StageStatus)
	if err != nil {
		return fmt.Errorf("failed to marshal stage status: %w", err)
	}

	query := `
		INSERT INTO customers (name, phone, service_id, stage_status)
		VALUES (?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		customer.Name,
		customer.Phone,
		customer.ServiceID,
		string(statusJSON),
	)
	if err != nil {
		r.logger.Error("Failed to create customer", zap.Error(err))
		return fmt.Errorf("failed to create customer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	customer.ID = id
	return nil
}

// GetByID retrieves a customer by ID, or nil when absent
func (r *CustomerRepository) GetByID(id int64) (*models.Customer, error) {
	query := `
		SELECT id, name, phone, service_id, stage_status, created_at, updated_at
		FROM customers
		WHERE id = ?
	`

	var customer models.Customer
	var statusJSON string

	err := r.db.QueryRow(query, id).Scan(
		&customer.ID,
		&customer.Name,
		&customer.Phone,
		&customer.ServiceID,
		&statusJSON,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get customer by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	if err := json.Unmarshal([]byte(statusJSON), &customer.StageStatus); err != nil {
		return nil, fmt.Errorf("failed to parse stage status: %w", err)
	}
	// Pad legacy rows that predate the 7-slot layout.
	for len(customer.StageStatus) < models.StageStatusSlots {
		customer.StageStatus = append(customer.StageStatus, "")
	}

	return &customer, nil
}

// UpdateStageStatus persists the full stage status sequence for a customer
func (r *CustomerRepository) UpdateStageStatus(tx *sql.Tx, id int64, stageStatus []string) error {
	statusJSON, err := json.Marshal(stageStatus)
	if err != nil {
		return fmt.Errorf("failed to marshal stage status: %w", err)
	}

	query := `UPDATE customers SET stage_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	if tx != nil {
		_, err = tx.Exec(query, string(statusJSON), id)
	} else {
		_, err = r.db.Exec(query, string(statusJSON), id)
	}
	if err != nil {
		r.logger.Error("Failed to update stage status", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update stage status: %w", err)
	}

	return nil
}

// List retrieves customers ordered by creation, for reporting
func (r *CustomerRepository) List(limit, offset int) ([]*models.Customer, error) {
	query := `
		SELECT id, name, phone, service_id, stage_status, created_at, updated_at
		FROM customers
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.Query(query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list customers", zap.Error(err))
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		var customer models.Customer
		var statusJSON string

		err := rows.Scan(
			&customer.ID,
			&customer.Name,
			&customer.Phone,
			&customer.ServiceID,
			&statusJSON,
			&customer.CreatedAt,
			&customer.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}

		if err := json.Unmarshal([]byte(statusJSON), &customer.StageStatus); err != nil {
			return nil, fmt.Errorf("failed to parse stage status: %w", err)
		}
		for len(customer.StageStatus) < models.StageStatusSlots {
			customer.StageStatus = append(customer.StageStatus, "")
		}

		customers = append(customers, &customer)
	}

	return customers, rows.Err()
}
