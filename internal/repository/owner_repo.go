package repository

import (
	"database/sql"
	"fmt"

	"github.com/tuanngo/crm-pipeline/internal/models"
	"go.uber.org/zap"
)

// OwnerRepository handles customer ownership records
type OwnerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOwnerRepository creates a new owner repository
func NewOwnerRepository(db *sql.DB, logger *zap.Logger) *OwnerRepository {
	return &OwnerRepository{
		db:     db,
		logger: logger,
	}
}

// Add records an assignment, optionally inside the caller's transaction
func (r *OwnerRepository) Add(tx *sql.Tx, owner *models.Owner) error {
	query := `
		INSERT INTO customer_owners (customer_id, staff_id, group_name)
		VALUES (?, ?, ?)
	`

	var result sql.Result
	var err error

	if tx != nil {
		result, err = tx.Exec(query, owner.CustomerID, owner.StaffID, owner.Group)
	} else {
		result, err = r.db.Exec(query, owner.CustomerID, owner.StaffID, owner.Group)
	}
	if err != nil {
		r.logger.Error("Failed to add owner", zap.Error(err))
		return fmt.Errorf("failed to add owner: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	owner.ID = id
	return nil
}

// ListByCustomer retrieves the current owners of a customer; an empty list
// means unassigned
func (r *OwnerRepository) ListByCustomer(customerID int64) ([]*models.Owner, error) {
	query := `
		SELECT id, customer_id, staff_id, group_name, assigned_at
		FROM customer_owners
		WHERE customer_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Query(query, customerID)
	if err != nil {
		r.logger.Error("Failed to list owners", zap.Int64("customer_id", customerID), zap.Error(err))
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()

	var owners []*models.Owner
	for rows.Next() {
		var owner models.Owner
		err := rows.Scan(
			&owner.ID,
			&owner.CustomerID,
			&owner.StaffID,
			&owner.Group,
			&owner.AssignedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, &owner)
	}

	return owners, rows.Err()
}
