package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tuanngo/crm-pipeline/internal/models"
	"go.uber.org/zap"
)

// StaffRepository handles staff directory database operations
type StaffRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStaffRepository creates a new staff repository
func NewStaffRepository(db *sql.DB, logger *zap.Logger) *StaffRepository {
	return &StaffRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new staff record
func (r *StaffRepository) Create(staff *models.Staff) error {
	rolesJSON, err := json.Marshal(staff.Roles)
	if err != nil {
		return fmt.Errorf("failed to marshal roles: %w", err)
	}

	query := `INSERT INTO staff (name, roles, group_name) VALUES (?, ?, ?)`
	result, err := r.db.Exec(query, staff.Name, string(rolesJSON), staff.Group)
	if err != nil {
		r.logger.Error("Failed to create staff", zap.Error(err))
		return fmt.Errorf("failed to create staff: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	staff.ID = id
	return nil
}

// GetByID retrieves a staff member by ID, or nil when absent
func (r *StaffRepository) GetByID(id int64) (*models.Staff, error) {
	query := `SELECT id, name, roles, group_name, created_at FROM staff WHERE id = ?`

	var staff models.Staff
	var rolesJSON string

	err := r.db.QueryRow(query, id).Scan(
		&staff.ID,
		&staff.Name,
		&rolesJSON,
		&staff.Group,
		&staff.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get staff by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}

	if err := json.Unmarshal([]byte(rolesJSON), &staff.Roles); err != nil {
		return nil, fmt.Errorf("failed to parse roles: %w", err)
	}

	return &staff, nil
}

// FindByGroup retrieves all staff in a group ordered by creation, so role
// filtering downstream yields a deterministic rotation order.
func (r *StaffRepository) FindByGroup(group string) ([]*models.Staff, error) {
	query := `
		SELECT id, name, roles, group_name, created_at
		FROM staff
		WHERE group_name = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Query(query, group)
	if err != nil {
		r.logger.Error("Failed to find staff by group", zap.String("group", group), zap.Error(err))
		return nil, fmt.Errorf("failed to find staff: %w", err)
	}
	defer rows.Close()

	var members []*models.Staff
	for rows.Next() {
		var staff models.Staff
		var rolesJSON string

		err := rows.Scan(
			&staff.ID,
			&staff.Name,
			&rolesJSON,
			&staff.Group,
			&staff.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staff: %w", err)
		}

		if err := json.Unmarshal([]byte(rolesJSON), &staff.Roles); err != nil {
			return nil, fmt.Errorf("failed to parse roles: %w", err)
		}

		members = append(members, &staff)
	}

	return members, rows.Err()
}

// FindByGroupAndRoles retrieves staff in a group holding at least one of the
// given roles, in creation order.
func (r *StaffRepository) FindByGroupAndRoles(group string, roles []string) ([]*models.Staff, error) {
	members, err := r.FindByGroup(group)
	if err != nil {
		return nil, err
	}
	return filterByRoles(members, roles), nil
}

// FindByRoles retrieves staff holding at least one of the given roles across
// all groups, in creation order.
func (r *StaffRepository) FindByRoles(roles []string) ([]*models.Staff, error) {
	query := `
		SELECT id, name, roles, group_name, created_at
		FROM staff
		ORDER BY id ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		r.logger.Error("Failed to list staff", zap.Error(err))
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	defer rows.Close()

	var members []*models.Staff
	for rows.Next() {
		var staff models.Staff
		var rolesJSON string

		err := rows.Scan(
			&staff.ID,
			&staff.Name,
			&rolesJSON,
			&staff.Group,
			&staff.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staff: %w", err)
		}

		if err := json.Unmarshal([]byte(rolesJSON), &staff.Roles); err != nil {
			return nil, fmt.Errorf("failed to parse roles: %w", err)
		}

		members = append(members, &staff)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return filterByRoles(members, roles), nil
}

func filterByRoles(members []*models.Staff, roles []string) []*models.Staff {
	var matched []*models.Staff
	for _, m := range members {
		if m.HasAnyRole(roles) {
			matched = append(matched, m)
		}
	}
	return matched
}
