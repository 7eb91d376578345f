package repository

import (
	"database/sql"
	"fmt"

	"github.com/tuanngo/crm-pipeline/internal/models"
	"go.uber.org/zap"
)

// ActivityRepository handles the append-only activity log. It deliberately
// exposes no update or delete operations.
type ActivityRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *sql.DB, logger *zap.Logger) *ActivityRepository {
	return &ActivityRepository{
		db:     db,
		logger: logger,
	}
}

// Append appends a log entry, optionally inside the caller's transaction
func (r *ActivityRepository) Append(tx *sql.Tx, entry *models.ActivityEntry) error {
	query := `
		INSERT INTO activity_log (customer_id, stage, content, author_id)
		VALUES (?, ?, ?, ?)
	`

	var result sql.Result
	var err error

	if tx != nil {
		result, err = tx.Exec(query, entry.CustomerID, entry.Stage, entry.Content, entry.AuthorID)
	} else {
		result, err = r.db.Exec(query, entry.CustomerID, entry.Stage, entry.Content, entry.AuthorID)
	}
	if err != nil {
		r.logger.Error("Failed to append activity entry", zap.Error(err))
		return fmt.Errorf("failed to append activity entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	return nil
}

// ListByCustomer retrieves all log entries for a customer in insertion order
func (r *ActivityRepository) ListByCustomer(customerID int64) ([]*models.ActivityEntry, error) {
	query := `
		SELECT id, customer_id, stage, content, author_id, created_at
		FROM activity_log
		WHERE customer_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Query(query, customerID)
	if err != nil {
		r.logger.Error("Failed to list activity log", zap.Int64("customer_id", customerID), zap.Error(err))
		return nil, fmt.Errorf("failed to list activity log: %w", err)
	}
	defer rows.Close()

	var entries []*models.ActivityEntry
	for rows.Next() {
		var entry models.ActivityEntry
		err := rows.Scan(
			&entry.ID,
			&entry.CustomerID,
			&entry.Stage,
			&entry.Content,
			&entry.AuthorID,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// LastForStage retrieves the most recent entry tagged with the given stage,
// or nil when the stage has never been recorded for the customer.
func (r *ActivityRepository) LastForStage(customerID int64, stage int) (*models.ActivityEntry, error) {
	query := `
		SELECT id, customer_id, stage, content, author_id, created_at
		FROM activity_log
		WHERE customer_id = ? AND stage = ?
		ORDER BY id DESC
		LIMIT 1
	`

	var entry models.ActivityEntry
	err := r.db.QueryRow(query, customerID, stage).Scan(
		&entry.ID,
		&entry.CustomerID,
		&entry.Stage,
		&entry.Content,
		&entry.AuthorID,
		&entry.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get last stage entry",
			zap.Int64("customer_id", customerID),
			zap.Int("stage", stage),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get last stage entry: %w", err)
	}

	return &entry, nil
}
