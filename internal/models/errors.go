package models

import "errors"

var (
	// ErrNotFound is returned when a customer, template or staff record is missing
	ErrNotFound = errors.New("record not found")

	// ErrInvalidStage is returned when a stage number is outside [1,6]
	ErrInvalidStage = errors.New("invalid pipeline stage")

	// ErrInvalidConfig is returned when a sub-workflow configuration cannot be
	// materialized (repeat count <= 0, malformed interval unit, missing start time)
	ErrInvalidConfig = errors.New("invalid sub-workflow configuration")

	// ErrAlreadyAssigned is returned when assignment is attempted on a customer
	// that already has owners
	ErrAlreadyAssigned = errors.New("customer already assigned")

	// ErrNoCandidates is returned when assignment resolution exhausts all
	// fallback tiers for a group
	ErrNoCandidates = errors.New("no assignment candidates available")

	// ErrScheduleConflict marks a transient uniqueness violation during schedule
	// materialization; it is retried internally and never surfaced to callers
	ErrScheduleConflict = errors.New("concurrent schedule materialization")
)
