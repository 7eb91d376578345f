package subflow

import (
	"fmt"
	"time"

	"github.com/tuanngo/crm-pipeline/internal/models"
)

// Recognized interval units.
const (
	UnitSeconds = "seconds"
	UnitMinutes = "minutes"
	UnitHours   = "hours"
	UnitDays    = "days"
	UnitMonths  = "months"
)

// monthDays approximates a month for interval math.
const monthDays = 30

// IntervalDuration converts a (value, unit) interval into a duration.
// Months count as 30 days.
func IntervalDuration(value int, unit string) (time.Duration, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: interval value must be positive, got %d", models.ErrInvalidConfig, value)
	}

	var base time.Duration
	switch unit {
	case UnitSeconds:
		base = time.Second
	case UnitMinutes:
		base = time.Minute
	case UnitHours:
		base = time.Hour
	case UnitDays:
		base = 24 * time.Hour
	case UnitMonths:
		base = monthDays * 24 * time.Hour
	default:
		return 0, fmt.Errorf("%w: unrecognized interval unit %q", models.ErrInvalidConfig, unit)
	}

	return time.Duration(value) * base, nil
}
