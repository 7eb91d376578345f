package models

import "time"

// StageStatusSlots is the fixed length of a customer's stage status sequence:
// slot 0 mirrors the current overall status, slots 1..6 hold the status last
// recorded for each pipeline stage.
const StageStatusSlots = 7

// Customer represents a prospect moving through the acquisition pipeline.
type Customer struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	ServiceID   int64     `json:"service_id"`
	StageStatus []string  `json:"stage_status"` // always StageStatusSlots long
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ActivityEntry is one append-only audit-trail record. Entries are never
// updated or deleted; they double as the fallback source for "when did stage
// k last become active".
type ActivityEntry struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	Stage      int       `json:"stage"`
	Content    string    `json:"content"`
	AuthorID   string    `json:"author_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Owner records the assignment of a customer to a staff member.
type Owner struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	StaffID    int64     `json:"staff_id"`
	Group      string    `json:"group"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Service is a sellable offering a customer is interested in. It may declare
// the staff group responsible for its prospects.
type Service struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Group string `json:"group"` // empty means no explicit group
}
