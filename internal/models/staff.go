package models

import "time"

// Staff roles used by assignment resolution.
const (
	// RoleConsultant is the elevated primary role rotated through first.
	RoleConsultant = "consultant"
	// RoleConsultantLead is the senior variant excluded from ordinary rotation.
	RoleConsultantLead = "consultant_lead"
	RoleAdmissions     = "admissions"
	RoleTelesale       = "telesale"
	RoleSupport        = "support"
)

// Staff is a member of the acquisition team.
type Staff struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Roles     []string  `json:"roles"`
	Group     string    `json:"group"`
	CreatedAt time.Time `json:"created_at"`
}

// HasRole reports whether the staff member carries the exact role.
func (s *Staff) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the staff member carries at least one of the
// given roles.
func (s *Staff) HasAnyRole(roles []string) bool {
	for _, r := range roles {
		if s.HasRole(r) {
			return true
		}
	}
	return false
}

// Setting is a generic persisted key/value pair. The assignment resolver
// stores its per-group rotation cursors here.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
