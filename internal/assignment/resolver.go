// Package assignment distributes unassigned customers across staff using a
// persistent per-group round-robin rotation.
package assignment

import (
	"database/sql"
	"fmt"

	"github.com/tuanngo/crm-pipeline/internal/models"
	"github.com/tuanngo/crm-pipeline/internal/pipeline"
	"github.com/tuanngo/crm-pipeline/internal/repository"
	"github.com/tuanngo/crm-pipeline/pkg/database"
	"go.uber.org/zap"
)

// DefaultGroupKey is the settings key holding the system-wide fallback group
// used when a service declares none.
const DefaultGroupKey = "assignment_default_group"

// canonicalGroups maps every historical spelling onto one canonical group key.
var canonicalGroups = map[string]string{
	"telesale":  "telesale",
	"tele_sale": "telesale",
	"sales":     "sales",
	"sale":      "sales",
}

// Role tiers, tried in decreasing priority. The consultant lead role is a
// senior variant excluded from ordinary rotation in every tier.
var (
	enrollmentRoles = []string{models.RoleConsultant, models.RoleAdmissions}
	fallbackRoles   = []string{models.RoleConsultant, models.RoleAdmissions, models.RoleTelesale, models.RoleSupport}
)

// Resolver selects the next staff member for a group and records assignments.
type Resolver struct {
	db           *database.DB
	staffRepo    *repository.StaffRepository
	settingsRepo *repository.SettingsRepository
	serviceRepo  *repository.ServiceRepository
	ownerRepo    *repository.OwnerRepository
	customerRepo *repository.CustomerRepository
	tracker      *pipeline.Tracker
	logger       *zap.Logger
}

// NewResolver creates a new assignment resolver
func NewResolver(
	db *database.DB,
	staffRepo *repository.StaffRepository,
	settingsRepo *repository.SettingsRepository,
	serviceRepo *repository.ServiceRepository,
	ownerRepo *repository.OwnerRepository,
	customerRepo *repository.CustomerRepository,
	tracker *pipeline.Tracker,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		db:           db,
		staffRepo:    staffRepo,
		settingsRepo: settingsRepo,
		serviceRepo:  serviceRepo,
		ownerRepo:    ownerRepo,
		customerRepo: customerRepo,
		tracker:      tracker,
		logger:       logger,
	}
}

// CanonicalGroup resolves either historical spelling of a group onto its
// canonical key. Unknown groups pass through unchanged so new groups work
// without a table update.
func CanonicalGroup(group string) string {
	if canonical, ok := canonicalGroups[group]; ok {
		return canonical
	}
	return group
}

// NextForGroup selects the next staff member for a group using the persisted
// rotation cursor. Returns models.ErrNoCandidates when every tier is empty.
func (r *Resolver) NextForGroup(group string) (*models.Staff, error) {
	canonical := CanonicalGroup(group)

	candidates, err := r.candidates(canonical)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: group %s", models.ErrNoCandidates, canonical)
	}

	var selected *models.Staff
	err = r.db.WithTransaction(func(tx *sql.Tx) error {
		next, err := r.settingsRepo.NextRotationIndex(tx, canonical, len(candidates))
		if err != nil {
			return err
		}
		selected = candidates[next]
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Rotation selected staff",
		zap.String("group", canonical),
		zap.Int64("staff_id", selected.ID),
		zap.String("staff_name", selected.Name))

	return selected, nil
}

// candidates builds the candidate list from the first non-empty role tier.
// Members come back from the repository in creation order, which keeps the
// rotation deterministic.
func (r *Resolver) candidates(group string) ([]*models.Staff, error) {
	members, err := r.staffRepo.FindByGroup(group)
	if err != nil {
		return nil, err
	}

	// Tier 1: exact consultant role, leads excluded.
	var tier []*models.Staff
	for _, m := range members {
		if m.HasRole(models.RoleConsultant) && !m.HasRole(models.RoleConsultantLead) {
			tier = append(tier, m)
		}
	}
	if len(tier) > 0 {
		return tier, nil
	}

	// Tier 2: enrollment role set.
	for _, m := range members {
		if m.HasAnyRole(enrollmentRoles) && !m.HasRole(models.RoleConsultantLead) {
			tier = append(tier, m)
		}
	}
	if len(tier) > 0 {
		return tier, nil
	}

	// Tier 3: broad fallback set.
	for _, m := range members {
		if m.HasAnyRole(fallbackRoles) && !m.HasRole(models.RoleConsultantLead) {
			tier = append(tier, m)
		}
	}
	return tier, nil
}

// groupForCustomer resolves a group through the customer's service.
func (r *Resolver) groupForCustomer(customerID int64) (string, error) {
	customer, err := r.customerRepo.GetByID(customerID)
	if err != nil {
		return "", err
	}
	if customer == nil {
		return "", fmt.Errorf("%w: customer %d", models.ErrNotFound, customerID)
	}
	return r.ResolveGroupForService(customer.ServiceID)
}

// ResolveGroupForService resolves the group responsible for a service:
// the service's explicit group, then the system-wide default group setting.
// Returns an empty group when neither is configured; callers fall back to
// AnyEnrollmentStaff.
func (r *Resolver) ResolveGroupForService(serviceID int64) (string, error) {
	service, err := r.serviceRepo.GetByID(serviceID)
	if err != nil {
		return "", err
	}
	if service != nil && service.Group != "" {
		return CanonicalGroup(service.Group), nil
	}

	fallback, found, err := r.settingsRepo.Get(DefaultGroupKey)
	if err != nil {
		return "", err
	}
	if found && fallback != "" {
		return CanonicalGroup(fallback), nil
	}

	return "", nil
}

// AnyEnrollmentStaff returns the first staff member holding an enrollment
// role, without touching any rotation. An empty group searches the whole
// directory; this is the last fallback when no group can be resolved.
func (r *Resolver) AnyEnrollmentStaff(group string) (*models.Staff, error) {
	var members []*models.Staff
	var err error
	if group == "" {
		members, err = r.staffRepo.FindByRoles(enrollmentRoles)
	} else {
		members, err = r.staffRepo.FindByGroupAndRoles(CanonicalGroup(group), enrollmentRoles)
	}
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if !m.HasRole(models.RoleConsultantLead) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: group %q", models.ErrNoCandidates, group)
}

// Assign picks a staff member for the customer, records the stage-3
// transition with the synthesized "<group>_TuVan3" status, appends an audit
// note naming the assignee, and writes the ownership record. An empty group
// is resolved through the customer's service, then the system default group;
// when neither names a group the first enrollment staff member is chosen
// without touching any rotation. Customers with existing owners are rejected
// with models.ErrAlreadyAssigned.
func (r *Resolver) Assign(customerID int64, group string) (*models.Staff, error) {
	owners, err := r.ownerRepo.ListByCustomer(customerID)
	if err != nil {
		return nil, err
	}
	if len(owners) > 0 {
		return nil, fmt.Errorf("%w: customer %d", models.ErrAlreadyAssigned, customerID)
	}

	if group == "" {
		group, err = r.groupForCustomer(customerID)
		if err != nil {
			return nil, err
		}
	}

	var staff *models.Staff
	if group != "" {
		staff, err = r.NextForGroup(group)
	} else {
		staff, err = r.AnyEnrollmentStaff("")
	}
	if err != nil {
		return nil, err
	}

	canonical := CanonicalGroup(staff.Group)
	status := models.AssignmentStatus(canonical)
	note := fmt.Sprintf("Assigned to %s", staff.Name)

	if err := r.tracker.RecordTransition(customerID, models.StageAssignment, status, note, fmt.Sprintf("staff:%d", staff.ID)); err != nil {
		return nil, err
	}

	owner := &models.Owner{
		CustomerID: customerID,
		StaffID:    staff.ID,
		Group:      canonical,
	}
	if err := r.ownerRepo.Add(nil, owner); err != nil {
		return nil, err
	}

	r.logger.Info("Customer assigned",
		zap.Int64("customer_id", customerID),
		zap.Int64("staff_id", staff.ID),
		zap.String("group", canonical))

	return staff, nil
}
