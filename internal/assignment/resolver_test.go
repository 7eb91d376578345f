package assignment

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuanngo/crm-pipeline/internal/models"
	"github.com/tuanngo/crm-pipeline/internal/pipeline"
	"github.com/tuanngo/crm-pipeline/internal/repository"
	"github.com/tuanngo/crm-pipeline/migrations"
	"github.com/tuanngo/crm-pipeline/pkg/database"
	"go.uber.org/zap"
)

type resolverFixture struct {
	resolver     *Resolver
	staffRepo    *repository.StaffRepository
	settingsRepo *repository.SettingsRepository
	serviceRepo  *repository.ServiceRepository
	ownerRepo    *repository.OwnerRepository
	customerRepo *repository.CustomerRepository
	activityRepo *repository.ActivityRepository
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger)
	require.NoError(t, err)
	require.NoError(t, database.NewMigrator(db, logger).Run(migrations.FS))
	t.Cleanup(func() { db.Close() })

	customerRepo := repository.NewCustomerRepository(db.DB, logger)
	activityRepo := repository.NewActivityRepository(db.DB, logger)
	staffRepo := repository.NewStaffRepository(db.DB, logger)
	settingsRepo := repository.NewSettingsRepository(db.DB, logger)
	serviceRepo := repository.NewServiceRepository(db.DB, logger)
	ownerRepo := repository.NewOwnerRepository(db.DB, logger)
	tracker := pipeline.NewTracker(db, customerRepo, activityRepo, logger)

	return &resolverFixture{
		resolver:     NewResolver(db, staffRepo, settingsRepo, serviceRepo, ownerRepo, customerRepo, tracker, logger),
		staffRepo:    staffRepo,
		settingsRepo: settingsRepo,
		serviceRepo:  serviceRepo,
		ownerRepo:    ownerRepo,
		customerRepo: customerRepo,
		activityRepo: activityRepo,
	}
}

func (f *resolverFixture) addStaff(t *testing.T, name, group string, roles ...string) *models.Staff {
	t.Helper()
	staff := &models.Staff{Name: name, Group: group, Roles: roles}
	require.NoError(t, f.staffRepo.Create(staff))
	return staff
}

func TestCanonicalGroup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"telesale", "telesale"},
		{"tele_sale", "telesale"},
		{"sales", "sales"},
		{"sale", "sales"},
		{"marketing", "marketing"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CanonicalGroup(tt.in); got != tt.want {
			t.Errorf("CanonicalGroup(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNextForGroupRotationFairness(t *testing.T) {
	f := newResolverFixture(t)
	a := f.addStaff(t, "Anh", "telesale", models.RoleConsultant)
	b := f.addStaff(t, "Binh", "telesale", models.RoleConsultant)
	c := f.addStaff(t, "Chi", "telesale", models.RoleConsultant)

	counts := make(map[int64]int)
	var order []int64
	for i := 0; i < 9; i++ {
		staff, err := f.resolver.NextForGroup("telesale")
		require.NoError(t, err)
		counts[staff.ID]++
		order = append(order, staff.ID)
	}

	// Three full cycles: each candidate exactly three times, in creation order.
	assert.Equal(t, 3, counts[a.ID])
	assert.Equal(t, 3, counts[b.ID])
	assert.Equal(t, 3, counts[c.ID])
	assert.Equal(t, []int64{a.ID, b.ID, c.ID, a.ID, b.ID, c.ID, a.ID, b.ID, c.ID}, order)
}

func TestNextForGroupPersistsCursor(t *testing.T) {
	f := newResolverFixture(t)
	first := f.addStaff(t, "Anh", "telesale", models.RoleConsultant)
	f.addStaff(t, "Binh", "telesale", models.RoleConsultant)

	staff, err := f.resolver.NextForGroup("telesale")
	require.NoError(t, err)
	assert.Equal(t, first.ID, staff.ID, "unset cursor starts the rotation at index 0")

	value, found, err := f.settingsRepo.Get(repository.RotationCursorKey("telesale"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "0", value)
}

func TestNextForGroupSpellingsShareCursor(t *testing.T) {
	f := newResolverFixture(t)
	a := f.addStaff(t, "Anh", "telesale", models.RoleConsultant)
	b := f.addStaff(t, "Binh", "telesale", models.RoleConsultant)

	got1, err := f.resolver.NextForGroup("telesale")
	require.NoError(t, err)
	got2, err := f.resolver.NextForGroup("tele_sale")
	require.NoError(t, err)

	// Both spellings advance the same canonical cursor.
	assert.Equal(t, a.ID, got1.ID)
	assert.Equal(t, b.ID, got2.ID)
}

func TestCandidateTiers(t *testing.T) {
	f := newResolverFixture(t)

	// Lead only: excluded from every tier.
	f.addStaff(t, "Lead", "sales", models.RoleConsultant, models.RoleConsultantLead)
	_, err := f.resolver.NextForGroup("sales")
	assert.ErrorIs(t, err, models.ErrNoCandidates)

	// Admissions staff fills tier 2 when no plain consultant exists.
	admissions := f.addStaff(t, "Dung", "sales", models.RoleAdmissions)
	staff, err := f.resolver.NextForGroup("sales")
	require.NoError(t, err)
	assert.Equal(t, admissions.ID, staff.ID)

	// A plain consultant takes over tier 1.
	consultant := f.addStaff(t, "Em", "sales", models.RoleConsultant)
	staff, err = f.resolver.NextForGroup("sales")
	require.NoError(t, err)
	assert.Equal(t, consultant.ID, staff.ID)
}

func TestCandidateFallbackTier(t *testing.T) {
	f := newResolverFixture(t)
	support := f.addStaff(t, "Giang", "telesale", models.RoleSupport)

	staff, err := f.resolver.NextForGroup("telesale")
	require.NoError(t, err)
	assert.Equal(t, support.ID, staff.ID)
}

func TestNextForGroupEmpty(t *testing.T) {
	f := newResolverFixture(t)
	_, err := f.resolver.NextForGroup("telesale")
	assert.ErrorIs(t, err, models.ErrNoCandidates)
}

func TestAssign(t *testing.T) {
	f := newResolverFixture(t)
	first := f.addStaff(t, "Anh", "telesale", models.RoleConsultant)
	f.addStaff(t, "Binh", "telesale", models.RoleConsultant)

	customer := &models.Customer{Name: "Khach A"}
	require.NoError(t, f.customerRepo.Create(customer))

	staff, err := f.resolver.Assign(customer.ID, "tele_sale")
	require.NoError(t, err)
	assert.Equal(t, first.ID, staff.ID)

	// Both the mirror slot and the stage-3 slot carry the assignment status.
	reloaded, err := f.customerRepo.GetByID(customer.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.Equal(t, "telesale_TuVan3", reloaded.StageStatus[0])
	assert.Equal(t, "telesale_TuVan3", reloaded.StageStatus[models.StageAssignment])

	entries, err := f.activityRepo.ListByCustomer(customer.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.StageAssignment, entries[0].Stage)
	assert.Equal(t, "Assigned to Anh", entries[0].Content)
	assert.Equal(t, fmt.Sprintf("staff:%d", first.ID), entries[0].AuthorID)

	owners, err := f.ownerRepo.ListByCustomer(customer.ID)
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, first.ID, owners[0].StaffID)
	assert.Equal(t, "telesale", owners[0].Group)

	// The rotation cursor now points at the selected candidate.
	value, found, err := f.settingsRepo.Get(repository.RotationCursorKey("telesale"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "0", value)
}

func TestAssignAlreadyOwned(t *testing.T) {
	f := newResolverFixture(t)
	staff := f.addStaff(t, "Anh", "telesale", models.RoleConsultant)

	customer := &models.Customer{Name: "Khach B"}
	require.NoError(t, f.customerRepo.Create(customer))
	require.NoError(t, f.ownerRepo.Add(nil, &models.Owner{
		CustomerID: customer.ID,
		StaffID:    staff.ID,
		Group:      "telesale",
	}))

	_, err := f.resolver.Assign(customer.ID, "telesale")
	assert.ErrorIs(t, err, models.ErrAlreadyAssigned)
}

func TestResolveGroupForService(t *testing.T) {
	f := newResolverFixture(t)

	withGroup := &models.Service{Name: "IELTS Course", Group: "tele_sale"}
	require.NoError(t, f.serviceRepo.Create(withGroup))
	withoutGroup := &models.Service{Name: "General Inquiry"}
	require.NoError(t, f.serviceRepo.Create(withoutGroup))

	group, err := f.resolver.ResolveGroupForService(withGroup.ID)
	require.NoError(t, err)
	assert.Equal(t, "telesale", group, "service group wins and is canonicalized")

	group, err = f.resolver.ResolveGroupForService(withoutGroup.ID)
	require.NoError(t, err)
	assert.Equal(t, "", group, "no service group and no default setting")

	require.NoError(t, f.settingsRepo.Set(DefaultGroupKey, "sale"))
	group, err = f.resolver.ResolveGroupForService(withoutGroup.ID)
	require.NoError(t, err)
	assert.Equal(t, "sales", group, "default group setting is canonicalized")
}

func TestAnyEnrollmentStaff(t *testing.T) {
	f := newResolverFixture(t)
	f.addStaff(t, "Lead", "sales", models.RoleConsultant, models.RoleConsultantLead)
	plain := f.addStaff(t, "Hoa", "sales", models.RoleAdmissions)

	staff, err := f.resolver.AnyEnrollmentStaff("sale")
	require.NoError(t, err)
	assert.Equal(t, plain.ID, staff.ID)

	_, err = f.resolver.AnyEnrollmentStaff("telesale")
	assert.ErrorIs(t, err, models.ErrNoCandidates)
}

func TestAssignWithoutGroupUsesServiceGroup(t *testing.T) {
	f := newResolverFixture(t)
	telesale := f.addStaff(t, "Anh", "telesale", models.RoleConsultant)
	f.addStaff(t, "Binh", "sales", models.RoleConsultant)

	service := &models.Service{Name: "IELTS Course", Group: "tele_sale"}
	require.NoError(t, f.serviceRepo.Create(service))
	customer := &models.Customer{Name: "Khach C", ServiceID: service.ID}
	require.NoError(t, f.customerRepo.Create(customer))

	staff, err := f.resolver.Assign(customer.ID, "")
	require.NoError(t, err)
	assert.Equal(t, telesale.ID, staff.ID)

	owners, err := f.ownerRepo.ListByCustomer(customer.ID)
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "telesale", owners[0].Group)
}

func TestAssignWithoutGroupUsesDefaultGroupSetting(t *testing.T) {
	f := newResolverFixture(t)
	f.addStaff(t, "Anh", "telesale", models.RoleConsultant)
	sales := f.addStaff(t, "Binh", "sales", models.RoleConsultant)

	service := &models.Service{Name: "General Inquiry"}
	require.NoError(t, f.serviceRepo.Create(service))
	customer := &models.Customer{Name: "Khach D", ServiceID: service.ID}
	require.NoError(t, f.customerRepo.Create(customer))
	require.NoError(t, f.settingsRepo.Set(DefaultGroupKey, "sale"))

	staff, err := f.resolver.Assign(customer.ID, "")
	require.NoError(t, err)
	assert.Equal(t, sales.ID, staff.ID)
}

func TestAssignWithoutGroupFallsBackToAnyStaff(t *testing.T) {
	f := newResolverFixture(t)
	only := f.addStaff(t, "Anh", "marketing", models.RoleAdmissions)

	service := &models.Service{Name: "General Inquiry"}
	require.NoError(t, f.serviceRepo.Create(service))
	customer := &models.Customer{Name: "Khach E", ServiceID: service.ID}
	require.NoError(t, f.customerRepo.Create(customer))

	staff, err := f.resolver.Assign(customer.ID, "")
	require.NoError(t, err)
	assert.Equal(t, only.ID, staff.ID)

	// The any-staff path does not touch any rotation cursor.
	_, found, err := f.settingsRepo.Get(repository.RotationCursorKey("marketing"))
	require.NoError(t, err)
	assert.False(t, found)
}
