package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuanngo/crm-pipeline/internal/assignment"
	"github.com/tuanngo/crm-pipeline/internal/models"
	"github.com/tuanngo/crm-pipeline/internal/pipeline"
	"github.com/tuanngo/crm-pipeline/internal/report"
	"github.com/tuanngo/crm-pipeline/internal/repository"
	"github.com/tuanngo/crm-pipeline/internal/schedule"
	"github.com/tuanngo/crm-pipeline/internal/subflow"
	"github.com/tuanngo/crm-pipeline/migrations"
	"github.com/tuanngo/crm-pipeline/pkg/database"
	"go.uber.org/zap"
)

// The sugared zap logger the server binary wires in must satisfy the
// transport's logging interface.
var _ Logger = (*zap.SugaredLogger)(nil)

type serverFixture struct {
	server       *Server
	customerRepo *repository.CustomerRepository
	templateRepo *repository.TemplateRepository
	stateRepo    *repository.SubWorkflowStateRepository
	serviceRepo  *repository.ServiceRepository
	staffRepo    *repository.StaffRepository
	ownerRepo    *repository.OwnerRepository
}

func newServerFixture(t *testing.T) *serverFixture {
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
	ownerRepo := repository.NewOwnerRepository(db.DB, logger)
	templateRepo := repository.NewTemplateRepository(db.DB, logger)
	stateRepo := repository.NewSubWorkflowStateRepository(db.DB, logger)
	scheduleRepo := repository.NewScheduleRepository(db.DB, logger)
	settingsRepo := repository.NewSettingsRepository(db.DB, logger)
	staffRepo := repository.NewStaffRepository(db.DB, logger)
	serviceRepo := repository.NewServiceRepository(db.DB, logger)

	tracker := pipeline.NewTracker(db, customerRepo, activityRepo, logger)
	store := schedule.NewStore(scheduleRepo, logger)
	manager := subflow.NewManager(templateRepo, stateRepo, activityRepo, customerRepo, store, 0, logger)
	resolver := assignment.NewResolver(db, staffRepo, settingsRepo, serviceRepo, ownerRepo, customerRepo, tracker, logger)
	pipelineReport := report.NewPipelineReport(customerRepo, logger)

	server := NewServer(ServerConfig{Host: "127.0.0.1", Port: 0},
		tracker, manager, store, resolver, pipelineReport, logger.Sugar())

	return &serverFixture{
		server:       server,
		customerRepo: customerRepo,
		templateRepo: templateRepo,
		stateRepo:    stateRepo,
		serviceRepo:  serviceRepo,
		staffRepo:    staffRepo,
		ownerRepo:    ownerRepo,
	}
}

func (f *serverFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBuffer(nil)
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	f := newServerFixture(t)
	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecordTransitionSeedsAutomaticWorkflows(t *testing.T) {
	f := newServerFixture(t)

	customer := &models.Customer{Name: "Khach A"}
	require.NoError(t, f.customerRepo.Create(customer))

	auto := &models.WorkflowTemplate{
		Name:          "auto-welcome",
		IsSubWorkflow: true,
		AttachStage:   2,
		IsAutomatic:   true,
	}
	require.NoError(t, f.templateRepo.Create(auto))
	manual := &models.WorkflowTemplate{
		Name:          "manual-follow-up",
		IsSubWorkflow: true,
		AttachStage:   2,
	}
	require.NoError(t, f.templateRepo.Create(manual))

	rec := f.do(t, http.MethodPost, "/api/customers/1/transitions",
		`{"stage": 2, "status": "NhanTin2", "author_id": "staff:1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The automatic workflow is armed for the dispatcher, the manual one is not.
	state, err := f.stateRepo.Get(customer.ID, auto.ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, models.AutoTriggerPending, state.AutoTriggerState)

	manualState, err := f.stateRepo.Get(customer.ID, manual.ID)
	require.NoError(t, err)
	assert.Nil(t, manualState)
}

func TestAssignWithoutGroupUsesServiceGroup(t *testing.T) {
	f := newServerFixture(t)

	service := &models.Service{Name: "IELTS Course", Group: "tele_sale"}
	require.NoError(t, f.serviceRepo.Create(service))

	customer := &models.Customer{Name: "Khach B", ServiceID: service.ID}
	require.NoError(t, f.customerRepo.Create(customer))

	staff := &models.Staff{Name: "Anh", Group: "telesale", Roles: []string{models.RoleConsultant}}
	require.NoError(t, f.staffRepo.Create(staff))

	rec := f.do(t, http.MethodPost, "/api/customers/1/assign", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	owners, err := f.ownerRepo.ListByCustomer(customer.ID)
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, staff.ID, owners[0].StaffID)
	assert.Equal(t, "telesale", owners[0].Group)
}
