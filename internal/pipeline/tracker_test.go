package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuanngo/crm-pipeline/internal/models"
	"github.com/tuanngo/crm-pipeline/internal/repository"
	"github.com/tuanngo/crm-pipeline/migrations"
	"github.com/tuanngo/crm-pipeline/pkg/database"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *database.DB {
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
	return db
}

func newTestTracker(t *testing.T) (*Tracker, *repository.CustomerRepository, *repository.ActivityRepository) {
	t.Helper()

	db := newTestDB(t)
	logger := zap.NewNop()
	customerRepo := repository.NewCustomerRepository(db.DB, logger)
	activityRepo := repository.NewActivityRepository(db.DB, logger)
	tracker := NewTracker(db, customerRepo, activityRepo, logger)
	return tracker, customerRepo, activityRepo
}

func TestRecordTransition(t *testing.T) {
	tracker, customerRepo, activityRepo := newTestTracker(t)

	customer := &models.Customer{Name: "Nguyen Van A", Phone: "0901000001"}
	require.NoError(t, customerRepo.Create(customer))

	err := tracker.RecordTransition(customer.ID, 2, models.StatusMessaged2, "first message sent", "staff:7")
	require.NoError(t, err)

	updated, err := customerRepo.GetByID(customer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusMessaged2, updated.StageStatus[0])
	assert.Equal(t, models.StatusMessaged2, updated.StageStatus[2])

	entries, err := activityRepo.ListByCustomer(customer.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Stage)
	assert.Equal(t, "first message sent", entries[0].Content)
	assert.Equal(t, "staff:7", entries[0].AuthorID)
}

func TestRecordTransitionTwiceAppendsTwoEntries(t *testing.T) {
	tracker, customerRepo, activityRepo := newTestTracker(t)

	customer := &models.Customer{Name: "Tran Thi B"}
	require.NoError(t, customerRepo.Create(customer))

	require.NoError(t, tracker.RecordTransition(customer.ID, 1, models.StatusNew1, "", "staff:1"))
	require.NoError(t, tracker.RecordTransition(customer.ID, 1, models.StatusNew1, "", "staff:1"))

	updated, err := customerRepo.GetByID(customer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew1, updated.StageStatus[1])

	entries, err := activityRepo.ListByCustomer(customer.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "idempotent in effect but not in audit")
}

func TestRecordTransitionValidation(t *testing.T) {
	tracker, customerRepo, _ := newTestTracker(t)

	customer := &models.Customer{Name: "Le Van C"}
	require.NoError(t, customerRepo.Create(customer))

	tests := []struct {
		name    string
		stage   int
		wantErr error
	}{
		{name: "stage zero", stage: 0, wantErr: models.ErrInvalidStage},
		{name: "stage seven", stage: 7, wantErr: models.ErrInvalidStage},
		{name: "negative stage", stage: -1, wantErr: models.ErrInvalidStage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tracker.RecordTransition(customer.ID, tt.stage, models.StatusNew1, "", "")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RecordTransition stage %d error = %v, want %v", tt.stage, err, tt.wantErr)
			}
		})
	}
}

func TestRecordTransitionMissingCustomer(t *testing.T) {
	tracker, _, _ := newTestTracker(t)

	err := tracker.RecordTransition(9999, 1, models.StatusNew1, "", "")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCurrentStage(t *testing.T) {
	tests := []struct {
		name        string
		stageStatus []string
		want        int
	}{
		{
			name:        "fresh customer has no stage",
			stageStatus: []string{"", "", "", "", "", "", ""},
			want:        0,
		},
		{
			name:        "intake only",
			stageStatus: []string{models.StatusNew1, models.StatusNew1, "", "", "", "", ""},
			want:        1,
		},
		{
			name:        "highest consistent slot wins",
			stageStatus: []string{models.StatusAppointment5, models.StatusNew1, models.StatusMessaged2, "telesale_TuVan3", models.StatusConsulted4, models.StatusAppointment5, ""},
			want:        5,
		},
		{
			name:        "legacy decorated value still matches its stage",
			stageStatus: []string{"telesale_TuVan3_1", "", "", "telesale_TuVan3_1", "", "", ""},
			want:        3,
		},
		{
			name:        "slot holding foreign stage value is skipped",
			stageStatus: []string{"", "", "", "", "", "", models.StatusAppointment5},
			want:        0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			customer := &models.Customer{StageStatus: tt.stageStatus}
			if got := CurrentStage(customer); got != tt.want {
				t.Errorf("CurrentStage() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTrackerCurrentStage(t *testing.T) {
	tracker, customerRepo, _ := newTestTracker(t)

	customer := &models.Customer{Name: "Pham Thi D"}
	require.NoError(t, customerRepo.Create(customer))

	require.NoError(t, tracker.RecordTransition(customer.ID, 1, models.StatusNew1, "", ""))
	require.NoError(t, tracker.RecordTransition(customer.ID, 2, models.StatusMessaged2, "", ""))

	stage, err := tracker.CurrentStage(customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stage)
}
