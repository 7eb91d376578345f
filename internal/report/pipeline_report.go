// Package report builds operator-facing pipeline reports.
package report

import (
	"fmt"

	"github.com/tuanngo/crm-pipeline/internal/models"
	"github.com/tuanngo/crm-pipeline/internal/pipeline"
	"github.com/tuanngo/crm-pipeline/internal/repository"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// stageNames labels the six pipeline stages on the summary sheet.
var stageNames = map[int]string{
	models.StageIntake:       "Intake",
	models.StageMessaging:    "Messaging",
	models.StageAssignment:   "Assignment",
	models.StageConsultation: "Consultation",
	models.StageAppointment:  "Appointment",
	models.StageEnrollment:   "Enrollment",
}

// maxReportRows bounds a single export.
const maxReportRows = 10000

// PipelineReport exports the current pipeline distribution to an Excel
// workbook.
type PipelineReport struct {
	customerRepo *repository.CustomerRepository
	logger       *zap.Logger
}

// NewPipelineReport creates a new pipeline report generator
func NewPipelineReport(customerRepo *repository.CustomerRepository, logger *zap.Logger) *PipelineReport {
	return &PipelineReport{
		customerRepo: customerRepo,
		logger:       logger,
	}
}

// Generate builds the workbook: a summary sheet with per-stage counts and a
// detail sheet listing every customer with its live stage and current status.
func (r *PipelineReport) Generate() (*excelize.File, error) {
	customers, err := r.customerRepo.List(maxReportRows, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load customers: %w", err)
	}

	f := excelize.NewFile()

	summary := "Summary"
	f.SetSheetName("Sheet1", summary)
	f.SetCellValue(summary, "A1", "Stage")
	f.SetCellValue(summary, "B1", "Customers")

	counts := make(map[int]int)
	for _, c := range customers {
		counts[pipeline.CurrentStage(c)]++
	}

	for stage := models.StageMin; stage <= models.StageMax; stage++ {
		row := stage + 1
		f.SetCellValue(summary, fmt.Sprintf("A%d", row), stageNames[stage])
		f.SetCellValue(summary, fmt.Sprintf("B%d", row), counts[stage])
	}
	f.SetCellValue(summary, fmt.Sprintf("A%d", models.StageMax+2), "Unstaged")
	f.SetCellValue(summary, fmt.Sprintf("B%d", models.StageMax+2), counts[0])

	detail := "Customers"
	if _, err := f.NewSheet(detail); err != nil {
		return nil, fmt.Errorf("failed to create detail sheet: %w", err)
	}
	f.SetCellValue(detail, "A1", "ID")
	f.SetCellValue(detail, "B1", "Name")
	f.SetCellValue(detail, "C1", "Phone")
	f.SetCellValue(detail, "D1", "Stage")
	f.SetCellValue(detail, "E1", "Status")

	for i, c := range customers {
		row := i + 2
		f.SetCellValue(detail, fmt.Sprintf("A%d", row), c.ID)
		f.SetCellValue(detail, fmt.Sprintf("B%d", row), c.Name)
		f.SetCellValue(detail, fmt.Sprintf("C%d", row), c.Phone)
		f.SetCellValue(detail, fmt.Sprintf("D%d", row), pipeline.CurrentStage(c))
		f.SetCellValue(detail, fmt.Sprintf("E%d", row), c.StageStatus[0])
	}

	r.logger.Info("Pipeline report generated", zap.Int("customers", len(customers)))
	return f, nil
}

// ExportFile writes the report workbook to the given path
func (r *PipelineReport) ExportFile(path string) error {
	f, err := r.Generate()
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}
