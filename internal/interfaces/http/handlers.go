package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tuanngo/crm-pipeline/internal/assignment"
	"github.com/tuanngo/crm-pipeline/internal/models"
	"github.com/tuanngo/crm-pipeline/internal/pipeline"
	"github.com/tuanngo/crm-pipeline/internal/report"
	"github.com/tuanngo/crm-pipeline/internal/schedule"
	"github.com/tuanngo/crm-pipeline/internal/subflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	tracker  *pipeline.Tracker
	manager  *subflow.Manager
	store    *schedule.Store
	resolver *assignment.Resolver
	report   *report.PipelineReport
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	tracker *pipeline.Tracker,
	manager *subflow.Manager,
	store *schedule.Store,
	resolver *assignment.Resolver,
	pipelineReport *report.PipelineReport,
	logger Logger,
) *Handlers {
	return &Handlers{
		tracker:  tracker,
		manager:  manager,
		store:    store,
		resolver: resolver,
		report:   pipelineReport,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// TransitionRequest is the body for POST /api/customers/:id/transitions
type TransitionRequest struct {
	Stage    int    `json:"stage" binding:"required"`
	Status   string `json:"status" binding:"required"`
	Note     string `json:"note"`
	AuthorID string `json:"author_id"`
}

// AssignRequest is the body for POST /api/customers/:id/assign. An omitted
// group makes the resolver derive one from the customer's service and the
// system default before falling back to any enrollment staff.
type AssignRequest struct {
	Group string `json:"group"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// RecordTransition handles POST /api/customers/:id/transitions
func (h *Handlers) RecordTransition(c *gin.Context) {
	customerID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	if err := h.tracker.RecordTransition(customerID, req.Stage, req.Status, req.Note, req.AuthorID); err != nil {
		h.writeError(c, err)
		return
	}

	// The reached stage may carry automatic sub-workflows; arm them so the
	// dispatcher can observe their pending state. The transition itself is
	// already committed, so a seeding failure is logged, not surfaced.
	if err := h.manager.SeedStageWorkflows(customerID, req.Stage); err != nil {
		h.logger.Errorw("Failed to seed stage workflows",
			"customer_id", customerID, "stage", req.Stage, "error", err)
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// CurrentStage handles GET /api/customers/:id/stage
func (h *Handlers) CurrentStage(c *gin.Context) {
	customerID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	stage, err := h.tracker.CurrentStage(customerID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    gin.H{"customer_id": customerID, "stage": stage},
	})
}

// Assign handles POST /api/customers/:id/assign
func (h *Handlers) Assign(c *gin.Context) {
	customerID, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req AssignRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid request body")
			return
		}
	}

	staff, err := h.resolver.Assign(customerID, req.Group)
	if err != nil {
		h.writeError(c, err)
		return
	}

	// Assignment is a stage transition too: arm the stage's automatic
	// sub-workflows.
	if err := h.manager.SeedStageWorkflows(customerID, models.StageAssignment); err != nil {
		h.logger.Errorw("Failed to seed stage workflows",
			"customer_id", customerID, "stage", models.StageAssignment, "error", err)
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"staff_id":   staff.ID,
			"staff_name": staff.Name,
			"group":      assignment.CanonicalGroup(staff.Group),
		},
	})
}

// UpsertConfig handles PUT /api/customers/:id/workflows/:templateID/config
func (h *Handlers) UpsertConfig(c *gin.Context) {
	customerID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	templateID, ok := h.pathID(c, "templateID")
	if !ok {
		return
	}

	var patch subflow.ConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	state, err := h.manager.UpsertConfig(customerID, templateID, patch)
	if err != nil {
		// An invalid configuration still merged its fields; report both.
		if errors.Is(err, models.ErrInvalidConfig) && state != nil {
			c.JSON(http.StatusOK, Response{
				Success: true,
				Data:    state,
				Error:   err.Error(),
			})
			return
		}
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: state})
}

// DisableSchedule handles DELETE /api/customers/:id/workflows/:templateID/schedule
func (h *Handlers) DisableSchedule(c *gin.Context) {
	customerID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	templateID, ok := h.pathID(c, "templateID")
	if !ok {
		return
	}

	if err := h.manager.Disable(customerID, templateID); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// GetSchedule handles GET /api/customers/:id/workflows/:templateID/schedule
func (h *Handlers) GetSchedule(c *gin.Context) {
	customerID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	templateID, ok := h.pathID(c, "templateID")
	if !ok {
		return
	}

	sched, err := h.store.Get(customerID, templateID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if sched == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "schedule not found"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: sched})
}

// AdvanceCursor handles POST /api/customers/:id/workflows/:templateID/advance
func (h *Handlers) AdvanceCursor(c *gin.Context) {
	customerID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	templateID, ok := h.pathID(c, "templateID")
	if !ok {
		return
	}

	if err := h.store.AdvanceCursor(customerID, templateID); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// ExportPipelineReport handles GET /api/reports/pipeline.xlsx
func (h *Handlers) ExportPipelineReport(c *gin.Context) {
	f, err := h.report.Generate()
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Disposition", `attachment; filename="pipeline.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		h.logger.Errorw("Failed to stream report", "error", err)
	}
}

// pathID parses a positive integer path parameter
func (h *Handlers) pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

// writeError maps core error kinds onto HTTP status codes
func (h *Handlers) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidStage), errors.Is(err, models.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrAlreadyAssigned):
		status = http.StatusConflict
	case errors.Is(err, models.ErrNoCandidates):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.logger.Errorw("Request failed", "error", err)
	}

	c.JSON(status, Response{Success: false, Error: err.Error()})
}
