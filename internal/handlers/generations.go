package handlers

import (
	"context"
	"net/http"

	"github.com/BroadApps-official/App-056/internal/generation"
	"github.com/BroadApps-official/App-056/internal/models"
	"github.com/gin-gonic/gin"
)

type Orchestrator interface {
	Submit(ctx context.Context, userID string, req models.GenerationRequest) (models.JobView, error)
	Job(jobID string) (models.JobView, bool)
	Jobs(userID string) []models.JobView
	Cancel(jobID string) error
}

type GenerationsHandler struct {
	orch Orchestrator
}

func NewGenerationsHandler(orch Orchestrator) *GenerationsHandler {
	return &GenerationsHandler{orch: orch}
}

// CreateGeneration godoc
// @Summary     Start a generation
// @Description Submits a template, god-mode or txt2img job. A loading project appears immediately and is filled in when the job completes.
// @Tags        generations
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.GenerationRequest true "Generation parameters"
// @Success     202 {object} models.JobView
// @Failure     400 {object} models.ErrorResponse
// @Failure     402 {object} models.ErrorResponse
// @Failure     502 {object} models.ErrorResponse
// @Router      /generations [post]
func (h *GenerationsHandler) CreateGeneration(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req models.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request", Message: err.Error()})
		return
	}

	view, err := h.orch.Submit(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err, "failed to start generation")
		return
	}
	c.JSON(http.StatusAccepted, view)
}

// ListGenerations godoc
// @Summary     List generation jobs
// @Description Running jobs and recently finished ones, newest first
// @Tags        generations
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.GenerationListResponse
// @Router      /generations [get]
func (h *GenerationsHandler) ListGenerations(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, models.GenerationListResponse{Jobs: h.orch.Jobs(userID)})
}

// GetGeneration godoc
// @Summary     Get a generation job
// @Tags        generations
// @Produce     json
// @Security    Bearer
// @Param       job_id path string true "Job ID"
// @Success     200 {object} models.JobView
// @Failure     404 {object} models.ErrorResponse
// @Router      /generations/{job_id} [get]
func (h *GenerationsHandler) GetGeneration(c *gin.Context) {
	view, ok := h.ownedJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, view)
}

// CancelGeneration godoc
// @Summary     Cancel a generation job
// @Description Stops polling; the placeholder project is marked failed
// @Tags        generations
// @Produce     json
// @Security    Bearer
// @Param       job_id path string true "Job ID"
// @Success     200 {object} models.JobView
// @Failure     404 {object} models.ErrorResponse
// @Router      /generations/{job_id} [delete]
func (h *GenerationsHandler) CancelGeneration(c *gin.Context) {
	view, ok := h.ownedJob(c)
	if !ok {
		return
	}
	if err := h.orch.Cancel(view.JobID); err != nil {
		respondError(c, err, "failed to cancel generation")
		return
	}
	view, _ = h.orch.Job(view.JobID)
	c.JSON(http.StatusOK, view)
}

// ownedJob answers 404 for jobs of other users as well as unknown ones.
func (h *GenerationsHandler) ownedJob(c *gin.Context) (models.JobView, bool) {
	userID, ok := requireUser(c)
	if !ok {
		return models.JobView{}, false
	}
	view, found := h.orch.Job(c.Param("job_id"))
	if !found || view.UserID != userID {
		respondError(c, generation.ErrUnknownJob, "generation not found")
		return models.JobView{}, false
	}
	return view, true
}
