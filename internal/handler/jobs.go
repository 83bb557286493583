package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/resonance/api/internal/service"
	"github.com/resonance/api/internal/storage"
	"github.com/resonance/api/pkg/response"
)

type JobsHandler struct {
	service *service.JobService
}

func NewJobsHandler(svc *service.JobService) *JobsHandler {
	return &JobsHandler{service: svc}
}

// Status handles GET /api/jobs/:jobId
// @Summary      Get job status
// @Description  Latest progress snapshot of a running or recently finished job
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.Job
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/jobs/{jobId} [get]
func (h *JobsHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if !storage.IsValidID(jobID) {
		return response.NotFound(c, "Job not found")
	}

	job, err := h.service.GetStatus(c.UserContext(), jobID)
	if err != nil {
		return respondError(c, err)
	}

	return response.OK(c, job)
}
