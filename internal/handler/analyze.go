package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/resonance/api/internal/model"
	"github.com/resonance/api/internal/progress"
	"github.com/resonance/api/internal/service"
	"github.com/resonance/api/internal/worker"
	"github.com/resonance/api/pkg/response"
)

const analysisUnavailable = "Video analysis is not configured"

type AnalyzeHandler struct {
	service   *service.AnalysisService
	uploads   *service.UploadService
	runner    *worker.JobRunner
	validator *validator.Validate
}

func NewAnalyzeHandler(svc *service.AnalysisService, uploads *service.UploadService, runner *worker.JobRunner, v *validator.Validate) *AnalyzeHandler {
	return &AnalyzeHandler{
		service:   svc,
		uploads:   uploads,
		runner:    runner,
		validator: v,
	}
}

// Analyze handles POST /api/analyze
// @Summary      Suggest songs for a video
// @Description  Transcribe the video's speech and suggest matching songs. Progress is streamed as server-sent events.
// @Tags         Analyze
// @Accept       multipart/form-data
// @Produce      text/event-stream
// @Param        video formData file true "MP4 video"
// @Success      200 {object} model.AnalyzeResult
// @Failure      400 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Router       /api/analyze [post]
func (h *AnalyzeHandler) Analyze(c *fiber.Ctx) error {
	if !h.service.IsConfigured() {
		return response.Unavailable(c, analysisUnavailable)
	}

	file, err := videoUpload(c)
	if err != nil {
		return respondError(c, err)
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	video, cleanup, err := h.uploads.SaveTemp(f)
	f.Close()
	if err != nil {
		return respondError(c, err)
	}

	_, events := h.runner.Start(worker.JobSpec{
		Type:         model.JobTypeAnalyze,
		Stages:       progress.AnalysisStages,
		StartMessage: "Uploading…",
		Run: func(ctx context.Context, em *progress.Emitter) (interface{}, error) {
			defer cleanup()
			return h.service.Analyze(ctx, em, video)
		},
	})
	return streamEvents(c, events)
}

// Reroll handles POST /api/analyze/reroll
// @Summary      Suggest different songs
// @Description  Ask for a new set of songs for an existing transcript, excluding ones already shown
// @Tags         Analyze
// @Accept       json
// @Produce      json
// @Param        request body model.RerollRequest true "Transcript and exclusions"
// @Success      200 {object} model.RerollResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Router       /api/analyze/reroll [post]
func (h *AnalyzeHandler) Reroll(c *fiber.Ctx) error {
	if !h.service.IsConfigured() {
		return response.Unavailable(c, analysisUnavailable)
	}

	var req model.RerollRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	vibe, err := h.service.Suggest(c.UserContext(), req.Transcript, req.Duration, req.Exclude)
	if err != nil {
		return respondError(c, err)
	}

	return response.OK(c, model.RerollResponse{Tracks: h.service.Recommend(c.UserContext(), vibe.Tracks)})
}
