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

type InstrumentalHandler struct {
	service   *service.InstrumentalService
	runner    *worker.JobRunner
	validator *validator.Validate
}

func NewInstrumentalHandler(svc *service.InstrumentalService, runner *worker.JobRunner, v *validator.Validate) *InstrumentalHandler {
	return &InstrumentalHandler{
		service:   svc,
		runner:    runner,
		validator: v,
	}
}

// Search handles POST /api/instrumentals/search
// @Summary      Find an instrumental
// @Description  Search, download and cache an instrumental. Progress is streamed as server-sent events.
// @Tags         Instrumentals
// @Accept       json
// @Produce      text/event-stream
// @Param        request body model.FindInstrumentalRequest true "Song to find"
// @Success      200 {object} model.FindInstrumentalResult
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Router       /api/instrumentals/search [post]
func (h *InstrumentalHandler) Search(c *fiber.Ctx) error {
	var req model.FindInstrumentalRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	_, events := h.runner.Start(worker.JobSpec{
		Type:         model.JobTypeInstrumental,
		Stages:       progress.MediaStages,
		StartMessage: "Starting search…",
		Run: func(ctx context.Context, em *progress.Emitter) (interface{}, error) {
			return h.service.Find(ctx, em, &req)
		},
	})
	return streamEvents(c, events)
}

// Audio handles GET /api/instrumentals/:id
// @Summary      Stream a cached instrumental
// @Tags         Instrumentals
// @Produce      audio/mpeg
// @Param        id path string true "Instrumental ID"
// @Success      200 {file} binary
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/instrumentals/{id} [get]
func (h *InstrumentalHandler) Audio(c *fiber.Ctx) error {
	f, info, err := h.service.Open(c.Params("id"))
	if err != nil {
		if model.IsValidation(err) || model.IsNotFound(err) {
			return response.NotFound(c, "Instrumental not found")
		}
		return respondError(c, err)
	}

	c.Set(fiber.HeaderContentType, "audio/mpeg")
	c.Context().SetBodyStream(f, int(info.Size()))
	return nil
}
