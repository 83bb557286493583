package handler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/resonance/api/internal/model"
	"github.com/resonance/api/internal/progress"
	"github.com/resonance/api/internal/service"
	"github.com/resonance/api/internal/worker"
	"github.com/resonance/api/pkg/response"
)

type ExportHandler struct {
	service   *service.ExportService
	runner    *worker.JobRunner
	validator *validator.Validate
}

func NewExportHandler(svc *service.ExportService, runner *worker.JobRunner, v *validator.Validate) *ExportHandler {
	return &ExportHandler{
		service:   svc,
		runner:    runner,
		validator: v,
	}
}

// Start handles POST /api/exports
// @Summary      Export a video
// @Description  Mix an instrumental into an uploaded video. Progress is streamed as server-sent events.
// @Tags         Exports
// @Accept       json
// @Produce      text/event-stream
// @Param        request body model.ExportRequest true "Export request"
// @Success      200 {object} model.ExportResult
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Router       /api/exports [post]
func (h *ExportHandler) Start(c *fiber.Ctx) error {
	var req model.ExportRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	_, events := h.runner.Start(worker.JobSpec{
		Type:         model.JobTypeExport,
		Stages:       progress.MediaStages,
		StartMessage: "Starting export…",
		Run: func(ctx context.Context, em *progress.Emitter) (interface{}, error) {
			return h.service.Export(ctx, em, &req)
		},
	})
	return streamEvents(c, events)
}

// Download handles GET /api/exports/:id
// @Summary      Download an export
// @Description  Download a finished export. The file is deleted after one complete transfer.
// @Tags         Exports
// @Produce      video/mp4
// @Param        id path string true "Export ID"
// @Success      200 {file} binary
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/exports/{id} [get]
func (h *ExportHandler) Download(c *fiber.Ctx) error {
	id := c.Params("id")
	claim, err := h.service.Claim(id)
	if err != nil {
		if model.IsValidation(err) || model.IsNotFound(err) {
			return response.NotFound(c, "Export not found")
		}
		return respondError(c, err)
	}

	f, err := os.Open(claim.Path())
	if err != nil {
		if rerr := claim.Restore(); rerr != nil {
			log.Printf("[export] failed to restore %s: %v", id, rerr)
		}
		return response.ServiceError(c, "Failed to open export")
	}

	c.Set(fiber.HeaderContentType, "video/mp4")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="export_%s.mp4"`, id[:12]))
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		_, err := io.Copy(w, f)
		f.Close()
		if err == nil {
			err = w.Flush()
		}
		if err != nil {
			log.Printf("[export] transfer of %s interrupted, keeping it: %v", id, err)
			if rerr := claim.Restore(); rerr != nil {
				log.Printf("[export] failed to restore %s: %v", id, rerr)
			}
			return
		}
		if rerr := claim.Release(); rerr != nil {
			log.Printf("[export] failed to delete %s: %v", id, rerr)
		}
	}))
	return nil
}
