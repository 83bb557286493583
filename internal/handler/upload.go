package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/resonance/api/internal/service"
	"github.com/resonance/api/pkg/response"
)

type UploadHandler struct {
	service   *service.UploadService
	validator *validator.Validate
}

func NewUploadHandler(svc *service.UploadService, v *validator.Validate) *UploadHandler {
	return &UploadHandler{
		service:   svc,
		validator: v,
	}
}

// Submit handles POST /api/videos
// @Summary      Upload a video
// @Description  Store an MP4 video for later export
// @Tags         Videos
// @Accept       multipart/form-data
// @Produce      json
// @Param        video formData file true "MP4 video"
// @Success      201 {object} model.SubmitVideoResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/videos [post]
func (h *UploadHandler) Submit(c *fiber.Ctx) error {
	file, err := videoUpload(c)
	if err != nil {
		return respondError(c, err)
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, err := h.service.SaveVideo(f)
	if err != nil {
		return respondError(c, err)
	}

	return response.Created(c, result)
}

// Delete handles DELETE /api/videos/:videoId
// @Summary      Delete a video
// @Description  Remove an uploaded video. Deleting an absent video succeeds.
// @Tags         Videos
// @Produce      json
// @Param        videoId path string true "Video ID"
// @Success      200 {object} map[string]bool
// @Failure      400 {object} response.ErrorResponse
// @Router       /api/videos/{videoId} [delete]
func (h *UploadHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.DeleteVideo(c.Params("videoId")); err != nil {
		return respondError(c, err)
	}
	return response.OK(c, fiber.Map{"ok": true})
}
