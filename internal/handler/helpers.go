package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/resonance/api/internal/model"
	"github.com/resonance/api/internal/progress"
	"github.com/resonance/api/internal/storage"
	"github.com/resonance/api/pkg/response"
)

// NewValidator returns a validator with the hexid and notblank tags
// registered
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("hexid", func(fl validator.FieldLevel) bool {
		return storage.IsValidID(fl.Field().String())
	})
	return v
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}

// respondError maps a service error onto the JSON error envelope
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case model.IsValidation(err):
		return response.ValidationError(c, model.PublicMessage(err), nil)
	case model.IsNotFound(err):
		return response.NotFound(c, model.PublicMessage(err))
	}
	log.Printf("[http] %s %s: %v", c.Method(), c.Path(), err)
	return response.ServiceError(c, model.PublicMessage(err))
}

// videoUpload checks the multipart "video" field
func videoUpload(c *fiber.Ctx) (*multipart.FileHeader, error) {
	file, err := c.FormFile("video")
	if err != nil {
		return nil, model.NewValidationError("", "No video file provided")
	}
	if file.Filename == "" {
		return nil, model.NewValidationError("", "No file selected")
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".mp4") {
		return nil, model.NewValidationError("", "Only MP4 files are supported")
	}
	return file, nil
}

// streamEvents writes a job's events as server-sent events. A client that
// goes away stops the writes but not the job; the channel is drained to
// its close.
func streamEvents(c *fiber.Ctx, events <-chan progress.Event) error {
	response.EventStream(c)
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		broken := false
		for ev := range events {
			if broken {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("[sse] failed to encode event: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				broken = true
				continue
			}
			if err := w.Flush(); err != nil {
				broken = true
			}
		}
	}))
	return nil
}
