package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/tunecraft/api/internal/model"
	"github.com/tunecraft/api/internal/service"
	"github.com/tunecraft/api/internal/track"
	"github.com/tunecraft/api/pkg/response"
)

type ConvertHandler struct {
	service   *service.ConvertService
	validator *validator.Validate
}

func NewConvertHandler(svc *service.ConvertService, v *validator.Validate) *ConvertHandler {
	return &ConvertHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/convert/:kind/start
func (h *ConvertHandler) Start(c *fiber.Ctx) error {
	kind := model.JobKind(c.Params("kind"))
	if !kind.Valid() {
		return response.ValidationError(c, "Unknown conversion kind", nil)
	}

	var req model.ConvertStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.StartConversion(c.Context(), kind, &req)
	if err != nil {
		var subErr *track.SubmissionError
		if errors.As(err, &subErr) {
			return response.Error(c, fiber.StatusBadGateway, response.CodeJobFailed, subErr.Reason, nil)
		}
		return response.ValidationError(c, err.Error(), nil)
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/convert/status/:surfaceId
func (h *ConvertHandler) Status(c *fiber.Ctx) error {
	result, err := h.service.Status(c.Params("surfaceId"))
	if err != nil {
		return response.NotFound(c, err.Error())
	}
	return response.OK(c, result)
}

// Results handles GET /api/convert/results/:surfaceId
func (h *ConvertHandler) Results(c *fiber.Ctx) error {
	result, err := h.service.Results(c.Params("surfaceId"))
	if err != nil {
		return response.NotFound(c, err.Error())
	}
	return response.OK(c, result)
}

// Cancel handles POST /api/convert/cancel/:surfaceId
func (h *ConvertHandler) Cancel(c *fiber.Ctx) error {
	result, err := h.service.Cancel(c.Params("surfaceId"))
	if err != nil {
		return response.NotFound(c, err.Error())
	}
	return response.OK(c, result)
}

// Retry handles POST /api/convert/retry/:surfaceId
func (h *ConvertHandler) Retry(c *fiber.Ctx) error {
	result, err := h.service.Retry(c.Context(), c.Params("surfaceId"))
	if err != nil {
		var subErr *track.SubmissionError
		if errors.As(err, &subErr) {
			return response.Error(c, fiber.StatusBadGateway, response.CodeJobFailed, subErr.Reason, nil)
		}
		return response.ValidationError(c, err.Error(), nil)
	}
	return response.Accepted(c, result)
}

// formatValidationErrors converts validator errors to a readable map
func formatValidationErrors(err error) map[string]string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		out[e.Field()] = e.Tag()
	}
	return out
}
