package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/tunecraft/api/internal/model"
	"github.com/tunecraft/api/internal/service"
	"github.com/tunecraft/api/pkg/response"
)

type DownloadHandler struct {
	downloads *service.DownloadService
	converts  *service.ConvertService
	validator *validator.Validate
}

func NewDownloadHandler(downloads *service.DownloadService, converts *service.ConvertService, v *validator.Validate) *DownloadHandler {
	return &DownloadHandler{
		downloads: downloads,
		converts:  converts,
		validator: v,
	}
}

// StartArchive handles POST /api/download/archive
func (h *DownloadHandler) StartArchive(c *fiber.Ctx) error {
	var req model.ArchiveStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	results, err := h.converts.Results(req.SurfaceID)
	if err != nil {
		return response.NotFound(c, err.Error())
	}

	result, err := h.downloads.StartArchive(c.Context(), results)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.Accepted(c, result)
}

// ArchiveStatus handles GET /api/download/archive/:archiveId
func (h *DownloadHandler) ArchiveStatus(c *fiber.Ctx) error {
	result, err := h.downloads.GetArchive(c.Context(), c.Params("archiveId"))
	if err != nil {
		return response.NotFound(c, err.Error())
	}
	return response.OK(c, result)
}
