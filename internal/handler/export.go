package handler

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/infinitystory/humanstudy/internal/middleware"
	"github.com/infinitystory/humanstudy/internal/model"
	"github.com/infinitystory/humanstudy/internal/service"
	"github.com/infinitystory/humanstudy/pkg/response"
)

type ExportHandler struct {
	service   *service.ExportService
	validator *validator.Validate
}

func NewExportHandler(svc *service.ExportService, v *validator.Validate) *ExportHandler {
	return &ExportHandler{
		service:   svc,
		validator: v,
	}
}

// Export handles POST /api/export
// @Summary      Export results
// @Description  Render the results of the calling device as JSON, CSV or XLSX. With upload set the file is stored in R2 and a link is returned instead.
// @Tags         Export
// @Accept       json
// @Produce      json
// @Produce      octet-stream
// @Param        request body model.ExportRequest true "Export request"
// @Success      200 {object} model.ExportResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/export [post]
func (h *ExportHandler) Export(c *fiber.Ctx) error {
	var req model.ExportRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	if req.Upload && !h.service.CanUpload() {
		return response.Error(c, fiber.StatusServiceUnavailable, response.CodeServiceError, "Object storage not configured", nil)
	}

	deviceID := middleware.GetDeviceID(c)
	file, err := h.service.Export(c.Context(), deviceID, &req)
	if err != nil {
		return sessionError(c, err)
	}

	if req.Upload {
		result, err := h.service.Upload(c.Context(), deviceID, file)
		if err != nil {
			return response.ServiceError(c, err.Error())
		}
		return response.Created(c, result)
	}

	c.Set(fiber.HeaderContentType, file.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.FileName))
	return c.Send(file.Data)
}
