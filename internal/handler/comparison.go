package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/infinitystory/humanstudy/internal/middleware"
	"github.com/infinitystory/humanstudy/internal/model"
	"github.com/infinitystory/humanstudy/internal/service"
	"github.com/infinitystory/humanstudy/pkg/response"
)

type ComparisonHandler struct {
	service   *service.SessionService
	validator *validator.Validate
}

func NewComparisonHandler(svc *service.SessionService, v *validator.Validate) *ComparisonHandler {
	return &ComparisonHandler{
		service:   svc,
		validator: v,
	}
}

// parseStart reads an optional start request; an empty body means resume
func parseStart(c *fiber.Ctx) (*model.StartSessionRequest, error) {
	var req model.StartSessionRequest
	if len(c.Body()) == 0 {
		return &req, nil
	}
	if err := c.BodyParser(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Start handles POST /api/comparison/start
// @Summary      Start comparison session
// @Description  Open a comparison session, resuming saved progress unless the request discards it
// @Tags         Comparison
// @Accept       json
// @Produce      json
// @Param        request body model.StartSessionRequest false "Resume decision"
// @Success      200 {object} model.StartSessionResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/comparison/start [post]
func (h *ComparisonHandler) Start(c *fiber.Ctx) error {
	req, err := parseStart(c)
	if err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	result, err := h.service.StartComparison(c.Context(), middleware.GetDeviceID(c), req)
	if err != nil {
		return sessionError(c, err)
	}

	return response.OK(c, result)
}

// View handles GET /api/comparison
// @Summary      Current comparison
// @Tags         Comparison
// @Produce      json
// @Success      200 {object} model.View
// @Failure      404 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/comparison [get]
func (h *ComparisonHandler) View(c *fiber.Ctx) error {
	view, err := h.service.ComparisonView(middleware.GetDeviceID(c))
	if err != nil {
		return sessionError(c, err)
	}
	return response.OK(c, view)
}

// Submit handles POST /api/comparison/submit
// @Summary      Submit comparison answers
// @Description  Record the slot chosen for each of the five questions of the current comparison
// @Tags         Comparison
// @Accept       json
// @Produce      json
// @Param        request body model.ComparisonSubmitRequest true "Answers by question"
// @Success      200 {object} model.View
// @Failure      400 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      422 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/comparison/submit [post]
func (h *ComparisonHandler) Submit(c *fiber.Ctx) error {
	var req model.ComparisonSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	view, err := h.service.SubmitComparison(c.Context(), middleware.GetDeviceID(c), req.Answers)
	if err != nil {
		return sessionError(c, err)
	}

	return response.OK(c, view)
}

// Progress handles GET /api/comparison/progress
// @Summary      Saved comparison progress
// @Tags         Comparison
// @Produce      json
// @Success      200 {object} model.SavedProgressResponse
// @Security     BearerAuth
// @Router       /api/comparison/progress [get]
func (h *ComparisonHandler) Progress(c *fiber.Ctx) error {
	result, err := h.service.SavedProgress(c.Context(), middleware.GetDeviceID(c), model.FlowComparison)
	if err != nil {
		return sessionError(c, err)
	}
	return response.OK(c, result)
}

// ClearProgress handles DELETE /api/comparison/progress
// @Summary      Discard saved comparison progress
// @Tags         Comparison
// @Success      204
// @Security     BearerAuth
// @Router       /api/comparison/progress [delete]
func (h *ComparisonHandler) ClearProgress(c *fiber.Ctx) error {
	if err := h.service.ClearProgress(c.Context(), middleware.GetDeviceID(c), model.FlowComparison); err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.NoContent(c)
}
