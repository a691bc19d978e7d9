package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/infinitystory/humanstudy/internal/middleware"
	"github.com/infinitystory/humanstudy/internal/model"
	"github.com/infinitystory/humanstudy/internal/service"
	"github.com/infinitystory/humanstudy/pkg/response"
)

type ReviewHandler struct {
	service   *service.SessionService
	validator *validator.Validate
}

func NewReviewHandler(svc *service.SessionService, v *validator.Validate) *ReviewHandler {
	return &ReviewHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/review/start
// @Summary      Start review session
// @Description  Open a segment and wholistic review session, resuming saved progress unless the request discards it
// @Tags         Review
// @Accept       json
// @Produce      json
// @Param        request body model.StartSessionRequest false "Resume decision"
// @Success      200 {object} model.StartSessionResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/review/start [post]
func (h *ReviewHandler) Start(c *fiber.Ctx) error {
	req, err := parseStart(c)
	if err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	result, err := h.service.StartReview(c.Context(), middleware.GetDeviceID(c), req)
	if err != nil {
		return sessionError(c, err)
	}

	return response.OK(c, result)
}

// View handles GET /api/review
func (h *ReviewHandler) View(c *fiber.Ctx) error {
	view, err := h.service.ReviewView(middleware.GetDeviceID(c))
	if err != nil {
		return sessionError(c, err)
	}
	return response.OK(c, view)
}

// Rate handles POST /api/review/rating
// @Summary      Rate segment
// @Description  Record a 1-5 star rating and optional comments for the current clip
// @Tags         Review
// @Accept       json
// @Produce      json
// @Param        request body model.RatingSubmitRequest true "Rating"
// @Success      200 {object} model.View
// @Failure      400 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/review/rating [post]
func (h *ReviewHandler) Rate(c *fiber.Ctx) error {
	var req model.RatingSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	view, err := h.service.SubmitRating(c.Context(), middleware.GetDeviceID(c), &req)
	if err != nil {
		return sessionError(c, err)
	}

	return response.OK(c, view)
}

// Skip handles POST /api/review/skip
func (h *ReviewHandler) Skip(c *fiber.Ctx) error {
	view, err := h.service.SkipTask(c.Context(), middleware.GetDeviceID(c))
	if err != nil {
		return sessionError(c, err)
	}
	return response.OK(c, view)
}

// Wholistic handles POST /api/review/wholistic
// @Summary      Review method
// @Description  Record criterion ratings and comments for the method under review
// @Tags         Review
// @Accept       json
// @Produce      json
// @Param        request body model.ReviewSubmitRequest true "Criterion ratings"
// @Success      200 {object} model.View
// @Failure      400 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      422 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/review/wholistic [post]
func (h *ReviewHandler) Wholistic(c *fiber.Ctx) error {
	var req model.ReviewSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	view, err := h.service.SubmitReview(c.Context(), middleware.GetDeviceID(c), &req)
	if err != nil {
		return sessionError(c, err)
	}

	return response.OK(c, view)
}

// SkipWholistic handles POST /api/review/wholistic/skip
func (h *ReviewHandler) SkipWholistic(c *fiber.Ctx) error {
	view, err := h.service.SkipReview(c.Context(), middleware.GetDeviceID(c))
	if err != nil {
		return sessionError(c, err)
	}
	return response.OK(c, view)
}

// PreviousVideo handles POST /api/review/video/previous
func (h *ReviewHandler) PreviousVideo(c *fiber.Ctx) error {
	view, err := h.service.PreviousVideo(middleware.GetDeviceID(c))
	if err != nil {
		return sessionError(c, err)
	}
	return response.OK(c, view)
}

// NextVideo handles POST /api/review/video/next
func (h *ReviewHandler) NextVideo(c *fiber.Ctx) error {
	view, err := h.service.NextVideo(middleware.GetDeviceID(c))
	if err != nil {
		return sessionError(c, err)
	}
	return response.OK(c, view)
}

// Progress handles GET /api/review/progress
func (h *ReviewHandler) Progress(c *fiber.Ctx) error {
	result, err := h.service.SavedProgress(c.Context(), middleware.GetDeviceID(c), model.FlowReview)
	if err != nil {
		return sessionError(c, err)
	}
	return response.OK(c, result)
}

// ClearProgress handles DELETE /api/review/progress
func (h *ReviewHandler) ClearProgress(c *fiber.Ctx) error {
	if err := h.service.ClearProgress(c.Context(), middleware.GetDeviceID(c), model.FlowReview); err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.NoContent(c)
}
