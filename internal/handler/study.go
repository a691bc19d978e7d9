package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/infinitystory/humanstudy/internal/service"
	"github.com/infinitystory/humanstudy/pkg/response"
)

// StudyHandler exposes the loaded study definition
type StudyHandler struct {
	service *service.SessionService
}

func NewStudyHandler(svc *service.SessionService) *StudyHandler {
	return &StudyHandler{service: svc}
}

// Config handles GET /api/config
// @Summary      Study configuration
// @Description  Return the methods, clips, sections and criteria of the running study
// @Tags         Study
// @Produce      json
// @Success      200 {object} model.EvaluationConfig
// @Failure      503 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/config [get]
func (h *StudyHandler) Config(c *fiber.Ctx) error {
	if err := h.service.ConfigError(); err != nil {
		return response.ConfigError(c, "Error loading configuration: "+err.Error())
	}
	return response.OK(c, h.service.Config())
}
