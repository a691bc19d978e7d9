package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/infinitystory/humanstudy/internal/evaluation"
	"github.com/infinitystory/humanstudy/internal/service"
	"github.com/infinitystory/humanstudy/pkg/response"
)

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

// sessionError maps session failures to the error envelope. A rejected
// submission leaves the session unchanged.
func sessionError(c *fiber.Ctx, err error) error {
	var incomplete *evaluation.IncompleteAnswerError
	switch {
	case errors.Is(err, service.ErrConfigUnavailable):
		return response.ConfigError(c, err.Error())
	case errors.As(err, &incomplete):
		return response.IncompleteAnswer(c, "Please answer all questions before continuing", incomplete.Missing)
	case errors.Is(err, evaluation.ErrIncompleteAnswer):
		return response.IncompleteAnswer(c, err.Error(), nil)
	case errors.Is(err, evaluation.ErrInvalidRating):
		return response.ValidationError(c, err.Error(), nil)
	case errors.Is(err, evaluation.ErrSessionComplete), errors.Is(err, evaluation.ErrWrongPhase):
		return response.Conflict(c, err.Error())
	case errors.Is(err, evaluation.ErrInvalidConfig):
		return response.ConfigError(c, err.Error())
	case errors.Is(err, service.ErrNoSession):
		return response.NotFound(c, "No active session, start one first")
	case errors.Is(err, service.ErrNoResults):
		return response.NotFound(c, "No results recorded yet")
	case errors.Is(err, evaluation.ErrSnapshotUnavailable):
		return response.Error(c, fiber.StatusServiceUnavailable, response.CodeServiceError, "Saved progress is temporarily unavailable, try again", nil)
	}
	return response.ServiceError(c, err.Error())
}
