package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"bookintake/internal/validation"
)

type validateFieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type validateFieldResponse struct {
	Valid   bool   `json:"valid"`
	Field   string `json:"field"`
	Message string `json:"message,omitempty"`
}

// ValidateField godoc
// @Summary      Check one form field
// @Description  Per-field feedback while the form is being filled in. Image fields take the file's content type as value.
// @Tags         submissions
// @Accept       json
// @Produce      json
// @Param        body  body      validateFieldRequest  true  "Field and value"
// @Success      200   {object}  validateFieldResponse
// @Failure      400   {object}  errorPayload
// @Router       /validate [post]
func ValidateField(v *validation.Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req validateFieldRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}

		err := v.ValidateField(req.Field, req.Value)
		switch {
		case err == nil:
			return c.JSON(validateFieldResponse{Valid: true, Field: req.Field})
		case errors.Is(err, validation.ErrUnknownField):
			return writeError(c, fiber.StatusBadRequest, "UNKNOWN_FIELD", "unknown field")
		}

		var ve validation.Errors
		if errors.As(err, &ve) {
			return c.JSON(validateFieldResponse{Field: req.Field, Message: ve[req.Field]})
		}
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
