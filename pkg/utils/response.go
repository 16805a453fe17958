package utils

import (
	"errors"
	"net/http"

	"courier-platform/internal/models"

	"github.com/labstack/echo/v4"
)

// RespondWithJSON writes a JSON body with the given status.
func RespondWithJSON(c echo.Context, status int, payload interface{}) error {
	return c.JSON(status, payload)
}

// RespondWithError writes the uniform error body with the given status.
func RespondWithError(c echo.Context, status int, message string) error {
	return c.JSON(status, models.ErrorResponse{Message: message})
}

// HandleServiceError maps the service error taxonomy to HTTP statuses. Errors
// outside the taxonomy surface as a generic 500 without leaking detail.
func HandleServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return RespondWithError(c, http.StatusNotFound, "Resource not found")
	case errors.Is(err, models.ErrValidation):
		return RespondWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotAvailable):
		return RespondWithError(c, http.StatusConflict, "Delivery not available or already taken")
	case errors.Is(err, models.ErrInvalidTransition):
		return RespondWithError(c, http.StatusUnprocessableEntity, "Invalid status transition")
	case errors.Is(err, models.ErrAccessDenied):
		return RespondWithError(c, http.StatusForbidden, "Access denied")
	case errors.Is(err, models.ErrDriverOffline):
		return RespondWithError(c, http.StatusBadRequest, "You must be online to accept deliveries")
	case errors.Is(err, models.ErrEmailTaken):
		return RespondWithError(c, http.StatusConflict, "Email already registered")
	case errors.Is(err, models.ErrInvalidCredentials):
		return RespondWithError(c, http.StatusUnauthorized, "Invalid credentials")
	default:
		c.Logger().Errorf("unhandled service error: %v", err)
		return RespondWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}
