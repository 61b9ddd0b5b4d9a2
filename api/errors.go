package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/reel/pkg/exchange"
	"github.com/papercomputeco/reel/pkg/identity"
	"github.com/papercomputeco/reel/pkg/memory"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		validation *exchange.ValidationError
		generation *exchange.GenerationError
		fiberErr   *fiber.Error
	)

	switch {
	case errors.As(err, &validation):
		return fiber.StatusBadRequest
	case errors.Is(err, memory.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, identity.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.As(err, &generation):
		return fiber.StatusBadGateway
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	default:
		return fiber.StatusInternalServerError
	}
}

// handleError renders handler errors as ErrorResponse bodies. Internal
// errors are logged and not echoed to the client.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	message := err.Error()
	if status == fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		message = "internal server error"
	}
	return c.Status(status).JSON(ErrorResponse{Error: message})
}
