package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	haven "github.com/AivinJoy/haven-daw"
)

// ErrorResponse is the uniform error payload of the command surface.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func ok(c *fiber.Ctx, payload any) error {
	if payload == nil {
		return c.JSON(fiber.Map{"ok": true})
	}
	return c.JSON(payload)
}

// fail maps the engine's typed error kinds onto HTTP status codes.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.Is(err, haven.ErrInvalidArgument):
		status, kind = fiber.StatusBadRequest, "invalid_argument"
	case errors.Is(err, haven.ErrDecode):
		status, kind = fiber.StatusUnprocessableEntity, "decode_error"
	case errors.Is(err, haven.ErrProject):
		status, kind = fiber.StatusUnprocessableEntity, "project_error"
	case errors.Is(err, haven.ErrDevice):
		status, kind = fiber.StatusServiceUnavailable, "device_error"
	case errors.Is(err, haven.ErrResourceExhausted):
		status, kind = fiber.StatusServiceUnavailable, "resource_exhausted"
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error(), Kind: kind})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg, Kind: "invalid_argument"})
}
