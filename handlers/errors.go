// handlers/errors.go
package handlers

import (
	"errors"

	"gamification-engine/services"

	"github.com/gofiber/fiber/v2"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrInsufficientFunds),
		errors.Is(err, services.ErrDuplicateBadgeGift),
		errors.Is(err, services.ErrOutOfStock),
		errors.Is(err, services.ErrChallengeEnded),
		errors.Is(err, services.ErrConcurrentUpdate):
		return fiber.StatusConflict
	case services.IsValidationError(err):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, msg string, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": msg,
		"cause": err.Error(),
	})
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

func departmentOf(c *fiber.Ctx) *string {
	if d, _ := c.Locals("department").(string); d != "" {
		return &d
	}
	return nil
}
