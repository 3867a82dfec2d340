package controllers

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ndreyko/tributary/internal/pkg/tribute"
)

const maxListLimit = 500

var validate = validator.New()

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// parseTimeQuery parses an RFC3339 query parameter, returning the zero time
// for absent values.
func parseTimeQuery(c *fiber.Ctx, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// billingErrorResponse maps processor errors onto API status codes.
func billingErrorResponse(c *fiber.Ctx, err error) error {
	var planErr *tribute.PlanNotFoundError
	var subErr *tribute.SubscriptionNotFoundError
	var donErr *tribute.DonationNotFoundError
	var intentErr *tribute.IntentNotFoundError

	switch {
	case errors.As(err, &planErr):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "plan_not_found", "message": err.Error()})
	case errors.As(err, &subErr):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "subscription_not_found", "message": err.Error()})
	case errors.As(err, &donErr):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "donation_not_found", "message": err.Error()})
	case errors.As(err, &intentErr):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "intent_not_found", "message": err.Error()})
	case errors.Is(err, tribute.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	case errors.Is(err, tribute.ErrPayload):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
}
