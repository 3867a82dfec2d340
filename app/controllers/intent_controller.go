package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const intentTimeout = 10 * time.Second

// CreateIntentRequest is the payload for reserving a plan before payment.
type CreateIntentRequest struct {
	PlanID         string `json:"plan_id" validate:"required"`
	TelegramUserID int64  `json:"telegram_user_id" validate:"required"`
	Metadata       string `json:"metadata"`
}

// HandleCreateIntent reserves a plan for a user and returns the reservation
// id together with the plan's payment link.
func HandleCreateIntent(c *fiber.Ctx) error {
	var req CreateIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Malformed JSON body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), intentTimeout)
	defer cancel()

	receipt, err := GetProcessor().CreateIntent(ctx, req.PlanID, req.TelegramUserID, req.Metadata)
	if err != nil {
		return billingErrorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(receipt)
}

// HandleListPlans returns the configured plan catalog.
func HandleListPlans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"plans": GetProcessor().Plans().Plans()})
}
