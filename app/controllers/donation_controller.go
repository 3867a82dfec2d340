package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ndreyko/tributary/app/repository"
)

// HandleListDonations returns donation records for one telegram user.
func HandleListDonations(c *fiber.Ctx) error {
	user := int64(c.QueryInt("user", 0))
	if user == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "user query parameter is required"})
	}

	donations, err := repository.GetGlobalFactory().GetDonationRepository().ListByUser(user)
	if err != nil {
		log.Errorf("[Donations] List failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(fiber.Map{"donations": donations, "count": len(donations)})
}

// HandleGetDonation returns one donation by provider request id.
func HandleGetDonation(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "id must be a donation request id"})
	}

	donation, err := repository.GetGlobalFactory().GetDonationRepository().GetByRequestID(id)
	if err != nil {
		return billingErrorResponse(c, err)
	}
	return c.JSON(donation)
}
