package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ndreyko/tributary/app/repository"
	"github.com/ndreyko/tributary/internal/pkg/tribute"
)

const paymentTimeout = 10 * time.Second

// HandleListPayments returns ledger entries, newest first. Filters: user
// (telegram id), kind (subscription|donation), from/to (RFC3339), limit.
func HandleListPayments(c *fiber.Ctx) error {
	filter := tribute.PaymentFilter{
		TelegramUserID: int64(c.QueryInt("user", 0)),
		Kind:           c.Query("kind"),
		Limit:          clampLimit(c.QueryInt("limit", 50)),
	}

	from, err := parseTimeQuery(c, "from")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "from must be RFC3339"})
	}
	to, err := parseTimeQuery(c, "to")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "to must be RFC3339"})
	}
	filter.From = from
	filter.To = to

	ctx, cancel := context.WithTimeout(context.Background(), paymentTimeout)
	defer cancel()

	payments, err := repository.GetGlobalFactory().GetStore().ListPayments(ctx, filter)
	if err != nil {
		log.Errorf("[Payments] List failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.JSON(fiber.Map{"payments": payments, "count": len(payments)})
}
