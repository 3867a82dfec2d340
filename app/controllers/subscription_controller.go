package controllers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ndreyko/tributary/app/repository"
)

const subscriptionTimeout = 10 * time.Second

// HandleListSubscriptions returns subscription records, newest activity first.
// An optional user filter narrows to one telegram user.
func HandleListSubscriptions(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetSubscriptionRepository()

	if user := int64(c.QueryInt("user", 0)); user != 0 {
		subs, err := repo.ListByUser(user)
		if err != nil {
			log.Errorf("[Subscriptions] List by user failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}
		return c.JSON(fiber.Map{"subscriptions": subs, "count": len(subs)})
	}

	offset := c.QueryInt("offset", 0)
	limit := clampLimit(c.QueryInt("limit", 50))
	subs, err := repo.List(offset, limit)
	if err != nil {
		log.Errorf("[Subscriptions] List failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	total, err := repo.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(fiber.Map{"subscriptions": subs, "total": total, "offset": offset, "limit": limit})
}

// HandleGetSubscription returns one subscription by provider subscription id.
func HandleGetSubscription(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "id must be a provider subscription id"})
	}

	sub, err := repository.GetGlobalFactory().GetSubscriptionRepository().GetByProviderID(id)
	if err != nil {
		return billingErrorResponse(c, err)
	}
	return c.JSON(sub)
}

// CancelSubscriptionRequest carries the optional operator-supplied reason.
type CancelSubscriptionRequest struct {
	Reason string `json:"reason"`
}

// HandleCancelSubscription freezes a subscription before the provider's own
// cancellation event arrives. Idempotent: repeating the call answers 200
// without a second state change.
func HandleCancelSubscription(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "id must be a provider subscription id"})
	}

	var req CancelSubscriptionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Malformed JSON body"})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), subscriptionTimeout)
	defer cancel()

	result, err := GetProcessor().CancelSubscription(ctx, id, req.Reason, time.Time{})
	if err != nil {
		return billingErrorResponse(c, err)
	}
	if result == nil {
		return c.JSON(fiber.Map{"ok": true, "applied": false})
	}
	return c.JSON(fiber.Map{"ok": true, "applied": true, "subscription": result.Subscription})
}
