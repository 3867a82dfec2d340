package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ndreyko/tributary/app/models"
	"github.com/ndreyko/tributary/app/repository"
	"github.com/ndreyko/tributary/internal/pkg/tribute"
)

const webhookTimeout = 15 * time.Second

// SignatureHeader is the provider's HMAC header on webhook deliveries.
const SignatureHeader = "trbt-signature"

var processor *tribute.Processor

// SetProcessor wires the shared event processor. Must be called during boot,
// before the router starts serving.
func SetProcessor(p *tribute.Processor) {
	processor = p
}

// GetProcessor returns the shared event processor.
func GetProcessor() *tribute.Processor {
	if processor == nil {
		panic("Event processor not initialized. Call SetProcessor first.")
	}
	return processor
}

// HandleTributeWebhook receives provider deliveries. Status codes follow the
// provider's retry contract: 200 stops redelivery (including suppressed
// duplicates), 401 flags a bad signature, 400 asks for a corrected payload.
func HandleTributeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get(SignatureHeader)

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	result, err := GetProcessor().HandleWebhook(ctx, rawBody, signature)
	recordWebhookEvent(rawBody, result, err)

	if err != nil {
		if errors.Is(err, tribute.ErrSignature) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
		}
		log.Errorf("[Webhook] Processing failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "processing_failed", "message": err.Error()})
	}

	if result == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "applied": false})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "applied": true, "result": result.Key()})
}

// recordWebhookEvent writes the audit row for a delivery. Best-effort: a
// failed audit write never changes the webhook response.
func recordWebhookEvent(rawBody []byte, result *tribute.Result, procErr error) {
	if !repository.FactoryInitialized() {
		return
	}

	var probe struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(rawBody, &probe)

	now := time.Now()
	event := &models.WebhookEvent{
		EventName:      probe.Name,
		PayloadJSON:    string(rawBody),
		SignatureValid: !errors.Is(procErr, tribute.ErrSignature),
		ProcessedAt:    &now,
	}
	switch {
	case procErr != nil:
		event.Outcome = "rejected"
		event.ProcessingError = procErr.Error()
	case result == nil:
		event.Outcome = "suppressed"
	default:
		event.Outcome = "applied:" + result.Key()
	}

	if err := repository.GetGlobalFactory().GetWebhookEventRepository().Create(event); err != nil {
		log.Errorf("[Webhook] Failed to write audit record: %v", err)
	}
}

// HandleListWebhookEvents returns the delivery audit log, newest first.
func HandleListWebhookEvents(c *fiber.Ctx) error {
	offset := c.QueryInt("offset", 0)
	limit := clampLimit(c.QueryInt("limit", 50))

	repo := repository.GetGlobalFactory().GetWebhookEventRepository()
	events, err := repo.List(offset, limit)
	if err != nil {
		log.Errorf("[Webhook] Failed to list audit records: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	total, err := repo.Count()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.JSON(fiber.Map{"events": events, "total": total, "offset": offset, "limit": limit})
}
