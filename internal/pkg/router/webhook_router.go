package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ndreyko/tributary/app/controllers"
)

type WebhookRouter struct {
}

// InstallRouter registers the provider-facing routes. The webhook stays
// outside the token-protected API group: the provider authenticates through
// the payload signature, not a header token.
func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/webhook/tribute", controllers.HandleTributeWebhook)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
