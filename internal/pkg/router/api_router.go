package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ndreyko/tributary/app/controllers"
	"github.com/ndreyko/tributary/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(), middleware.APITokenMiddleware())

	v1 := api.Group("/v1")

	v1.Get("/plans", controllers.HandleListPlans)
	v1.Post("/intents", controllers.HandleCreateIntent)

	v1.Get("/subscriptions", controllers.HandleListSubscriptions)
	v1.Get("/subscriptions/:id", controllers.HandleGetSubscription)
	v1.Post("/subscriptions/:id/cancel", controllers.HandleCancelSubscription)

	v1.Get("/donations", controllers.HandleListDonations)
	v1.Get("/donations/:id", controllers.HandleGetDonation)

	v1.Get("/payments", controllers.HandleListPayments)
	v1.Get("/events", controllers.HandleListWebhookEvents)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
