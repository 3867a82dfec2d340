package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ndreyko/tributary/app/controllers"
	"github.com/ndreyko/tributary/app/repository"
	"github.com/ndreyko/tributary/internal/pkg/database"
	"github.com/ndreyko/tributary/internal/pkg/env"
	"github.com/ndreyko/tributary/internal/pkg/outbox"
	"github.com/ndreyko/tributary/internal/pkg/router"
	"github.com/ndreyko/tributary/internal/pkg/tribute"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	repository.InitializeFactory(database.GetDB())

	cfg, err := tribute.ConfigFromEnv()
	if err != nil {
		log.Fatalf("billing configuration: %v", err)
	}
	publisher, err := outbox.NewPublisherFromEnv()
	if err != nil {
		log.Fatalf("sink configuration: %v", err)
	}
	cfg.Publisher = publisher

	proc, err := tribute.NewProcessor(repository.GetGlobalFactory().GetStore(), cfg)
	if err != nil {
		log.Fatalf("event processor: %v", err)
	}
	controllers.SetProcessor(proc)

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20,
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
