package middlewares

import (
	"github.com/gofiber/fiber/v2"

	"tutoring_backend/internals/middlewares/logger"
)

func SetupMiddlewares(app *fiber.App, timezone string) {
	app.Use(RecoveryMiddleware())
	app.Use(CorsMiddleware())
	app.Use(logger.LoggerMiddleware(timezone))
}
