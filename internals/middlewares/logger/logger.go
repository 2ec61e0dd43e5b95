package logger

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

// LoggerMiddleware writes one access line per request in the business timezone.
func LoggerMiddleware(timezone string) fiber.Handler {
	if timezone == "" {
		timezone = "Local"
	}
	return logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   timezone,
		Format:     "[${time}] ${ip} ${locals:reqid} - ${method} ${path} - ${status} - ${latency}\n",
	})
}
