package route

import (
	"github.com/gofiber/fiber/v2"

	anCtrl "tutoring_backend/internals/features/analytics/controller"
	"tutoring_backend/internals/features/analytics/service"
)

func AnalyticsOwnerRoutes(r fiber.Router, svc *service.Service) {
	h := anCtrl.NewAnalyticsController(svc)

	g := r.Group("/analytics")
	g.Get("/terms/:code", h.TermSummary)
	g.Get("/dashboard", h.Dashboard)
}
