package route

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	calCtrl "tutoring_backend/internals/features/calendar/controller"
)

func CalendarOwnerRoutes(r fiber.Router, db *gorm.DB) {
	h := calCtrl.NewCalendarController(db)

	r.Post("/years", h.CreateYear)

	terms := r.Group("/terms")
	terms.Post("/", h.CreateTerm)
	terms.Get("/", h.ListTerms)
	terms.Post("/:id/anchor", h.AnchorTerm)
	terms.Get("/:id/weeks", h.ListWeeks)
	terms.Delete("/:id/weeks/:index", h.DeleteWeek)
}
