package route

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	tutCtrl "tutoring_backend/internals/features/tutoring/controller"
	"tutoring_backend/internals/helpers/dbtime"
)

func TutoringOwnerRoutes(r fiber.Router, db *gorm.DB, clock dbtime.Clock, loc *time.Location) {
	schedule := tutCtrl.NewScheduleController(db, clock, loc)
	roster := tutCtrl.NewRosterController(db)
	roll := tutCtrl.NewAttendanceController(db)

	// scheduling
	r.Post("/terms/:id/schedule", schedule.ScheduleTerm)
	r.Post("/terms/:id/schedule/students/:student_id", schedule.ScheduleStudent)

	// customers & students
	r.Put("/customers", roster.UpsertCustomer)
	r.Get("/customers", roster.ListCustomers)
	r.Patch("/customers/:id/cadence", roster.SetCadence)
	r.Post("/students", roster.CreateStudent)
	r.Get("/students", roster.ListStudents)
	r.Get("/students/:id", roster.GetStudent)

	// groups & enrolment
	groups := r.Group("/groups")
	groups.Post("/", roster.CreateGroup)
	groups.Get("/", roster.ListGroups)
	groups.Get("/:id", roster.GetGroup)
	groups.Patch("/:id", roster.UpdateGroup)
	groups.Delete("/:id", roster.DeleteGroup)
	groups.Get("/:id/students", roster.ListRoster)
	groups.Post("/:id/students/:student_id", roster.Enrol)
	groups.Delete("/:id/students/:student_id", roster.Unenrol)

	// lessons & roll
	r.Post("/lessons", roll.CreateLesson)
	r.Get("/lessons", roll.ListLessons)
	r.Get("/lessons/:id", roll.GetLesson)
	r.Patch("/lessons/:id", roll.UpdateLesson)
	r.Delete("/lessons/:id", roll.DeleteLesson)
	r.Get("/lessons/:id/attendances", roll.ListForLesson)
	r.Get("/attendances", roll.ListAttendances)
	r.Post("/attendances/bulk", roll.BulkAdd)
	r.Patch("/attendances/:id", roll.Mark)
}
