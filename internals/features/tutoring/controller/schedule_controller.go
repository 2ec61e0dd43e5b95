package controller

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"tutoring_backend/internals/features/tutoring/dto"
	"tutoring_backend/internals/features/tutoring/service"
	helper "tutoring_backend/internals/helpers"
	"tutoring_backend/internals/helpers/dbtime"
)

type ScheduleController struct {
	Scheduler *service.Scheduler
	Validator *validator.Validate
}

func NewScheduleController(db *gorm.DB, clock dbtime.Clock, loc *time.Location) *ScheduleController {
	return &ScheduleController{
		Scheduler: service.NewScheduler(db, clock, loc),
		Validator: validator.New(),
	}
}

// POST /api/o/terms/:id/schedule
func (h *ScheduleController) ScheduleTerm(c *fiber.Ctx) error {
	termID, monday, err := h.parse(c)
	if err != nil {
		return helper.RespondBindError(c, err)
	}
	res, err := h.Scheduler.ScheduleTerm(c.UserContext(), termID, monday)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "term scheduled", res)
}

// POST /api/o/terms/:id/schedule/students/:student_id
func (h *ScheduleController) ScheduleStudent(c *fiber.Ctx) error {
	studentID, err := helper.ParseUUIDParam(c, "student_id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid student id")
	}
	termID, monday, err := h.parse(c)
	if err != nil {
		return helper.RespondBindError(c, err)
	}
	res, err := h.Scheduler.ScheduleTermForStudent(c.UserContext(), termID, monday, studentID)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "student scheduled", res)
}

func (h *ScheduleController) parse(c *fiber.Ctx) (uuid.UUID, time.Time, error) {
	termID, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return uuid.Nil, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "invalid term id")
	}
	var req dto.ScheduleTermRequest
	if err := helper.BindAndValidate(c, h.Validator, &req); err != nil {
		return uuid.Nil, time.Time{}, err
	}
	monday, err := dbtime.ParseDate(req.FirstMonday)
	if err != nil {
		return uuid.Nil, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "first_monday must be YYYY-MM-DD")
	}
	return termID, monday, nil
}
