package controller

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"tutoring_backend/internals/features/tutoring/dto"
	"tutoring_backend/internals/features/tutoring/service"
	helper "tutoring_backend/internals/helpers"
)

type AttendanceController struct {
	Attendance *service.AttendanceService
	Validator  *validator.Validate
}

func NewAttendanceController(db *gorm.DB) *AttendanceController {
	return &AttendanceController{
		Attendance: service.NewAttendanceService(db),
		Validator:  validator.New(),
	}
}

// POST /api/o/lessons
// One-off lesson outside the term schedule; the group's roster gets attendance rows.
func (h *AttendanceController) CreateLesson(c *fiber.Ctx) error {
	var req dto.CreateLessonRequest
	if err := helper.BindAndValidate(c, h.Validator, &req); err != nil {
		return helper.RespondBindError(c, err)
	}
	lesson := req.ToModel()
	n, err := h.Attendance.CreateLesson(c.UserContext(), lesson)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonCreated(c, "lesson created", fiber.Map{
		"lesson":              lesson,
		"attendances_created": n,
	})
}

// GET /api/o/lessons/:id/attendances
func (h *AttendanceController) ListForLesson(c *fiber.Ctx) error {
	lessonID, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid lesson id")
	}
	rows, err := h.Attendance.ListForLesson(c.UserContext(), lessonID)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonList(c, "ok", rows, len(rows))
}

// PATCH /api/o/attendances/:id
func (h *AttendanceController) Mark(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid attendance id")
	}
	var req dto.MarkAttendanceRequest
	if err := helper.BindAndValidate(c, h.Validator, &req); err != nil {
		return helper.RespondBindError(c, err)
	}
	if req.Empty() {
		return helper.JsonError(c, fiber.StatusBadRequest, "nothing to update")
	}
	row, err := h.Attendance.Mark(c.UserContext(), id, service.AttendancePatch{
		Present:      req.AttendancePresent,
		HomeworkDone: req.AttendanceHomeworkDone,
	})
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "attendance updated", row)
}

/* ===================== LESSONS ===================== */

// GET /api/o/lessons?group_id=&week_id=&page=&per_page=
func (h *AttendanceController) ListLessons(c *fiber.Ctx) error {
	groupID, err := helper.ParseUUIDQuery(c, "group_id")
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	weekID, err := helper.ParseUUIDQuery(c, "week_id")
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	p := helper.ParseFiber(c, helper.DefaultPageOpts)
	rows, total, err := h.Attendance.ListLessons(c.UserContext(),
		service.LessonFilter{GroupID: groupID, WeekID: weekID}, p.Limit(), p.Offset())
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonPaged(c, "ok", rows, helper.BuildMeta(total, p))
}

// GET /api/o/lessons/:id
func (h *AttendanceController) GetLesson(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid lesson id")
	}
	l, err := h.Attendance.GetLesson(c.UserContext(), id)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	rows, err := h.Attendance.ListForLesson(c.UserContext(), id)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "ok", dto.LessonDetailResponse{LessonModel: *l, Attendances: rows})
}

// PATCH /api/o/lessons/:id
func (h *AttendanceController) UpdateLesson(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid lesson id")
	}
	var req dto.UpdateLessonRequest
	if err := helper.BindAndValidate(c, h.Validator, &req); err != nil {
		return helper.RespondBindError(c, err)
	}
	if req.LessonStartAt == nil && req.LessonNotes == nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "nothing to update")
	}
	l, err := h.Attendance.UpdateLesson(c.UserContext(), id, req.ToPatch())
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "lesson updated", l)
}

// DELETE /api/o/lessons/:id
func (h *AttendanceController) DeleteLesson(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid lesson id")
	}
	if err := h.Attendance.DeleteLesson(c.UserContext(), id); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "lesson deleted", fiber.Map{"lesson_id": id})
}

/* ===================== ATTENDANCES ===================== */

// GET /api/o/attendances?lesson_id=&student_id=&week_id=&page=&per_page=
func (h *AttendanceController) ListAttendances(c *fiber.Ctx) error {
	var f service.AttendanceFilter
	var err error
	if f.LessonID, err = helper.ParseUUIDQuery(c, "lesson_id"); err != nil {
		return helper.JsonFromError(c, err)
	}
	if f.StudentID, err = helper.ParseUUIDQuery(c, "student_id"); err != nil {
		return helper.JsonFromError(c, err)
	}
	if f.WeekID, err = helper.ParseUUIDQuery(c, "week_id"); err != nil {
		return helper.JsonFromError(c, err)
	}
	p := helper.ParseFiber(c, helper.AdminPageOpts)
	rows, total, err := h.Attendance.ListAttendances(c.UserContext(), f, p.Limit(), p.Offset())
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonPaged(c, "ok", rows, helper.BuildMeta(total, p))
}

// POST /api/o/attendances/bulk
func (h *AttendanceController) BulkAdd(c *fiber.Ctx) error {
	var req dto.BulkAttendanceRequest
	if err := helper.BindAndValidate(c, h.Validator, &req); err != nil {
		return helper.RespondBindError(c, err)
	}
	rows, created, err := h.Attendance.BulkAdd(c.UserContext(), req.ToItems())
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonCreated(c, "attendances saved", fiber.Map{
		"attendances":         rows,
		"attendances_created": created,
	})
}
