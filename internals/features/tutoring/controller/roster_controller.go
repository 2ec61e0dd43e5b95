package controller

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"tutoring_backend/internals/features/tutoring/dto"
	"tutoring_backend/internals/features/tutoring/model"
	"tutoring_backend/internals/features/tutoring/service"
	helper "tutoring_backend/internals/helpers"
)

type RosterController struct {
	Roster    *service.RosterService
	Validator *validator.Validate
}

func NewRosterController(db *gorm.DB) *RosterController {
	return &RosterController{
		Roster:    service.NewRosterService(db),
		Validator: validator.New(),
	}
}

/* ===================== CUSTOMERS ===================== */

// PUT /api/o/customers
func (h *RosterController) UpsertCustomer(c *fiber.Ctx) error {
	var req dto.UpsertCustomerRequest
	if err := helper.BindAndValidate(c, h.Validator, &req); err != nil {
		return helper.RespondBindError(c, err)
	}
	m := req.ToModel()
	if err := h.Roster.UpsertCustomer(c.UserContext(), m); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "customer saved", m)
}

// GET /api/o/customers?active=true
func (h *RosterController) ListCustomers(c *fiber.Ctx) error {
	activeOnly := strings.EqualFold(c.Query("active"), "true")
	rows, err := h.Roster.ListCustomers(c.UserContext(), activeOnly)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonList(c, "ok", rows, len(rows))
}

// PATCH /api/o/customers/:id/cadence
func (h *RosterController) SetCadence(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid customer id")
	}
	var req dto.SetCadenceRequest
	if err := helper.BindAndValidate(c, h.Validator, &req); err != nil {
		return helper.RespondBindError(c, err)
	}
	cadence, ok := model.ParseCadence(req.CustomerCadence)
	if !ok {
		return helper.JsonError(c, fiber.StatusBadRequest, "customer_cadence must be weekly, fortnightly, half-termly or termly")
	}
	m, err := h.Roster.SetCadence(c.UserContext(), id, cadence)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "cadence updated", m)
}

/* ===================== STUDENTS ===================== */

// POST /api/o/students
func (h *RosterController) CreateStudent(c *fiber.Ctx) error {
	var req dto.CreateStudentRequest
	if err := helper.BindAndValidate(c, h.Validator, &req); err != nil {
		return helper.RespondBindError(c, err)
	}
	m, err := req.ToModel()
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "student_start_date must be YYYY-MM-DD")
	}
	if err := h.Roster.CreateStudent(c.UserContext(), m); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonCreated(c, "student created", m)
}

// GET /api/o/students?customer_id=&active=true&page=&per_page=
func (h *RosterController) ListStudents(c *fiber.Ctx) error {
	customerID, err := helper.ParseUUIDQuery(c, "customer_id")
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	p := helper.ParseFiber(c, helper.DefaultPageOpts)
	rows, total, err := h.Roster.ListStudents(c.UserContext(), service.StudentFilter{
		CustomerID: customerID,
		ActiveOnly: strings.EqualFold(c.Query("active"), "true"),
	}, p.Limit(), p.Offset())
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonPaged(c, "ok", rows, helper.BuildMeta(total, p))
}

// GET /api/o/students/:id
func (h *RosterController) GetStudent(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid student id")
	}
	st, err := h.Roster.GetStudent(c.UserContext(), id)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	groups, err := h.Roster.StudentGroups(c.UserContext(), id)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "ok", dto.StudentDetailResponse{StudentModel: *st, Groups: groups})
}

/* ===================== GROUPS ===================== */

// POST /api/o/groups
func (h *RosterController) CreateGroup(c *fiber.Ctx) error {
	var req dto.CreateGroupRequest
	if err := helper.BindAndValidate(c, h.Validator, &req); err != nil {
		return helper.RespondBindError(c, err)
	}
	m, err := req.ToModel()
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "group_time_of_day must be HH:MM")
	}
	if err := h.Roster.CreateGroup(c.UserContext(), m); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonCreated(c, "group created", m)
}

// GET /api/o/groups
func (h *RosterController) ListGroups(c *fiber.Ctx) error {
	rows, err := h.Roster.ListGroups(c.UserContext())
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonList(c, "ok", rows, len(rows))
}

// GET /api/o/groups/:id
func (h *RosterController) GetGroup(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid group id")
	}
	g, err := h.Roster.GetGroup(c.UserContext(), id)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	students, err := h.Roster.Roster(c.UserContext(), id)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "ok", dto.GroupDetailResponse{GroupModel: *g, Students: students})
}

// PATCH /api/o/groups/:id
func (h *RosterController) UpdateGroup(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid group id")
	}
	var req dto.UpdateGroupRequest
	if err := helper.BindAndValidate(c, h.Validator, &req); err != nil {
		return helper.RespondBindError(c, err)
	}
	patch, err := req.ToPatch()
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "group_time_of_day must be HH:MM")
	}
	if patch.Empty() {
		return helper.JsonError(c, fiber.StatusBadRequest, "nothing to update")
	}
	g, err := h.Roster.UpdateGroup(c.UserContext(), id, patch)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "group updated", g)
}

// DELETE /api/o/groups/:id
func (h *RosterController) DeleteGroup(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid group id")
	}
	if err := h.Roster.DeleteGroup(c.UserContext(), id); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "group deleted", fiber.Map{"group_id": id})
}

// GET /api/o/groups/:id/students
func (h *RosterController) ListRoster(c *fiber.Ctx) error {
	groupID, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid group id")
	}
	if _, err := h.Roster.GetGroup(c.UserContext(), groupID); err != nil {
		return helper.JsonFromError(c, err)
	}
	rows, err := h.Roster.Roster(c.UserContext(), groupID)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonList(c, "ok", rows, len(rows))
}

// POST /api/o/groups/:id/students/:student_id
func (h *RosterController) Enrol(c *fiber.Ctx) error {
	groupID, studentID, err := enrolmentParams(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	if err := h.Roster.Enrol(c.UserContext(), groupID, studentID); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonCreated(c, "student enrolled", fiber.Map{"group_id": groupID, "student_id": studentID})
}

// DELETE /api/o/groups/:id/students/:student_id
func (h *RosterController) Unenrol(c *fiber.Ctx) error {
	groupID, studentID, err := enrolmentParams(c)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	if err := h.Roster.Unenrol(c.UserContext(), groupID, studentID); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "student unenrolled", fiber.Map{"group_id": groupID, "student_id": studentID})
}

func enrolmentParams(c *fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	groupID, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid group id")
	}
	studentID, err := helper.ParseUUIDParam(c, "student_id")
	if err != nil {
		return uuid.Nil, uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid student id")
	}
	return groupID, studentID, nil
}
