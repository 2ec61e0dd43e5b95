package controller

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"tutoring_backend/internals/features/calendar/dto"
	"tutoring_backend/internals/features/calendar/service"
	helper "tutoring_backend/internals/helpers"
	"tutoring_backend/internals/helpers/dbtime"
)

type CalendarController struct {
	Calendar  *service.Service
	Validator *validator.Validate
}

func NewCalendarController(db *gorm.DB) *CalendarController {
	return &CalendarController{
		Calendar:  service.NewService(db),
		Validator: validator.New(),
	}
}

/* ===================== YEARS ===================== */

// POST /api/o/years
func (h *CalendarController) CreateYear(c *fiber.Ctx) error {
	var req dto.CreateYearRequest
	if err := helper.BindAndValidate(c, h.Validator, &req); err != nil {
		return helper.RespondBindError(c, err)
	}
	y, err := h.Calendar.CreateYear(c.UserContext(), req.YearIndex)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonCreated(c, "year created", dto.NewYearResponse(y))
}

/* ===================== TERMS ===================== */

// POST /api/o/terms
func (h *CalendarController) CreateTerm(c *fiber.Ctx) error {
	var req dto.CreateTermRequest
	if err := helper.BindAndValidate(c, h.Validator, &req); err != nil {
		return helper.RespondBindError(c, err)
	}
	t, err := h.Calendar.CreateTerm(c.UserContext(), service.CreateTermInput{
		YearIndex:      req.YearIndex,
		Index:          req.TermIndex,
		PreviousTermID: req.PreviousTermID,
	})
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	if t.Weeks, err = h.Calendar.ListWeeks(c.UserContext(), t.TermID); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonCreated(c, "term created", dto.NewTermResponse(t))
}

// GET /api/o/terms
func (h *CalendarController) ListTerms(c *fiber.Ctx) error {
	terms, err := h.Calendar.ListTerms(c.UserContext())
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	out := make([]dto.TermResponse, 0, len(terms))
	for i := range terms {
		out = append(out, dto.NewTermResponse(&terms[i]))
	}
	return helper.JsonList(c, "ok", out, len(out))
}

// POST /api/o/terms/:id/anchor
func (h *CalendarController) AnchorTerm(c *fiber.Ctx) error {
	termID, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid term id")
	}
	var req dto.AnchorTermRequest
	if err := helper.BindAndValidate(c, h.Validator, &req); err != nil {
		return helper.RespondBindError(c, err)
	}
	monday, err := dbtime.ParseDate(req.FirstMonday)
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, err.Error())
	}
	n, err := h.Calendar.AnchorTerm(c.UserContext(), termID, monday)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	weeks, err := h.Calendar.ListWeeks(c.UserContext(), termID)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonUpdated(c, "term anchored", fiber.Map{
		"weeks_anchored": n,
		"weeks":          dto.NewWeekResponses(weeks),
	})
}

// GET /api/o/terms/:id/weeks
// GET /api/o/terms/:id/weeks?date=YYYY-MM-DD answers the single week covering date.
func (h *CalendarController) ListWeeks(c *fiber.Ctx) error {
	termID, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid term id")
	}
	if _, err := h.Calendar.GetTerm(c.UserContext(), termID); err != nil {
		return helper.JsonFromError(c, err)
	}
	if raw := c.Query("date"); raw != "" {
		date, err := dbtime.ParseDate(raw)
		if err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, "date must be YYYY-MM-DD")
		}
		w, err := h.Calendar.WeekContaining(c.UserContext(), termID, date)
		if err != nil {
			return helper.JsonFromError(c, err)
		}
		if w == nil {
			return helper.JsonError(c, fiber.StatusNotFound, "no week of this term covers "+raw)
		}
		return helper.JsonOK(c, "ok", dto.NewWeekResponse(*w))
	}
	weeks, err := h.Calendar.ListWeeks(c.UserContext(), termID)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonList(c, "ok", dto.NewWeekResponses(weeks), len(weeks))
}

// DELETE /api/o/terms/:id/weeks/:index
func (h *CalendarController) DeleteWeek(c *fiber.Ctx) error {
	termID, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid term id")
	}
	index, err := c.ParamsInt("index")
	if err != nil || index < 1 {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid week index")
	}
	if _, err := h.Calendar.GetTerm(c.UserContext(), termID); err != nil {
		return helper.JsonFromError(c, err)
	}
	if err := h.Calendar.DeleteWeek(c.UserContext(), termID, index); err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "week deleted", fiber.Map{"term_id": termID, "week_index": index})
}
