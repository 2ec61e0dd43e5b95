package controller

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"tutoring_backend/internals/features/analytics/service"
	helper "tutoring_backend/internals/helpers"
	"tutoring_backend/internals/helpers/dbtime"
)

type AnalyticsController struct {
	Analytics *service.Service
}

func NewAnalyticsController(svc *service.Service) *AnalyticsController {
	return &AnalyticsController{Analytics: svc}
}

// GET /api/o/analytics/terms/:code
func (h *AnalyticsController) TermSummary(c *fiber.Ctx) error {
	rep, err := h.Analytics.TermSummary(c.UserContext(), c.Params("code"))
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "ok", rep)
}

// GET /api/o/analytics/dashboard?start_date=2025-01-01&end_date=2025-01-31
func (h *AnalyticsController) Dashboard(c *fiber.Ctx) error {
	from, to := h.Analytics.DefaultRange()
	var err error
	if from, err = dateQuery(c, "start_date", from); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, err.Error())
	}
	if to, err = dateQuery(c, "end_date", to); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, err.Error())
	}
	d, err := h.Analytics.Dashboard(c.UserContext(), from, to)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "ok", d)
}

func dateQuery(c *fiber.Ctx, key string, def time.Time) (time.Time, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return def, nil
	}
	d, err := dbtime.ParseDate(v)
	if err != nil {
		return time.Time{}, fiber.NewError(fiber.StatusBadRequest, "invalid date format for "+key+", expected YYYY-MM-DD")
	}
	return d, nil
}
