package controller

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutoring_backend/internals/databases/dbtest"
	"tutoring_backend/internals/features/analytics/service"
	"tutoring_backend/internals/helpers/dbtime"
)

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	clock := dbtime.FixedClock{T: time.Date(2025, 11, 20, 9, 0, 0, 0, time.UTC)}
	h := NewAnalyticsController(service.NewService(dbtest.Open(t), clock, time.UTC))
	app := fiber.New()
	app.Get("/analytics/terms/:code", h.TermSummary)
	app.Get("/analytics/dashboard", h.Dashboard)
	return app
}

func get(t *testing.T, app *fiber.App, url string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, url, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, sonic.Unmarshal(raw, &out))
	return resp.StatusCode, out
}

func TestDashboardDefaultsToLastThirtyDays(t *testing.T) {
	status, out := get(t, newApp(t), "/analytics/dashboard")
	require.Equal(t, fiber.StatusOK, status)

	data := out["data"].(map[string]any)
	rng := data["dateRange"].(map[string]any)
	assert.Equal(t, "2025-10-21", rng["start"])
	assert.Equal(t, "2025-11-20", rng["end"])
}

func TestDashboardRejectsBadDates(t *testing.T) {
	app := newApp(t)

	status, out := get(t, app, "/analytics/dashboard?start_date=20-10-2025")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, out["message"], "start_date")

	status, _ = get(t, app, "/analytics/dashboard?start_date=2025-11-01&end_date=2025-10-01")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestTermSummaryStatuses(t *testing.T) {
	app := newApp(t)

	status, _ := get(t, app, "/analytics/terms/T3")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = get(t, app, "/analytics/terms/24T3")
	assert.Equal(t, fiber.StatusNotFound, status)
}
