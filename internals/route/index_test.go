package routes

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutoring_backend/internals/databases/dbtest"
	analyticsService "tutoring_backend/internals/features/analytics/service"
	"tutoring_backend/internals/features/billing/ledger/ledgertest"
	billingService "tutoring_backend/internals/features/billing/service"
	"tutoring_backend/internals/features/billing/webhook"
	"tutoring_backend/internals/helpers/dbtime"
)

const jwtSecret = "routes-secret"

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	db := dbtest.Open(t)
	clock := dbtime.FixedClock{T: time.Date(2025, 10, 20, 8, 0, 0, 0, time.UTC)}
	fake := ledgertest.New()

	app := fiber.New()
	SetupRoutes(app, Deps{
		DB:        db,
		Clock:     clock,
		Loc:       time.UTC,
		JWTSecret: jwtSecret,
		Billing:   billingService.NewService(db, fake, billingService.Options{Clock: clock}),
		Webhooks:  webhook.NewProcessor(db, webhook.StripeVerifier{Secret: "whsec_routes"}, fake, clock),
		Analytics: analyticsService.NewService(db, clock, time.UTC),
	})
	return app
}

func ownerToken(t *testing.T) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "op-1", "roles": []string{"owner"}, "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s
}

func TestHealth(t *testing.T) {
	resp, err := newApp(t).Test(httptest.NewRequest(fiber.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestOwnerGroupRequiresToken(t *testing.T) {
	app := newApp(t)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/o/terms", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(fiber.MethodGet, "/api/o/terms", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+ownerToken(t))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCreateYearAndTermThroughAPI(t *testing.T) {
	app := newApp(t)
	tok := ownerToken(t)
	send := func(method, url, body string) int {
		req := httptest.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tok)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusCreated, send(fiber.MethodPost, "/api/o/years", `{"year_index":25}`))
	assert.Equal(t, fiber.StatusBadRequest, send(fiber.MethodPost, "/api/o/years", `{"year_index":25}`))
	assert.Equal(t, fiber.StatusUnprocessableEntity, send(fiber.MethodPost, "/api/o/years", `{}`))
	assert.Equal(t, fiber.StatusCreated, send(fiber.MethodPost, "/api/o/terms", `{"year_index":25,"term_index":4}`))
	assert.Equal(t, fiber.StatusNotFound, send(fiber.MethodPost, "/api/o/terms", `{"year_index":26,"term_index":1}`))
}

func TestWebhookIsPublicButSigned(t *testing.T) {
	req := httptest.NewRequest(fiber.MethodPost, "/api/webhooks/ledger", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	resp, err := newApp(t).Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
