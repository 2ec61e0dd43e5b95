package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func token(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func newApp() *fiber.App {
	app := fiber.New()
	g := app.Group("/api/o", AuthJWT(AuthJWTOpts{Secret: secret, AllowCookieFallback: true}), OnlyRoles("owners only", "owner"))
	g.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(LocUserID).(string))
	})
	return app
}

func call(t *testing.T, app *fiber.App, bearer string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, "/api/o/ping", nil)
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestAuthJWT(t *testing.T) {
	app := newApp()
	exp := time.Now().Add(time.Hour).Unix()

	assert.Equal(t, fiber.StatusUnauthorized, call(t, app, ""))
	assert.Equal(t, fiber.StatusUnauthorized, call(t, app, "not-a-token"))
	assert.Equal(t, fiber.StatusUnauthorized,
		call(t, app, token(t, "other-secret", jwt.MapClaims{"sub": "u1", "roles": []string{"owner"}, "exp": exp})))
	assert.Equal(t, fiber.StatusUnauthorized,
		call(t, app, token(t, secret, jwt.MapClaims{"sub": "u1", "roles": []string{"owner"}, "exp": time.Now().Add(-time.Minute).Unix()})))

	assert.Equal(t, fiber.StatusForbidden,
		call(t, app, token(t, secret, jwt.MapClaims{"sub": "u1", "roles": []string{"tutor"}, "exp": exp})))
	assert.Equal(t, fiber.StatusOK,
		call(t, app, token(t, secret, jwt.MapClaims{"sub": "u1", "roles": []string{"owner"}, "exp": exp})))
	assert.Equal(t, fiber.StatusOK,
		call(t, app, token(t, secret, jwt.MapClaims{"id": "u2", "role": "Owner", "exp": exp})))
}

func TestAuthJWTCookieFallback(t *testing.T) {
	app := newApp()
	req := httptest.NewRequest(fiber.MethodGet, "/api/o/ping", nil)
	req.Header.Set(fiber.HeaderCookie, "access_token="+token(t, secret, jwt.MapClaims{"sub": "u3", "roles": []any{"owner"}}))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
