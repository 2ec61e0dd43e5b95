package helper

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const AccessTokenCookie = "access_token"

// GetRawAccessToken returns the Bearer token, then the access_token cookie
// when cookieFallback is set, else "".
func GetRawAccessToken(c *fiber.Ctx, cookieFallback bool) string {
	const p = "bearer "
	if authz := strings.TrimSpace(c.Get(fiber.HeaderAuthorization)); len(authz) > len(p) && strings.EqualFold(authz[:len(p)], p) {
		return strings.TrimSpace(authz[len(p):])
	}
	if cookieFallback {
		return strings.TrimSpace(c.Cookies(AccessTokenCookie))
	}
	return ""
}
