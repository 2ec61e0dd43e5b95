package routes

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"tutoring_backend/internals/constants"
	analyticsRoute "tutoring_backend/internals/features/analytics/route"
	analyticsService "tutoring_backend/internals/features/analytics/service"
	billingRoute "tutoring_backend/internals/features/billing/route"
	billingService "tutoring_backend/internals/features/billing/service"
	"tutoring_backend/internals/features/billing/webhook"
	calendarRoute "tutoring_backend/internals/features/calendar/route"
	tutoringRoute "tutoring_backend/internals/features/tutoring/route"
	"tutoring_backend/internals/helpers/dbtime"
	middlewares "tutoring_backend/internals/middlewares"
	authMiddleware "tutoring_backend/internals/middlewares/auth"
)

var startTime time.Time

// Deps are the long-lived services main builds once.
type Deps struct {
	DB        *gorm.DB
	Clock     dbtime.Clock
	Loc       *time.Location
	JWTSecret string

	Billing   *billingService.Service
	Webhooks  *webhook.Processor
	Analytics *analyticsService.Service
}

func SetupRoutes(app *fiber.App, d Deps) {
	startTime = time.Now()

	log.Println("[INFO] Setting up base routes...")
	BaseRoutes(app, d.DB)

	// ===================== LEDGER CALLBACKS =====================
	// authenticated by signature, not JWT
	log.Println("[INFO] Setting up webhook group...")
	hooks := app.Group("/api/webhooks", middlewares.WebhookRateLimiter())
	billingRoute.LedgerWebhookRoutes(hooks, d.Webhooks)

	// ===================== OWNER (operator) =====================
	log.Println("[INFO] Setting up OWNER group (Auth + owner role)...")
	owner := app.Group("/api/o",
		middlewares.GlobalRateLimiter(),
		authMiddleware.AuthJWT(authMiddleware.AuthJWTOpts{
			Secret:              d.JWTSecret,
			AllowCookieFallback: true,
		}),
		authMiddleware.OnlyRoles(constants.RoleErrorOperator("the operator API"), constants.OperatorRoles...),
	)

	calendarRoute.CalendarOwnerRoutes(owner, d.DB)
	tutoringRoute.TutoringOwnerRoutes(owner, d.DB, d.Clock, d.Loc)
	billingRoute.BillingOwnerRoutes(owner, d.Billing, d.Webhooks)
	analyticsRoute.AnalyticsOwnerRoutes(owner, d.Analytics)

	log.Println("[INFO] Routes ready")
}
