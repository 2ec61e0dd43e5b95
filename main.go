package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/gofiber/utils"

	"tutoring_backend/internals/configs"
	database "tutoring_backend/internals/databases"
	analyticsService "tutoring_backend/internals/features/analytics/service"
	"tutoring_backend/internals/features/billing/ledger"
	"tutoring_backend/internals/features/billing/scheduler"
	billingService "tutoring_backend/internals/features/billing/service"
	"tutoring_backend/internals/features/billing/webhook"
	tutModel "tutoring_backend/internals/features/tutoring/model"
	helper "tutoring_backend/internals/helpers"
	"tutoring_backend/internals/helpers/dbtime"
	middlewares "tutoring_backend/internals/middlewares"
	routes "tutoring_backend/internals/route"
)

func main() {
	configs.LoadEnv()
	cfg := configs.Load()
	loc := cfg.Location()
	clock := dbtime.SystemClock{}

	app := fiber.New(fiber.Config{
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		DisableStartupMessage: true,
		ErrorHandler:          helper.JsonFromError,
		ProxyHeader:           fiber.HeaderXForwardedFor,
	})

	app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))
	app.Use(etag.New())

	// request id + timeout guard aligned with the DB statement_timeout
	app.Use(func(c *fiber.Ctx) error {
		id := c.Get("X-Request-ID")
		if id == "" {
			id = utils.UUID()
		}
		c.Set("X-Request-ID", id)
		c.Locals("reqid", id)
		ctx, cancel := context.WithTimeout(c.Context(), cfg.CustomerTimeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	})

	middlewares.SetupMiddlewares(app, cfg.Timezone)

	database.ConnectDB()
	database.TunePool()
	if cfg.AutoMigrate {
		if err := database.AutoMigrate(database.DB); err != nil {
			log.Fatalf("❌ %v", err)
		}
	}

	gw, err := ledger.NewStripeGateway(configs.LedgerSecretKey, cfg.LedgerTimeout)
	if err != nil {
		log.Fatalf("❌ ledger gateway: %v", err)
	}

	billing := billingService.NewService(database.DB, gw, billingService.Options{
		Clock:                clock,
		Loc:                  loc,
		Currency:             cfg.Currency,
		Workers:              cfg.InvoiceWorkers,
		CustomerTimeout:      cfg.CustomerTimeout,
		ReconcileMaxAttempts: cfg.ReconcileMaxAttempts,
		ReconcileBaseDelay:   cfg.ReconcileBaseDelay,
		ReconcileMaxDelay:    cfg.ReconcileMaxDelay,
	})
	hooks := webhook.NewProcessor(database.DB, webhook.StripeVerifier{Secret: configs.WebhookSigningSecret}, gw, clock)

	routes.SetupRoutes(app, routes.Deps{
		DB:        database.DB,
		Clock:     clock,
		Loc:       loc,
		JWTSecret: configs.JWTSecret,
		Billing:   billing,
		Webhooks:  hooks,
		Analytics: analyticsService.NewService(database.DB, clock, loc),
	})

	// cron after the DB is ready
	jobs, err := scheduler.New(billing, billing.Reconciler, scheduler.Config{
		Specs: map[tutModel.Cadence]string{
			tutModel.CadenceWeekly:      cfg.CronWeekly,
			tutModel.CadenceFortnightly: cfg.CronFortnightly,
			tutModel.CadenceHalfTermly:  cfg.CronHalfTermly,
			tutModel.CadenceTermly:      cfg.CronTermly,
		},
		Reconcile: cfg.CronReconcile,
	})
	if err != nil {
		log.Fatalf("❌ scheduler: %v", err)
	}
	jobs.Start()

	app.Server().ReadTimeout = 15 * time.Second
	app.Server().WriteTimeout = 2 * cfg.CustomerTimeout
	app.Server().IdleTimeout = 90 * time.Second

	go func() {
		log.Printf("✅ Listening on :%s (tz=%s)", cfg.Port, loc)
		if err := app.Listen("0.0.0.0:" + cfg.Port); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[INFO] shutting down")

	// let a running invoice job finish before the pool closes
	<-jobs.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(ctx)

	if sqlDB, err := database.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
