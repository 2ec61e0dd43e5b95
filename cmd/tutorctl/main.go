// Command tutorctl runs calendar, scheduling and billing jobs from the shell.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"tutoring_backend/internals/configs"
	database "tutoring_backend/internals/databases"
	"tutoring_backend/internals/features/billing/ledger"
	"tutoring_backend/internals/helpers/dbtime"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := Run(ctx, os.Args[1:], os.Stdout, os.Stderr, func() (*Env, error) {
		configs.LoadEnv()
		cfg := configs.Load()

		database.ConnectDB()
		env := &Env{
			DB:     database.DB,
			Clock:  dbtime.SystemClock{},
			Loc:    cfg.Location(),
			Config: cfg,
		}
		if configs.LedgerSecretKey != "" {
			gw, err := ledger.NewStripeGateway(configs.LedgerSecretKey, cfg.LedgerTimeout)
			if err != nil {
				return nil, err
			}
			env.Ledger = gw
		} else {
			log.Println("[WARN] STRIPE_SECRET_KEY not set, billing commands are unavailable")
		}
		return env, nil
	})

	if database.DB != nil {
		if sqlDB, err := database.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	stop()
	os.Exit(code)
}
