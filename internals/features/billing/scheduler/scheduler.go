package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"tutoring_backend/internals/features/billing/service"
	tutModel "tutoring_backend/internals/features/tutoring/model"
)

type Invoicer interface {
	GenerateInvoices(ctx context.Context, cadence tutModel.Cadence) (service.GenerateReport, error)
	GenerateBasketInvoices(ctx context.Context, cadence tutModel.Cadence) (service.GenerateReport, error)
}

type ReconcileRunner interface {
	RunDue(ctx context.Context) (service.ReconcileStats, error)
}

type Config struct {
	// cron spec per cadence; an empty spec disables that cadence
	Specs      map[tutModel.Cadence]string
	Reconcile  string
	RunTimeout time.Duration
}

// New registers one invoicing job per configured cadence plus the reconcile
// tick. The caller owns Start/Stop.
func New(inv Invoicer, rec ReconcileRunner, cfg Config) (*cron.Cron, error) {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Minute
	}
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))

	for _, cadence := range tutModel.Cadences() {
		spec := cfg.Specs[cadence]
		if spec == "" {
			continue
		}
		cadence := cadence
		if _, err := c.AddFunc(spec, func() { runInvoicing(inv, cadence, cfg.RunTimeout) }); err != nil {
			return nil, fmt.Errorf("cron %s %q: %w", cadence, spec, err)
		}
		log.Printf("[CRON] invoicing %s scheduled %q", cadence, spec)
	}

	if cfg.Reconcile != "" && rec != nil {
		if _, err := c.AddFunc(cfg.Reconcile, func() { runReconcile(rec) }); err != nil {
			return nil, fmt.Errorf("cron reconcile %q: %w", cfg.Reconcile, err)
		}
		log.Printf("[CRON] reconcile scheduled %q", cfg.Reconcile)
	}
	return c, nil
}

func runInvoicing(inv Invoicer, cadence tutModel.Cadence, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	report, err := inv.GenerateInvoices(ctx, cadence)
	if err != nil {
		log.Printf("[CRON] invoicing %s failed: %v", cadence, err)
	} else {
		issued, skipped, failed := report.Count()
		log.Printf("[CRON] invoicing %s period=%q issued=%d skipped=%d failed=%d dur=%s",
			cadence, report.Period, issued, skipped, failed, time.Since(start))
	}

	basket, err := inv.GenerateBasketInvoices(ctx, cadence)
	if err != nil {
		log.Printf("[CRON] basket %s failed: %v", cadence, err)
		return
	}
	issued, _, failed := basket.Count()
	if issued+failed > 0 {
		log.Printf("[CRON] basket %s issued=%d failed=%d", cadence, issued, failed)
	}
}

func runReconcile(rec ReconcileRunner) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	stats, err := rec.RunDue(ctx)
	if err != nil {
		log.Printf("[CRON] reconcile failed: %v", err)
		return
	}
	if stats != (service.ReconcileStats{}) {
		log.Printf("[CRON] reconcile linked=%d attendances=%d retried=%d dead=%d",
			stats.Linked, stats.Attendances, stats.Retried, stats.Dead)
	}
}
