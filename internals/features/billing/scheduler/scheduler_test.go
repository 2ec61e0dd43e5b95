package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutoring_backend/internals/features/billing/service"
	tutModel "tutoring_backend/internals/features/tutoring/model"
)

type recorder struct {
	mu       sync.Mutex
	invoices []tutModel.Cadence
	baskets  []tutModel.Cadence
	runs     int
	failWith error
}

func (r *recorder) GenerateInvoices(ctx context.Context, c tutModel.Cadence) (service.GenerateReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invoices = append(r.invoices, c)
	return service.GenerateReport{Cadence: c}, r.failWith
}

func (r *recorder) GenerateBasketInvoices(ctx context.Context, c tutModel.Cadence) (service.GenerateReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.baskets = append(r.baskets, c)
	return service.GenerateReport{Cadence: c}, nil
}

func (r *recorder) RunDue(ctx context.Context) (service.ReconcileStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	return service.ReconcileStats{Linked: 1}, nil
}

func TestNewRegistersConfiguredJobs(t *testing.T) {
	rec := &recorder{}
	c, err := New(rec, rec, Config{
		Specs: map[tutModel.Cadence]string{
			tutModel.CadenceWeekly:      "0 6 * * MON",
			tutModel.CadenceFortnightly: "",
			tutModel.CadenceTermly:      "0 6 1 * *",
		},
		Reconcile: "@every 30s",
	})
	require.NoError(t, err)

	entries := c.Entries()
	require.Len(t, entries, 3)
	for _, e := range entries {
		e.Job.Run()
	}
	assert.ElementsMatch(t, []tutModel.Cadence{tutModel.CadenceWeekly, tutModel.CadenceTermly}, rec.invoices)
	assert.ElementsMatch(t, rec.invoices, rec.baskets)
	assert.Equal(t, 1, rec.runs)
}

func TestInvoicingFailureStillRunsBasket(t *testing.T) {
	rec := &recorder{failWith: errors.New("boom")}
	c, err := New(rec, nil, Config{Specs: map[tutModel.Cadence]string{tutModel.CadenceWeekly: "@daily"}, Reconcile: "@every 1m"})
	require.NoError(t, err)
	require.Len(t, c.Entries(), 1)

	c.Entries()[0].Job.Run()
	assert.Equal(t, []tutModel.Cadence{tutModel.CadenceWeekly}, rec.baskets)
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New(&recorder{}, nil, Config{Specs: map[tutModel.Cadence]string{tutModel.CadenceWeekly: "not a spec"}})
	assert.Error(t, err)
}
