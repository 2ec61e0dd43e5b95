package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tutoring_backend/internals/databases/dbtest"
	"tutoring_backend/internals/features/billing/ledger"
	"tutoring_backend/internals/features/billing/ledger/ledgertest"
	"tutoring_backend/internals/features/billing/model"
	calService "tutoring_backend/internals/features/calendar/service"
	tutModel "tutoring_backend/internals/features/tutoring/model"
	tutService "tutoring_backend/internals/features/tutoring/service"
	"tutoring_backend/internals/helpers/dbtime"
)

// stepClock can be moved forward between calls.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type billingFixture struct {
	db      *gorm.DB
	fake    *ledgertest.Fake
	cal     *calService.Service
	roster  *tutService.RosterService
	termID  uuid.UUID
	product model.ProductModel
}

// term 25T4 starts on Monday 2025-10-13
var termStart = dbtime.Date(2025, 10, 13)

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	ctx := context.Background()
	db := dbtest.Open(t)
	cal := calService.NewService(db)
	_, err := cal.CreateYear(ctx, 25)
	require.NoError(t, err)
	term, err := cal.CreateTerm(ctx, calService.CreateTermInput{YearIndex: 25, Index: 4})
	require.NoError(t, err)

	f := &billingFixture{
		db:     db,
		fake:   ledgertest.New(),
		cal:    cal,
		roster: tutService.NewRosterService(db),
		termID: term.TermID,
	}
	f.product = f.addProduct(t, "prod_private", "Private, In Person", "price_60", 6000)
	return f
}

func (f *billingFixture) addProduct(t *testing.T, ledgerID, name, priceID string, cents int64) model.ProductModel {
	t.Helper()
	p := model.ProductModel{
		ProductLedgerID:             ledgerID,
		ProductName:                 name,
		ProductActive:               true,
		ProductDefaultPriceLedgerID: &priceID,
	}
	require.NoError(t, f.db.Create(&p).Error)
	f.fake.SetPrice(priceID, ledgerID, cents, "aud")
	return p
}

func (f *billingFixture) customer(t *testing.T, ledgerID string, cadence tutModel.Cadence) *tutModel.CustomerModel {
	t.Helper()
	c := &tutModel.CustomerModel{
		CustomerLedgerID: ledgerID,
		CustomerName:     "Parent " + ledgerID,
		CustomerIsActive: true,
		CustomerCadence:  cadence,
	}
	require.NoError(t, f.roster.UpsertCustomer(context.Background(), c))
	return c
}

func (f *billingFixture) group(t *testing.T, product *model.ProductModel, dow, hours int) *tutModel.GroupModel {
	t.Helper()
	d := dow
	at := dbtime.MustParse("14:00")
	g := &tutModel.GroupModel{GroupTutor: "Test Tutor", GroupDayOfWeek: &d, GroupTimeOfDay: &at, GroupLessonLength: hours}
	if product != nil {
		id := product.ProductID
		g.GroupProductID = &id
	}
	require.NoError(t, f.roster.CreateGroup(context.Background(), g))
	return g
}

func (f *billingFixture) enrol(t *testing.T, cust *tutModel.CustomerModel, name string, groups ...*tutModel.GroupModel) *tutModel.StudentModel {
	t.Helper()
	st := &tutModel.StudentModel{StudentCustomerID: cust.CustomerID, StudentName: name, StudentIsActive: true}
	require.NoError(t, f.roster.CreateStudent(context.Background(), st))
	for _, g := range groups {
		require.NoError(t, f.roster.Enrol(context.Background(), g.GroupID, st.StudentID))
	}
	return st
}

func (f *billingFixture) schedule(t *testing.T) {
	t.Helper()
	s := tutService.NewScheduler(f.db, dbtime.FixedClock{T: termStart}, time.UTC)
	_, err := s.ScheduleTerm(context.Background(), f.termID, termStart)
	require.NoError(t, err)
}

func (f *billingFixture) service(clock dbtime.Clock) *Service {
	return NewService(f.db, f.fake, Options{
		Clock:                clock,
		Loc:                  time.UTC,
		Currency:             "aud",
		Workers:              2,
		CustomerTimeout:      5 * time.Second,
		ReconcileMaxAttempts: 3,
		ReconcileBaseDelay:   time.Second,
		ReconcileMaxDelay:    time.Minute,
	})
}

// mirrorOnFinalize plays the webhook: the mirror exists by the time finalize returns.
func (f *billingFixture) mirrorOnFinalize(t *testing.T) {
	f.fake.OnFinalize = func(inv ledger.Invoice) {
		m := MirrorFromLedger(inv, time.Now())
		assert.NoError(t, UpsertInvoiceMirror(f.db, &m))
	}
}

func at(y int, m time.Month, d int) dbtime.Clock {
	return dbtime.FixedClock{T: time.Date(y, m, d, 10, 0, 0, 0, time.UTC)}
}

func countLinked(t *testing.T, db *gorm.DB, linked bool) int64 {
	t.Helper()
	q := db.Model(&tutModel.AttendanceModel{})
	if linked {
		q = q.Where("attendance_local_invoice_id IS NOT NULL")
	} else {
		q = q.Where("attendance_local_invoice_id IS NULL")
	}
	var n int64
	require.NoError(t, q.Count(&n).Error)
	return n
}
