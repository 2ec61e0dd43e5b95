package service

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tutoring_backend/internals/databases/dbtest"
	billingModel "tutoring_backend/internals/features/billing/model"
	calModel "tutoring_backend/internals/features/calendar/model"
	calService "tutoring_backend/internals/features/calendar/service"
	tutModel "tutoring_backend/internals/features/tutoring/model"
	tutService "tutoring_backend/internals/features/tutoring/service"
	"tutoring_backend/internals/helpers/apperror"
	"tutoring_backend/internals/helpers/dbtime"
)

type fixture struct {
	db    *gorm.DB
	cal   *calService.Service
	loc   *time.Location
	cust  tutModel.CustomerModel
	group tutModel.GroupModel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	loc, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)
	f := &fixture{db: db, cal: calService.NewService(db), loc: loc}

	f.cust = tutModel.CustomerModel{CustomerLedgerID: "cus_a", CustomerName: "Test Parent", CustomerIsActive: true}
	require.NoError(t, db.Create(&f.cust).Error)
	course := tutModel.CourseYear12Adv
	f.group = tutModel.GroupModel{GroupTutor: "John Doe", GroupCourse: &course, GroupLessonLength: 1}
	require.NoError(t, db.Create(&f.group).Error)
	return f
}

func (f *fixture) service(now time.Time) *Service {
	return NewService(f.db, dbtime.FixedClock{T: now}, f.loc)
}

func (f *fixture) student(t *testing.T, name string) tutModel.StudentModel {
	t.Helper()
	st := tutModel.StudentModel{StudentCustomerID: f.cust.CustomerID, StudentName: name, StudentIsActive: true}
	require.NoError(t, f.db.Create(&st).Error)
	require.NoError(t, f.db.Create(&tutModel.EnrolmentModel{EnrolmentGroupID: f.group.GroupID, EnrolmentStudentID: st.StudentID}).Error)
	return st
}

func (f *fixture) term(t *testing.T, index int, prev *uuid.UUID, monday time.Time) (uuid.UUID, []calModel.WeekModel) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.cal.GetYearByIndex(ctx, 25); err != nil {
		_, err = f.cal.CreateYear(ctx, 25)
		require.NoError(t, err)
	}
	term, err := f.cal.CreateTerm(ctx, calService.CreateTermInput{YearIndex: 25, Index: index, PreviousTermID: prev})
	require.NoError(t, err)
	_, err = f.cal.AnchorTerm(ctx, term.TermID, monday)
	require.NoError(t, err)
	weeks, err := f.cal.ListWeeks(ctx, term.TermID)
	require.NoError(t, err)
	return term.TermID, weeks
}

// lesson creates a lesson on date at 16:00 local and returns attendance ids by student.
func (f *fixture) lesson(t *testing.T, date time.Time, week *uuid.UUID) map[uuid.UUID]uuid.UUID {
	t.Helper()
	l := tutModel.LessonModel{
		LessonGroupID: f.group.GroupID,
		LessonWeekID:  week,
		LessonStartAt: dbtime.At(date, dbtime.MustParse("16:00"), f.loc),
	}
	_, _, err := tutService.CreateLessonWithAttendance(f.db, &l)
	require.NoError(t, err)

	var rows []tutModel.AttendanceModel
	require.NoError(t, f.db.Where("attendance_lesson_id = ?", l.LessonID).Find(&rows).Error)
	out := map[uuid.UUID]uuid.UUID{}
	for _, r := range rows {
		out[r.AttendanceStudentID] = r.AttendanceID
	}
	return out
}

func (f *fixture) mark(t *testing.T, attendanceID uuid.UUID, present, homework, paid bool, invoice *uuid.UUID) {
	t.Helper()
	require.NoError(t, f.db.Model(&tutModel.AttendanceModel{}).
		Where("attendance_id = ?", attendanceID).
		Updates(map[string]any{
			"attendance_present":          present,
			"attendance_homework_done":    homework,
			"attendance_paid":             paid,
			"attendance_local_invoice_id": invoice,
		}).Error)
}

func (f *fixture) invoice(t *testing.T, status billingModel.InvoiceStatus, cents int64, issued time.Time, paidAt *time.Time) uuid.UUID {
	t.Helper()
	inv := billingModel.LocalInvoiceModel{
		LocalInvoiceExternalID: "in_" + uuid.NewString()[:8],
		LocalInvoiceStatus:     status,
		LocalInvoiceAmountDue:  cents,
		LocalInvoiceCurrency:   "aud",
		LocalInvoiceIssuedAt:   &issued,
		LocalInvoicePaidAt:     paidAt,
	}
	if status == billingModel.InvoicePaid {
		inv.LocalInvoiceAmountPaid = cents
	}
	require.NoError(t, f.db.Create(&inv).Error)
	return inv.LocalInvoiceID
}

func ptr[T any](v T) *T { return &v }

/* =========================
   Term figures
========================= */

func TestTermFigures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.student(t, "Alice"), f.student(t, "Bob"), f.student(t, "Cara")

	prevID, prevWeeks := f.term(t, 3, nil, dbtime.Date(2025, 7, 21))
	termID, weeks := f.term(t, 4, &prevID, dbtime.Date(2025, 10, 13))

	// previous term: only two students attended anything
	f.db.Where("enrolment_student_id = ?", c.StudentID).Delete(&tutModel.EnrolmentModel{})
	f.lesson(t, dbtime.Date(2025, 7, 21), &prevWeeks[0].WeekID)
	require.NoError(t, f.db.Create(&tutModel.EnrolmentModel{EnrolmentGroupID: f.group.GroupID, EnrolmentStudentID: c.StudentID}).Error)

	issued := time.Date(2025, 10, 13, 0, 0, 0, 0, time.UTC)
	paid50 := f.invoice(t, billingModel.InvoicePaid, 5000, issued, ptr(issued))
	paid75 := f.invoice(t, billingModel.InvoicePaid, 7500, issued, ptr(issued))
	open100 := f.invoice(t, billingModel.InvoiceOpen, 10000, issued, nil)

	w1 := f.lesson(t, dbtime.Date(2025, 10, 14), &weeks[0].WeekID)
	f.mark(t, w1[a.StudentID], true, false, true, &paid50)
	f.mark(t, w1[b.StudentID], true, false, true, &paid50)
	f.mark(t, w1[c.StudentID], false, false, false, nil)

	w2 := f.lesson(t, dbtime.Date(2025, 10, 21), &weeks[1].WeekID)
	f.mark(t, w2[a.StudentID], true, false, true, &paid75)
	f.mark(t, w2[b.StudentID], true, false, false, &open100)
	f.mark(t, w2[c.StudentID], true, false, false, nil)

	svc := f.service(time.Now())

	rev, err := svc.WeekRevenue(ctx, weeks[0].WeekID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, rev, "one invoice counted once")
	rev, err = svc.WeekRevenue(ctx, weeks[1].WeekID)
	require.NoError(t, err)
	assert.Equal(t, 75.0, rev, "open invoices earn nothing")
	rev, err = svc.WeekRevenue(ctx, weeks[2].WeekID)
	require.NoError(t, err)
	assert.Zero(t, rev)
	total, err := svc.TermRevenue(ctx, termID)
	require.NoError(t, err)
	assert.Equal(t, 125.0, total)

	rate, err := svc.WeekAttendanceRate(ctx, weeks[0].WeekID)
	require.NoError(t, err)
	assert.Equal(t, 66.667, rate)
	rate, err = svc.WeekAttendanceRate(ctx, weeks[5].WeekID)
	require.NoError(t, err)
	assert.Zero(t, rate)
	termRate, err := svc.TermAttendanceRate(ctx, termID)
	require.NoError(t, err)
	assert.Equal(t, 83.333, termRate, "weeks without lessons are ignored")

	n, err := svc.AmountOfEnrolments(ctx, termID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	enrol, err := svc.CollateEnrolments(ctx, termID)
	require.NoError(t, err)
	assert.Equal(t, 3.0, enrol.Value)
	require.NotNil(t, enrol.Change)
	assert.Equal(t, 50.0, *enrol.Change)
	assert.Equal(t, "+", *enrol.Trend)

	att, err := svc.CollateAttendanceRate(ctx, termID)
	require.NoError(t, err)
	require.NotNil(t, att.Change)
	assert.Equal(t, 83.333, att.Value)
	assert.Equal(t, "+", *att.Trend, "previous term had no one present")

	first, err := svc.CollateEnrolments(ctx, prevID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, first.Value)
	assert.Nil(t, first.Change)
	assert.Nil(t, first.Trend)
}

func TestTermSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.student(t, "Alice")
	_, weeks := f.term(t, 4, nil, dbtime.Date(2025, 10, 13))
	ids := f.lesson(t, dbtime.Date(2025, 10, 14), &weeks[0].WeekID)
	for _, id := range ids {
		f.mark(t, id, true, true, false, nil)
	}

	rep, err := f.service(time.Now()).TermSummary(ctx, "25t4")
	require.NoError(t, err)
	assert.Equal(t, "25T4", rep.Code)
	require.Len(t, rep.Weeks, 10)
	assert.Equal(t, 100.0, rep.Weeks[0].AttendanceRate)
	assert.Equal(t, 1.0, rep.AmountOfEnrolments.Value)

	_, err = f.service(time.Now()).TermSummary(ctx, "2024-01-01")
	assert.True(t, apperror.IsValidation(err))
	_, err = f.service(time.Now()).TermSummary(ctx, "99T3")
	assert.True(t, apperror.IsNotFound(err))
}

/* =========================
   Dashboard
========================= */

type dashFixture struct {
	*fixture
	now        time.Time
	s1, s2, s3 tutModel.StudentModel
}

// Three students over four weekly lessons: one perfect, one 75% present,
// one 50% present and half unpaid.
func newDashFixture(t *testing.T) *dashFixture {
	f := newFixture(t)
	d := &dashFixture{fixture: f, now: time.Date(2025, 11, 20, 9, 0, 0, 0, f.loc)}
	d.s1, d.s2, d.s3 = f.student(t, "Alice Smith"), f.student(t, "Bob Johnson"), f.student(t, "Charlie Brown")

	day := func(m time.Month, dd int) time.Time { return time.Date(2025, m, dd, 12, 0, 0, 0, f.loc) }
	inv1 := f.invoice(t, billingModel.InvoicePaid, 5000, day(10, 21), ptr(day(10, 22)))
	inv2 := f.invoice(t, billingModel.InvoicePaid, 10000, day(11, 5), ptr(day(11, 6)))
	f.invoice(t, billingModel.InvoiceOpen, 7500, day(11, 15), nil)

	dates := []time.Time{
		dbtime.Date(2025, 10, 22), dbtime.Date(2025, 10, 29),
		dbtime.Date(2025, 11, 5), dbtime.Date(2025, 11, 12),
	}
	for i, date := range dates {
		ids := f.lesson(t, date, nil)
		f.mark(t, ids[d.s1.StudentID], true, true, true, &inv1)
		f.mark(t, ids[d.s2.StudentID], i < 3, i < 2, true, &inv1)
		var link *uuid.UUID
		if i < 2 {
			link = &inv2
		}
		f.mark(t, ids[d.s3.StudentID], i < 2, i == 0, i < 2, link)
	}
	return d
}

func TestDashboardMetrics(t *testing.T) {
	d := newDashFixture(t)
	svc := d.service(d.now)
	from, to := svc.DefaultRange()
	assert.Equal(t, dbtime.Date(2025, 10, 21), from)
	assert.Equal(t, dbtime.Date(2025, 11, 20), to)

	dash, err := svc.Dashboard(context.Background(), from, to)
	require.NoError(t, err)

	m := dash.MetricsData
	assert.Equal(t, 3.0, m.TotalStudents.Value)
	assert.Equal(t, 75.0, m.AvgAttendance.Value)
	assert.Equal(t, 150.0, m.TermRevenue.Value)
	assert.Equal(t, 66.7, m.PaymentRate.Value)
	for _, metric := range []Metric{m.TotalStudents, m.AvgAttendance, m.TermRevenue, m.PaymentRate} {
		assert.Contains(t, []string{"up", "down"}, metric.Trend)
	}
	assert.Equal(t, "up", m.TotalStudents.Trend)
	assert.Equal(t, 100.0, m.TotalStudents.Change, "nothing in the previous window")

	assert.Equal(t, DateRange{Start: "2025-10-21", End: "2025-11-20"}, dash.DateRange)
	require.Len(t, dash.AttendanceData, 4)
	assert.Equal(t, WeekRate{Week: "20/10", Rate: 100}, dash.AttendanceData[0])
	assert.Equal(t, WeekRate{Week: "10/11", Rate: 33.3}, dash.AttendanceData[3])

	require.Len(t, dash.RevenueData, 2)
	assert.Equal(t, MonthRevenue{Month: "Oct 2025", Revenue: 50}, dash.RevenueData[0])
	assert.Equal(t, MonthRevenue{Month: "Nov 2025", Revenue: 100}, dash.RevenueData[1])

	require.Len(t, dash.GroupPerformance, 1)
	g := dash.GroupPerformance[0]
	assert.Contains(t, g.Name, "12 Advanced")
	assert.Equal(t, 75.0, g.Attendance)
	assert.Equal(t, 58.3, g.Homework)
	assert.Equal(t, 83.3, g.Payment)
}

func TestDashboardEngagement(t *testing.T) {
	d := newDashFixture(t)
	svc := d.service(d.now)
	from, to := svc.DefaultRange()
	dash, err := svc.Dashboard(context.Background(), from, to)
	require.NoError(t, err)

	dist := map[string]int{}
	for _, b := range dash.EngagementDistribution {
		dist[b.Name] = b.Value
		assert.NotEmpty(t, b.Color)
	}
	assert.Equal(t, map[string]int{
		"High (>90%)": 1, "Medium (70-90%)": 1, "Low (50-70%)": 1, "At Risk (<50%)": 0,
	}, dist)

	var atRisk []uuid.UUID
	for _, s := range dash.AtRiskStudents {
		atRisk = append(atRisk, s.ID)
	}
	assert.Contains(t, atRisk, d.s3.StudentID)
	assert.NotContains(t, atRisk, d.s1.StudentID)
	require.NotEmpty(t, dash.AtRiskStudents)
	require.NotNil(t, dash.AtRiskStudents[0].LastAbsence)
	assert.Equal(t, "2025-11-12", *dash.AtRiskStudents[0].LastAbsence)

	require.NotEmpty(t, dash.TopPerformers)
	top := dash.TopPerformers[0]
	assert.Equal(t, d.s1.StudentID, top.ID)
	assert.Equal(t, 100.0, top.Engagement)
	assert.Equal(t, 4, top.Streak)
}

func TestDashboardExcludesInactiveStudents(t *testing.T) {
	d := newDashFixture(t)
	require.NoError(t, d.db.Model(&tutModel.StudentModel{}).
		Where("student_id = ?", d.s1.StudentID).
		Update("student_is_active", false).Error)

	svc := d.service(d.now)
	from, to := svc.DefaultRange()
	dash, err := svc.Dashboard(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 2.0, dash.MetricsData.TotalStudents.Value)
}

func TestDashboardRange(t *testing.T) {
	d := newDashFixture(t)
	svc := d.service(d.now)
	ctx := context.Background()

	dash, err := svc.Dashboard(ctx, dbtime.Date(2025, 11, 10), dbtime.Date(2025, 11, 20))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(dash.AttendanceData), 2)

	_, err = svc.Dashboard(ctx, dbtime.Date(2025, 11, 20), dbtime.Date(2025, 11, 10))
	assert.True(t, apperror.IsValidation(err))

	empty, err := svc.Dashboard(ctx, dbtime.Date(2024, 1, 1), dbtime.Date(2024, 1, 31))
	require.NoError(t, err)
	assert.Zero(t, empty.MetricsData.TotalStudents.Value)
	assert.Empty(t, empty.AttendanceData)
	assert.Empty(t, empty.TopPerformers)
	assert.Len(t, empty.EngagementDistribution, 4)
}
