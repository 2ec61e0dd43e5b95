package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	billingModel "tutoring_backend/internals/features/billing/model"
	tutModel "tutoring_backend/internals/features/tutoring/model"
	"tutoring_backend/internals/helpers/dbtime"
)

const defaultDashboardDays = 30

type Metric struct {
	Value  float64 `json:"value"`
	Change float64 `json:"change"`
	Trend  string  `json:"trend"`
}

type Metrics struct {
	TotalStudents Metric `json:"totalStudents"`
	AvgAttendance Metric `json:"avgAttendance"`
	TermRevenue   Metric `json:"termRevenue"`
	PaymentRate   Metric `json:"paymentRate"`
}

type WeekRate struct {
	Week string  `json:"week"`
	Rate float64 `json:"rate"`
}

type MonthRevenue struct {
	Month   string  `json:"month"`
	Revenue float64 `json:"revenue"`
}

type GroupPerformance struct {
	GroupID    uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Attendance float64   `json:"attendance"`
	Payment    float64   `json:"payment"`
	Homework   float64   `json:"homework"`
}

type EngagementBucket struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

type AtRiskStudent struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Attendance  float64   `json:"attendance"`
	Payment     float64   `json:"payment"`
	LastAbsence *string   `json:"lastAbsence"`
}

type TopPerformer struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Engagement float64   `json:"engagement"`
	Streak     int       `json:"streak"`
}

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type Dashboard struct {
	DateRange              DateRange          `json:"dateRange"`
	MetricsData            Metrics            `json:"metricsData"`
	AttendanceData         []WeekRate         `json:"attendanceData"`
	RevenueData            []MonthRevenue     `json:"revenueData"`
	GroupPerformance       []GroupPerformance `json:"groupPerformance"`
	EngagementDistribution []EngagementBucket `json:"engagementDistribution"`
	AtRiskStudents         []AtRiskStudent    `json:"atRiskStudents"`
	TopPerformers          []TopPerformer     `json:"topPerformers"`
}

// dashRow is one attendance of an active student with its lesson and group.
type dashRow struct {
	StudentID     uuid.UUID
	StudentName   string
	GroupID       uuid.UUID
	GroupTutor    string
	GroupCourse   *string
	LessonStartAt time.Time
	Present       bool
	Homework      bool
	Paid          bool

	date time.Time
}

// DefaultRange is the last 30 days ending today.
func (s *Service) DefaultRange() (time.Time, time.Time) {
	to := dbtime.Today(s.Clock, s.Loc)
	return to.AddDate(0, 0, -defaultDashboardDays), to
}

// Dashboard aggregates attendance, revenue and engagement for the inclusive
// date range [from, to] and compares headline metrics with the equal-length
// window just before it.
func (s *Service) Dashboard(ctx context.Context, from, to time.Time) (*Dashboard, error) {
	if err := validRange(from, to); err != nil {
		return nil, err
	}
	rows, err := s.loadAttendance(ctx)
	if err != nil {
		return nil, err
	}
	var invoices []billingModel.LocalInvoiceModel
	if err := s.DB.WithContext(ctx).Find(&invoices).Error; err != nil {
		return nil, err
	}

	days := int(to.Sub(from).Hours()/24) + 1
	prevTo := from.AddDate(0, 0, -1)
	prevFrom := prevTo.AddDate(0, 0, -(days - 1))

	cur := filterRows(rows, from, to)
	prev := filterRows(rows, prevFrom, prevTo)

	d := &Dashboard{
		DateRange: DateRange{Start: from.Format(dbtime.DateLayout), End: to.Format(dbtime.DateLayout)},
	}
	d.MetricsData = s.metrics(cur, prev, invoices, from, to, prevFrom, prevTo)
	d.AttendanceData = weeklyAttendance(cur)
	d.RevenueData = s.monthlyRevenue(invoices, from, to)
	d.GroupPerformance = groupPerformance(cur)

	students := studentStats(cur)
	d.EngagementDistribution = engagementDistribution(students)
	d.AtRiskStudents = atRisk(students)
	d.TopPerformers = topPerformers(students)
	return d, nil
}

func (s *Service) loadAttendance(ctx context.Context) ([]dashRow, error) {
	var rows []dashRow
	err := s.DB.WithContext(ctx).Table("attendances AS a").
		Select(`s.student_id AS student_id, s.student_name AS student_name,
			g.group_id AS group_id, g.group_tutor AS group_tutor, g.group_course AS group_course,
			l.lesson_start_at AS lesson_start_at,
			a.attendance_present AS present, a.attendance_homework_done AS homework, a.attendance_paid AS paid`).
		Joins("JOIN lessons l ON l.lesson_id = a.attendance_lesson_id").
		Joins("JOIN students s ON s.student_id = a.attendance_student_id").
		Joins("JOIN tutoring_groups g ON g.group_id = l.lesson_group_id").
		Where("s.student_is_active = ?", true).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].date = dbtime.DateOf(rows[i].LessonStartAt, s.Loc)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].LessonStartAt.Before(rows[j].LessonStartAt) })
	return rows, nil
}

func filterRows(rows []dashRow, from, to time.Time) []dashRow {
	out := make([]dashRow, 0, len(rows))
	for _, r := range rows {
		if !r.date.Before(from) && !r.date.After(to) {
			out = append(out, r)
		}
	}
	return out
}

func inRange(t *time.Time, loc *time.Location, from, to time.Time) bool {
	if t == nil {
		return false
	}
	d := dbtime.DateOf(*t, loc)
	return !d.Before(from) && !d.After(to)
}

/* =========================
   Headline metrics
========================= */

type windowFigures struct {
	students   int
	attendance float64
	revenue    int64
	payment    float64
}

func (s *Service) figures(rows []dashRow, invoices []billingModel.LocalInvoiceModel, from, to time.Time) windowFigures {
	var f windowFigures
	seen := map[uuid.UUID]struct{}{}
	var present int64
	for _, r := range rows {
		seen[r.StudentID] = struct{}{}
		if r.Present {
			present++
		}
	}
	f.students = len(seen)
	f.attendance = percent(present, int64(len(rows)))

	var issued, paid int64
	for i := range invoices {
		inv := &invoices[i]
		if inv.LocalInvoiceStatus == billingModel.InvoicePaid && inRange(inv.LocalInvoicePaidAt, s.Loc, from, to) {
			f.revenue += inv.LocalInvoiceAmountPaid
		}
		if inRange(inv.LocalInvoiceIssuedAt, s.Loc, from, to) {
			issued++
			if inv.LocalInvoiceStatus == billingModel.InvoicePaid {
				paid++
			}
		}
	}
	f.payment = percent(paid, issued)
	return f
}

func (s *Service) metrics(cur, prev []dashRow, invoices []billingModel.LocalInvoiceModel, from, to, prevFrom, prevTo time.Time) Metrics {
	c := s.figures(cur, invoices, from, to)
	p := s.figures(prev, invoices, prevFrom, prevTo)
	return Metrics{
		TotalStudents: relative(float64(c.students), float64(p.students)),
		AvgAttendance: points(round(c.attendance, 1), round(p.attendance, 1)),
		TermRevenue:   relative(dollars(c.revenue), dollars(p.revenue)),
		PaymentRate:   points(round(c.payment, 1), round(p.payment, 1)),
	}
}

func relative(cur, prev float64) Metric {
	return Metric{Value: cur, Change: round(percentChange(cur, prev), 1), Trend: upDown(cur >= prev)}
}

func points(cur, prev float64) Metric {
	return Metric{Value: cur, Change: round(cur-prev, 1), Trend: upDown(cur >= prev)}
}

func upDown(up bool) string {
	if up {
		return "up"
	}
	return "down"
}

/* =========================
   Series
========================= */

func weeklyAttendance(rows []dashRow) []WeekRate {
	type acc struct{ total, present int64 }
	byWeek := map[time.Time]*acc{}
	for _, r := range rows {
		monday := r.date.AddDate(0, 0, -dbtime.MondayIndexed(r.date))
		a := byWeek[monday]
		if a == nil {
			a = &acc{}
			byWeek[monday] = a
		}
		a.total++
		if r.Present {
			a.present++
		}
	}
	mondays := make([]time.Time, 0, len(byWeek))
	for m := range byWeek {
		mondays = append(mondays, m)
	}
	sort.Slice(mondays, func(i, j int) bool { return mondays[i].Before(mondays[j]) })

	out := make([]WeekRate, 0, len(mondays))
	for _, m := range mondays {
		a := byWeek[m]
		out = append(out, WeekRate{Week: m.Format("02/01"), Rate: round(percent(a.present, a.total), 1)})
	}
	return out
}

// monthlyRevenue lists every month touched by the range, including empty ones.
func (s *Service) monthlyRevenue(invoices []billingModel.LocalInvoiceModel, from, to time.Time) []MonthRevenue {
	byMonth := map[time.Time]int64{}
	for i := range invoices {
		inv := &invoices[i]
		if inv.LocalInvoiceStatus != billingModel.InvoicePaid || !inRange(inv.LocalInvoicePaidAt, s.Loc, from, to) {
			continue
		}
		d := dbtime.DateOf(*inv.LocalInvoicePaidAt, s.Loc)
		byMonth[dbtime.Date(d.Year(), d.Month(), 1)] += inv.LocalInvoiceAmountPaid
	}

	var out []MonthRevenue
	last := dbtime.Date(to.Year(), to.Month(), 1)
	for m := dbtime.Date(from.Year(), from.Month(), 1); !m.After(last); m = m.AddDate(0, 1, 0) {
		out = append(out, MonthRevenue{Month: m.Format("Jan 2006"), Revenue: dollars(byMonth[m])})
	}
	return out
}

func groupPerformance(rows []dashRow) []GroupPerformance {
	type acc struct {
		name                           string
		total, present, homework, paid int64
	}
	byGroup := map[uuid.UUID]*acc{}
	for _, r := range rows {
		a := byGroup[r.GroupID]
		if a == nil {
			g := tutModel.GroupModel{GroupTutor: r.GroupTutor}
			if r.GroupCourse != nil {
				c := tutModel.Course(*r.GroupCourse)
				g.GroupCourse = &c
			}
			a = &acc{name: g.Label()}
			byGroup[r.GroupID] = a
		}
		a.total++
		if r.Present {
			a.present++
		}
		if r.Homework {
			a.homework++
		}
		if r.Paid {
			a.paid++
		}
	}
	out := make([]GroupPerformance, 0, len(byGroup))
	for id, a := range byGroup {
		out = append(out, GroupPerformance{
			GroupID:    id,
			Name:       a.name,
			Attendance: round(percent(a.present, a.total), 1),
			Payment:    round(percent(a.paid, a.total), 1),
			Homework:   round(percent(a.homework, a.total), 1),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].GroupID.String() < out[j].GroupID.String()
	})
	return out
}

/* =========================
   Per-student engagement
========================= */

type studentStat struct {
	id          uuid.UUID
	name        string
	total       int64
	present     int64
	homework    int64
	paid        int64
	lastAbsence *time.Time
	streak      int
}

func (st studentStat) attendance() float64 { return percent(st.present, st.total) }
func (st studentStat) payment() float64    { return percent(st.paid, st.total) }
func (st studentStat) engagement() float64 {
	return (percent(st.present, st.total) + percent(st.homework, st.total)) / 2
}

// studentStats expects rows in lesson order.
func studentStats(rows []dashRow) []studentStat {
	idx := map[uuid.UUID]int{}
	var out []studentStat
	for _, r := range rows {
		i, ok := idx[r.StudentID]
		if !ok {
			i = len(out)
			idx[r.StudentID] = i
			out = append(out, studentStat{id: r.StudentID, name: r.StudentName})
		}
		st := &out[i]
		st.total++
		if r.Present {
			st.present++
		} else {
			d := r.date
			st.lastAbsence = &d
		}
		if r.Homework {
			st.homework++
		}
		if r.Paid {
			st.paid++
		}
		if r.Present && r.Homework {
			st.streak++
		} else {
			st.streak = 0
		}
	}
	return out
}

func engagementDistribution(students []studentStat) []EngagementBucket {
	b := []EngagementBucket{
		{Name: "High (>90%)", Color: "#4CAF50"},
		{Name: "Medium (70-90%)", Color: "#2196F3"},
		{Name: "Low (50-70%)", Color: "#FF9800"},
		{Name: "At Risk (<50%)", Color: "#F44336"},
	}
	for _, st := range students {
		rate := st.attendance()
		switch {
		case rate > 90:
			b[0].Value++
		case rate >= 70:
			b[1].Value++
		case rate >= 50:
			b[2].Value++
		default:
			b[3].Value++
		}
	}
	return b
}

// atRisk flags students below 70% attendance or 70% payment, worst first.
func atRisk(students []studentStat) []AtRiskStudent {
	out := []AtRiskStudent{}
	for _, st := range students {
		if st.attendance() >= 70 && st.payment() >= 70 {
			continue
		}
		var last *string
		if st.lastAbsence != nil {
			s := st.lastAbsence.Format(dbtime.DateLayout)
			last = &s
		}
		out = append(out, AtRiskStudent{
			ID: st.id, Name: st.name,
			Attendance:  round(st.attendance(), 1),
			Payment:     round(st.payment(), 1),
			LastAbsence: last,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Attendance < out[j].Attendance })
	return out
}

const topPerformerLimit = 5

// topPerformers ranks by the mean of attendance and homework rates.
func topPerformers(students []studentStat) []TopPerformer {
	out := []TopPerformer{}
	for _, st := range students {
		e := round(st.engagement(), 1)
		if e < 80 {
			continue
		}
		out = append(out, TopPerformer{ID: st.id, Name: st.name, Engagement: e, Streak: st.streak})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Engagement != out[j].Engagement {
			return out[i].Engagement > out[j].Engagement
		}
		return out[i].Streak > out[j].Streak
	})
	if len(out) > topPerformerLimit {
		out = out[:topPerformerLimit]
	}
	return out
}
