package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	billingModel "tutoring_backend/internals/features/billing/model"
	calModel "tutoring_backend/internals/features/calendar/model"
	calService "tutoring_backend/internals/features/calendar/service"
	"tutoring_backend/internals/helpers/apperror"
	"tutoring_backend/internals/helpers/dbtime"
)

type Service struct {
	DB       *gorm.DB
	Calendar *calService.Service
	Clock    dbtime.Clock
	Loc      *time.Location
}

func NewService(db *gorm.DB, clock dbtime.Clock, loc *time.Location) *Service {
	if clock == nil {
		clock = dbtime.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{DB: db, Calendar: calService.NewService(db), Clock: clock, Loc: loc}
}

/* =========================
   Week / term figures
========================= */

// WeekRevenue sums the amount paid on every distinct paid invoice that covers
// an attendance in the week, in major currency units.
func (s *Service) WeekRevenue(ctx context.Context, weekID uuid.UUID) (float64, error) {
	cents, err := s.weekRevenueCents(s.DB.WithContext(ctx), weekID)
	if err != nil {
		return 0, err
	}
	return dollars(cents), nil
}

func (s *Service) weekRevenueCents(db *gorm.DB, weekID uuid.UUID) (int64, error) {
	var rows []struct {
		LocalInvoiceID         uuid.UUID
		LocalInvoiceAmountPaid int64
	}
	err := db.Table("local_invoices AS li").
		Select("DISTINCT li.local_invoice_id, li.local_invoice_amount_paid").
		Joins("JOIN attendances a ON a.attendance_local_invoice_id = li.local_invoice_id").
		Joins("JOIN lessons l ON l.lesson_id = a.attendance_lesson_id").
		Where("l.lesson_week_id = ? AND li.local_invoice_status = ?", weekID, billingModel.InvoicePaid).
		Scan(&rows).Error
	if err != nil {
		return 0, err
	}
	var total int64
	for _, r := range rows {
		total += r.LocalInvoiceAmountPaid
	}
	return total, nil
}

// TermRevenue is the sum of the term's week revenues.
func (s *Service) TermRevenue(ctx context.Context, termID uuid.UUID) (float64, error) {
	weeks, err := s.Calendar.ListWeeks(ctx, termID)
	if err != nil {
		return 0, err
	}
	db := s.DB.WithContext(ctx)
	var total int64
	for _, w := range weeks {
		c, err := s.weekRevenueCents(db, w.WeekID)
		if err != nil {
			return 0, err
		}
		total += c
	}
	return dollars(total), nil
}

// WeekAttendanceRate is present / total attendance for the week's lessons,
// as a percentage. A week with no attendance rates 0.
func (s *Service) WeekAttendanceRate(ctx context.Context, weekID uuid.UUID) (float64, error) {
	total, present, err := s.attendanceCounts(s.DB.WithContext(ctx), weekID)
	if err != nil {
		return 0, err
	}
	return percent(present, total), nil
}

// TermAttendanceRate averages the week rates, ignoring weeks without lessons.
func (s *Service) TermAttendanceRate(ctx context.Context, termID uuid.UUID) (float64, error) {
	weeks, err := s.Calendar.ListWeeks(ctx, termID)
	if err != nil {
		return 0, err
	}
	db := s.DB.WithContext(ctx)
	var sum float64
	var n int
	for _, w := range weeks {
		total, present, err := s.attendanceCounts(db, w.WeekID)
		if err != nil {
			return 0, err
		}
		if total == 0 {
			continue
		}
		sum += float64(present) / float64(total) * 100
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return round(sum/float64(n), 3), nil
}

func (s *Service) attendanceCounts(db *gorm.DB, weekID uuid.UUID) (total, present int64, err error) {
	var row struct {
		Total   int64
		Present int64
	}
	err = db.Table("attendances AS a").
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN a.attendance_present THEN 1 ELSE 0 END), 0) AS present").
		Joins("JOIN lessons l ON l.lesson_id = a.attendance_lesson_id").
		Where("l.lesson_week_id = ?", weekID).
		Scan(&row).Error
	return row.Total, row.Present, err
}

// AmountOfEnrolments counts distinct students with attendance in the term.
func (s *Service) AmountOfEnrolments(ctx context.Context, termID uuid.UUID) (int64, error) {
	if _, err := s.Calendar.GetTerm(ctx, termID); err != nil {
		return 0, err
	}
	var n int64
	err := s.DB.WithContext(ctx).Table("attendances AS a").
		Joins("JOIN lessons l ON l.lesson_id = a.attendance_lesson_id").
		Joins("JOIN weeks w ON w.week_id = l.lesson_week_id").
		Where("w.week_term_id = ?", termID).
		Distinct("a.attendance_student_id").
		Count(&n).Error
	return n, err
}

/* =========================
   Term-over-term
========================= */

// Collated compares a term figure with the previous term. Change and Trend
// are nil when the term has no previous term.
type Collated struct {
	Value  float64  `json:"value"`
	Change *float64 `json:"change"`
	Trend  *string  `json:"trend"`
}

// CollateAttendanceRate reports the change in percentage points.
func (s *Service) CollateAttendanceRate(ctx context.Context, termID uuid.UUID) (Collated, error) {
	term, err := s.Calendar.GetTerm(ctx, termID)
	if err != nil {
		return Collated{}, err
	}
	cur, err := s.TermAttendanceRate(ctx, termID)
	if err != nil {
		return Collated{}, err
	}
	out := Collated{Value: cur}
	if term.TermPreviousTermID == nil {
		return out, nil
	}
	prev, err := s.TermAttendanceRate(ctx, *term.TermPreviousTermID)
	if err != nil {
		return Collated{}, err
	}
	change := round(cur-prev, 3)
	out.Change = &change
	out.Trend = trendSign(cur >= prev)
	return out, nil
}

// CollateEnrolments reports the change as a percentage of the previous count.
func (s *Service) CollateEnrolments(ctx context.Context, termID uuid.UUID) (Collated, error) {
	term, err := s.Calendar.GetTerm(ctx, termID)
	if err != nil {
		return Collated{}, err
	}
	cur, err := s.AmountOfEnrolments(ctx, termID)
	if err != nil {
		return Collated{}, err
	}
	out := Collated{Value: float64(cur)}
	if term.TermPreviousTermID == nil {
		return out, nil
	}
	prev, err := s.AmountOfEnrolments(ctx, *term.TermPreviousTermID)
	if err != nil {
		return Collated{}, err
	}
	change := round(percentChange(float64(cur), float64(prev)), 3)
	out.Change = &change
	out.Trend = trendSign(cur >= prev)
	return out, nil
}

type WeekFigures struct {
	WeekID         uuid.UUID  `json:"week_id"`
	Index          int        `json:"index"`
	MondayDate     *time.Time `json:"monday_date,omitempty"`
	Revenue        float64    `json:"revenue"`
	AttendanceRate float64    `json:"attendance_rate"`
}

type TermReport struct {
	Code               string        `json:"term"`
	Revenue            float64       `json:"revenue"`
	AttendanceRate     Collated      `json:"attendance_rate"`
	AmountOfEnrolments Collated      `json:"amount_of_enrolments"`
	Weeks              []WeekFigures `json:"weeks"`
}

// TermSummary resolves a "24T3" style code and gathers every term figure.
func (s *Service) TermSummary(ctx context.Context, code string) (*TermReport, error) {
	term, err := s.Calendar.FindTermByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.termReport(ctx, term)
}

func (s *Service) termReport(ctx context.Context, term *calModel.TermModel) (*TermReport, error) {
	rep := &TermReport{Code: term.Code()}
	var err error
	if rep.Revenue, err = s.TermRevenue(ctx, term.TermID); err != nil {
		return nil, err
	}
	if rep.AttendanceRate, err = s.CollateAttendanceRate(ctx, term.TermID); err != nil {
		return nil, err
	}
	if rep.AmountOfEnrolments, err = s.CollateEnrolments(ctx, term.TermID); err != nil {
		return nil, err
	}
	weeks, err := s.Calendar.ListWeeks(ctx, term.TermID)
	if err != nil {
		return nil, err
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].WeekIndex < weeks[j].WeekIndex })
	for _, w := range weeks {
		rev, err := s.WeekRevenue(ctx, w.WeekID)
		if err != nil {
			return nil, err
		}
		rate, err := s.WeekAttendanceRate(ctx, w.WeekID)
		if err != nil {
			return nil, err
		}
		rep.Weeks = append(rep.Weeks, WeekFigures{
			WeekID: w.WeekID, Index: w.WeekIndex, MondayDate: w.WeekMondayDate,
			Revenue: rev, AttendanceRate: rate,
		})
	}
	return rep, nil
}

/* =========================
   Helpers
========================= */

func dollars(cents int64) float64 { return round(float64(cents)/100, 2) }

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round(float64(part)/float64(total)*100, 3)
}

func percentChange(cur, prev float64) float64 {
	if prev == 0 {
		if cur > 0 {
			return 100
		}
		return 0
	}
	return (cur - prev) / prev * 100
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func trendSign(up bool) *string {
	s := "-"
	if up {
		s = "+"
	}
	return &s
}

func validRange(from, to time.Time) error {
	if to.Before(from) {
		return apperror.Validation("end_date %s is before start_date %s", to.Format(dbtime.DateLayout), from.Format(dbtime.DateLayout))
	}
	return nil
}
