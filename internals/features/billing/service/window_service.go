package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	calModel "tutoring_backend/internals/features/calendar/model"
	"tutoring_backend/internals/helpers/dbtime"
)

// Window is the contiguous run of weeks one invoicing run bills for.
type Window struct {
	Term  *calModel.TermModel
	Weeks []calModel.WeekModel
}

func (w Window) Empty() bool { return len(w.Weeks) == 0 }

// SelectWeeksToInvoice bills forward from today: the week containing today,
// else the next week to start, then cadenceWeeks weeks of that term from there.
// Weeks that do not exist in the term are dropped rather than borrowed from the next.
func (s *Service) SelectWeeksToInvoice(ctx context.Context, cadenceWeeks int) (Window, error) {
	today := dbtime.Today(s.Clock, s.Loc)

	var anchored []calModel.WeekModel
	if err := s.DB.WithContext(ctx).
		Where("week_monday_date IS NOT NULL AND week_sunday_date IS NOT NULL").
		Find(&anchored).Error; err != nil {
		return Window{}, err
	}
	sort.SliceStable(anchored, func(i, j int) bool {
		a, b := anchored[i], anchored[j]
		if !a.WeekMondayDate.Equal(*b.WeekMondayDate) {
			return a.WeekMondayDate.Before(*b.WeekMondayDate)
		}
		return a.WeekIndex < b.WeekIndex
	})

	found := startingWeek(anchored, today)
	if found == nil {
		log.Printf("[WARN] billing: no week contains or follows %s, nothing to bill", today.Format("2006-01-02"))
		return Window{}, nil
	}
	if cadenceWeeks < 1 {
		cadenceWeeks = 1
	}

	term, err := s.Calendar.GetTerm(ctx, found.WeekTermID)
	if err != nil {
		return Window{}, err
	}
	weeks, err := s.Calendar.ListWeeks(ctx, found.WeekTermID)
	if err != nil {
		return Window{}, err
	}
	last := found.WeekIndex + cadenceWeeks - 1
	out := make([]calModel.WeekModel, 0, cadenceWeeks)
	for _, w := range weeks {
		if w.WeekIndex >= found.WeekIndex && w.WeekIndex <= last {
			out = append(out, w)
		}
	}
	return Window{Term: term, Weeks: out}, nil
}

// startingWeek expects weeks sorted by monday then index.
func startingWeek(weeks []calModel.WeekModel, today time.Time) *calModel.WeekModel {
	for i := range weeks {
		if weeks[i].Contains(today) {
			return &weeks[i]
		}
	}
	for i := range weeks {
		if weeks[i].WeekMondayDate.After(today) {
			return &weeks[i]
		}
	}
	return nil
}

// BillingPeriodDescriptor renders e.g. "Week 3 Term 1 2025 Weeks 3-4 (17/02 - 02/03/2025)".
func BillingPeriodDescriptor(w Window) string {
	if w.Empty() {
		return ""
	}
	first, last := w.Weeks[0], w.Weeks[len(w.Weeks)-1]

	year := 0
	termIdx := 0
	if w.Term != nil {
		termIdx = w.Term.TermIndex
		if w.Term.Year != nil {
			year = w.Term.Year.CalendarYear()
		}
	}

	span := fmt.Sprintf("Week %d", first.WeekIndex)
	if last.WeekIndex != first.WeekIndex {
		span = fmt.Sprintf("Weeks %d-%d", first.WeekIndex, last.WeekIndex)
	}
	out := fmt.Sprintf("Week %d Term %d %d %s", first.WeekIndex, termIdx, year, span)
	if first.Anchored() && last.Anchored() {
		out += fmt.Sprintf(" (%s - %s)",
			first.WeekMondayDate.Format("02/01"),
			last.WeekSundayDate.Format("02/01/2006"))
	}
	return out
}

// weekSpan is the "3-4" form used in invoice metadata.
func weekSpan(w Window) string {
	if w.Empty() {
		return ""
	}
	a, b := w.Weeks[0].WeekIndex, w.Weeks[len(w.Weeks)-1].WeekIndex
	if a == b {
		return fmt.Sprintf("%d", a)
	}
	return fmt.Sprintf("%d-%d", a, b)
}
