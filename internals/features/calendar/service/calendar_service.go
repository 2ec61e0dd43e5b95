package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tutoring_backend/internals/features/calendar/model"
	"tutoring_backend/internals/helpers/apperror"
	"tutoring_backend/internals/helpers/dbtime"
)

type Service struct {
	DB *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

/* =========================
   Years
========================= */

func (s *Service) CreateYear(ctx context.Context, index int) (*model.YearModel, error) {
	if index < 0 {
		return nil, apperror.Validation("year index must be >= 0, got %d", index)
	}
	var cnt int64
	if err := s.DB.WithContext(ctx).Model(&model.YearModel{}).
		Where("year_index = ?", index).Count(&cnt).Error; err != nil {
		return nil, err
	}
	if cnt > 0 {
		return nil, fmt.Errorf("%w: year %d already exists", apperror.ErrDuplicateIndex, index)
	}

	y := model.YearModel{YearIndex: index}
	if err := s.DB.WithContext(ctx).Create(&y).Error; err != nil {
		if apperror.IsDuplicate(err) {
			return nil, fmt.Errorf("%w: year %d already exists", apperror.ErrDuplicateIndex, index)
		}
		return nil, err
	}
	return &y, nil
}

func (s *Service) GetYearByIndex(ctx context.Context, index int) (*model.YearModel, error) {
	var y model.YearModel
	err := s.DB.WithContext(ctx).Where("year_index = ?", index).First(&y).Error
	if err != nil {
		return nil, apperror.FromDB(err, fmt.Sprintf("year %d", index))
	}
	return &y, nil
}

/* =========================
   Terms
========================= */

type CreateTermInput struct {
	YearIndex      int
	Index          int
	PreviousTermID *uuid.UUID
}

// CreateTerm creates the term and its ten weeks in one transaction.
func (s *Service) CreateTerm(ctx context.Context, in CreateTermInput) (*model.TermModel, error) {
	if in.Index < 1 {
		return nil, apperror.Validation("term index must be >= 1, got %d", in.Index)
	}
	year, err := s.GetYearByIndex(ctx, in.YearIndex)
	if err != nil {
		return nil, err
	}
	if in.PreviousTermID != nil {
		if _, err := s.GetTerm(ctx, *in.PreviousTermID); err != nil {
			return nil, err
		}
	}

	dup := fmt.Errorf("%w: term %d in year %d already exists", apperror.ErrDuplicateIndex, in.Index, in.YearIndex)
	term := model.TermModel{
		TermYearID:         year.YearID,
		TermIndex:          in.Index,
		TermPreviousTermID: in.PreviousTermID,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cnt int64
		if err := tx.Model(&model.TermModel{}).
			Where("term_year_id = ? AND term_index = ?", year.YearID, in.Index).
			Count(&cnt).Error; err != nil {
			return err
		}
		if cnt > 0 {
			return dup
		}
		if err := tx.Omit("Year", "Weeks").Create(&term).Error; err != nil {
			return err
		}
		weeks := make([]model.WeekModel, 0, model.WeeksPerTerm)
		for i := 1; i <= model.WeeksPerTerm; i++ {
			weeks = append(weeks, model.WeekModel{WeekTermID: term.TermID, WeekIndex: i})
		}
		return tx.Create(&weeks).Error
	})
	if err != nil {
		if apperror.IsDuplicate(err) {
			return nil, dup
		}
		return nil, err
	}
	term.Year = year
	return &term, nil
}

func (s *Service) GetTerm(ctx context.Context, termID uuid.UUID) (*model.TermModel, error) {
	var t model.TermModel
	err := s.DB.WithContext(ctx).Preload("Year").First(&t, "term_id = ?", termID).Error
	if err != nil {
		return nil, apperror.FromDB(err, fmt.Sprintf("term %s", termID))
	}
	return &t, nil
}

// ListTerms is ordered by year index then term index.
func (s *Service) ListTerms(ctx context.Context) ([]model.TermModel, error) {
	var terms []model.TermModel
	if err := s.DB.WithContext(ctx).Preload("Year").Find(&terms).Error; err != nil {
		return nil, err
	}
	sort.SliceStable(terms, func(i, j int) bool {
		yi, yj := yearIndexOf(terms[i]), yearIndexOf(terms[j])
		if yi != yj {
			return yi < yj
		}
		return terms[i].TermIndex < terms[j].TermIndex
	})
	return terms, nil
}

// LatestTerm is the last term in calendar order.
func (s *Service) LatestTerm(ctx context.Context) (*model.TermModel, error) {
	terms, err := s.ListTerms(ctx)
	if err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return nil, apperror.NotFound("no terms exist")
	}
	t := terms[len(terms)-1]
	return &t, nil
}

var termCodeRe = regexp.MustCompile(`(?i)^(\d{2})T(\d)$`)

// ParseTermCode parses codes like "24T3" into (24, 3).
func ParseTermCode(code string) (year int, term int, err error) {
	m := termCodeRe.FindStringSubmatch(strings.TrimSpace(code))
	if m == nil {
		return 0, 0, apperror.Validation("invalid term format %q, expected format like '24T3'", code)
	}
	year, _ = strconv.Atoi(m[1])
	term, _ = strconv.Atoi(m[2])
	return year, term, nil
}

func (s *Service) FindTermByCode(ctx context.Context, code string) (*model.TermModel, error) {
	yearIdx, termIdx, err := ParseTermCode(code)
	if err != nil {
		return nil, err
	}
	year, err := s.GetYearByIndex(ctx, yearIdx)
	if err != nil {
		return nil, err
	}
	var t model.TermModel
	err = s.DB.WithContext(ctx).
		Where("term_year_id = ? AND term_index = ?", year.YearID, termIdx).
		First(&t).Error
	if err != nil {
		return nil, apperror.FromDB(err, fmt.Sprintf("term %s", code))
	}
	t.Year = year
	return &t, nil
}

/* =========================
   Weeks
========================= */

// ListWeeks returns the term's weeks ordered by index.
func (s *Service) ListWeeks(ctx context.Context, termID uuid.UUID) ([]model.WeekModel, error) {
	var weeks []model.WeekModel
	err := s.DB.WithContext(ctx).
		Where("week_term_id = ?", termID).
		Order("week_index ASC").
		Find(&weeks).Error
	return weeks, err
}

// AnchorTerm assigns date ranges to every week starting at firstMonday.
func (s *Service) AnchorTerm(ctx context.Context, termID uuid.UUID, firstMonday time.Time) (int, error) {
	firstMonday = dbtime.Date(firstMonday.Year(), firstMonday.Month(), firstMonday.Day())
	if firstMonday.Weekday() != time.Monday {
		return 0, fmt.Errorf("%w: %s is a %s", apperror.ErrInvalidAnchor,
			firstMonday.Format("2006-01-02"), firstMonday.Weekday())
	}
	if _, err := s.GetTerm(ctx, termID); err != nil {
		return 0, err
	}

	count := 0
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var weeks []model.WeekModel
		if err := tx.Where("week_term_id = ?", termID).Order("week_index ASC").Find(&weeks).Error; err != nil {
			return err
		}
		for i := range weeks {
			monday := firstMonday.AddDate(0, 0, 7*(weeks[i].WeekIndex-1))
			sunday := monday.AddDate(0, 0, 6)
			if err := tx.Model(&weeks[i]).Updates(map[string]any{
				"week_monday_date": monday,
				"week_sunday_date": sunday,
			}).Error; err != nil {
				return err
			}
		}
		count = len(weeks)
		return nil
	})
	return count, err
}

// WeekContaining returns nil when no week of the term covers date. With
// overlapping manual edits the lowest index wins.
func (s *Service) WeekContaining(ctx context.Context, termID uuid.UUID, date time.Time) (*model.WeekModel, error) {
	weeks, err := s.ListWeeks(ctx, termID)
	if err != nil {
		return nil, err
	}
	return weekContaining(weeks, date), nil
}

func weekContaining(weeks []model.WeekModel, date time.Time) *model.WeekModel {
	for i := range weeks {
		if weeks[i].Contains(date) {
			return &weeks[i]
		}
	}
	return nil
}

// CurrentWeek is the first week, in index order, whose range has not fully
// elapsed on today. Before the term that is week 1; after the term it is nil.
func (s *Service) CurrentWeek(ctx context.Context, termID uuid.UUID, today time.Time) (*model.WeekModel, error) {
	weeks, err := s.ListWeeks(ctx, termID)
	if err != nil {
		return nil, err
	}
	return CurrentWeekOf(weeks, today), nil
}

// CurrentWeekOf expects weeks ordered by index; unanchored weeks are ignored.
func CurrentWeekOf(weeks []model.WeekModel, today time.Time) *model.WeekModel {
	for i := range weeks {
		if !weeks[i].Anchored() {
			continue
		}
		if !weeks[i].WeekSundayDate.Before(today) {
			return &weeks[i]
		}
	}
	return nil
}

// DeleteWeek removes the term's last week. Weeks that already carry lessons stay.
func (s *Service) DeleteWeek(ctx context.Context, termID uuid.UUID, index int) error {
	weeks, err := s.ListWeeks(ctx, termID)
	if err != nil {
		return err
	}
	if len(weeks) == 0 {
		return apperror.NotFound("term %s has no weeks", termID)
	}
	last := weeks[len(weeks)-1]
	if last.WeekIndex != index {
		return apperror.Validation("only the trailing week %d can be deleted, got %d", last.WeekIndex, index)
	}

	var lessons int64
	if err := s.DB.WithContext(ctx).Table("lessons").
		Where("lesson_week_id = ?", last.WeekID).Count(&lessons).Error; err != nil {
		return err
	}
	if lessons > 0 {
		return apperror.Conflict("week %d has %d lessons", index, lessons)
	}
	return s.DB.WithContext(ctx).Delete(&model.WeekModel{}, "week_id = ?", last.WeekID).Error
}

func (s *Service) GetWeek(ctx context.Context, weekID uuid.UUID) (*model.WeekModel, error) {
	var w model.WeekModel
	if err := s.DB.WithContext(ctx).First(&w, "week_id = ?", weekID).Error; err != nil {
		return nil, apperror.FromDB(err, fmt.Sprintf("week %s", weekID))
	}
	return &w, nil
}

func yearIndexOf(t model.TermModel) int {
	if t.Year == nil {
		return 0
	}
	return t.Year.YearIndex
}
