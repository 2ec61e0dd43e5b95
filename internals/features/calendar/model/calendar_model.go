package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WeeksPerTerm is how many weeks a new term starts with.
const WeeksPerTerm = 10

/* =========================
   Year
========================= */

type YearModel struct {
	YearID    uuid.UUID `gorm:"type:uuid;primaryKey;column:year_id" json:"year_id"`
	YearIndex int       `gorm:"not null;uniqueIndex:uq_years_index;column:year_index" json:"year_index"`

	YearCreatedAt time.Time `gorm:"not null;autoCreateTime;column:year_created_at" json:"year_created_at"`
}

func (YearModel) TableName() string { return "years" }

func (m *YearModel) BeforeCreate(tx *gorm.DB) error {
	if m.YearID == uuid.Nil {
		m.YearID = uuid.New()
	}
	return nil
}

// CalendarYear maps two-digit indices onto 20xx.
func (m YearModel) CalendarYear() int {
	if m.YearIndex < 100 {
		return 2000 + m.YearIndex
	}
	return m.YearIndex
}

/* =========================
   Term
========================= */

type TermModel struct {
	TermID     uuid.UUID `gorm:"type:uuid;primaryKey;column:term_id" json:"term_id"`
	TermYearID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_terms_year_index,priority:1;column:term_year_id" json:"term_year_id"`
	TermIndex  int       `gorm:"not null;uniqueIndex:uq_terms_year_index,priority:2;column:term_index" json:"term_index"`

	// analytics only, not a chain
	TermPreviousTermID *uuid.UUID `gorm:"type:uuid;column:term_previous_term_id" json:"term_previous_term_id,omitempty"`

	TermCreatedAt time.Time `gorm:"not null;autoCreateTime;column:term_created_at" json:"term_created_at"`
	TermUpdatedAt time.Time `gorm:"not null;autoUpdateTime;column:term_updated_at" json:"term_updated_at"`

	Year  *YearModel  `gorm:"foreignKey:TermYearID;references:YearID" json:"year,omitempty"`
	Weeks []WeekModel `gorm:"foreignKey:WeekTermID;references:TermID" json:"weeks,omitempty"`
}

func (TermModel) TableName() string { return "terms" }

func (m *TermModel) BeforeCreate(tx *gorm.DB) error {
	if m.TermID == uuid.Nil {
		m.TermID = uuid.New()
	}
	return nil
}

// Code is the operator form, e.g. "24T3". Year must be loaded.
func (m TermModel) Code() string {
	if m.Year == nil {
		return fmt.Sprintf("T%d", m.TermIndex)
	}
	return fmt.Sprintf("%02dT%d", m.Year.YearIndex%100, m.TermIndex)
}

func (m *TermModel) BeforeSave(tx *gorm.DB) error {
	if m.TermIndex < 1 {
		return errors.New("term_index must be >= 1")
	}
	return nil
}

/* =========================
   Week
========================= */

type WeekModel struct {
	WeekID     uuid.UUID `gorm:"type:uuid;primaryKey;column:week_id" json:"week_id"`
	WeekTermID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_weeks_term_index,priority:1;column:week_term_id" json:"week_term_id"`
	WeekIndex  int       `gorm:"not null;uniqueIndex:uq_weeks_term_index,priority:2;column:week_index" json:"week_index"`

	// civil dates, midnight UTC
	WeekMondayDate *time.Time `gorm:"type:date;column:week_monday_date" json:"week_monday_date,omitempty"`
	WeekSundayDate *time.Time `gorm:"type:date;column:week_sunday_date" json:"week_sunday_date,omitempty"`
}

func (WeekModel) TableName() string { return "weeks" }

func (m *WeekModel) BeforeCreate(tx *gorm.DB) error {
	if m.WeekID == uuid.Nil {
		m.WeekID = uuid.New()
	}
	return nil
}

func (m *WeekModel) BeforeSave(tx *gorm.DB) error {
	if (m.WeekMondayDate == nil) != (m.WeekSundayDate == nil) {
		return errors.New("week_monday_date and week_sunday_date must be set together")
	}
	if m.WeekMondayDate != nil && m.WeekSundayDate.Before(*m.WeekMondayDate) {
		return errors.New("week_sunday_date must be >= week_monday_date")
	}
	return nil
}

// Anchored reports whether the week carries a date range.
func (m WeekModel) Anchored() bool {
	return m.WeekMondayDate != nil && m.WeekSundayDate != nil
}

// Contains is inclusive on both ends.
func (m WeekModel) Contains(date time.Time) bool {
	if !m.Anchored() {
		return false
	}
	return !date.Before(*m.WeekMondayDate) && !date.After(*m.WeekSundayDate)
}
