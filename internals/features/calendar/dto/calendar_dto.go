package dto

import (
	"time"

	"github.com/google/uuid"

	"tutoring_backend/internals/features/calendar/model"
	"tutoring_backend/internals/helpers/dbtime"
)

/* ===================== REQUESTS ===================== */

type CreateYearRequest struct {
	YearIndex int `json:"year_index" validate:"required,min=1,max=9999"`
}

type CreateTermRequest struct {
	YearIndex      int        `json:"year_index" validate:"required,min=1"`
	TermIndex      int        `json:"term_index" validate:"required,min=1,max=9"`
	PreviousTermID *uuid.UUID `json:"previous_term_id" validate:"omitempty"`
}

// AnchorTermRequest carries a civil date, "2006-01-02".
type AnchorTermRequest struct {
	FirstMonday string `json:"first_monday" validate:"required,datetime=2006-01-02"`
}

/* ===================== RESPONSES ===================== */

type YearResponse struct {
	YearID    uuid.UUID `json:"year_id"`
	YearIndex int       `json:"year_index"`
}

func NewYearResponse(m *model.YearModel) YearResponse {
	return YearResponse{YearID: m.YearID, YearIndex: m.YearIndex}
}

type WeekResponse struct {
	WeekID     uuid.UUID `json:"week_id"`
	WeekIndex  int       `json:"week_index"`
	MondayDate *string   `json:"monday_date"`
	SundayDate *string   `json:"sunday_date"`
}

func NewWeekResponse(m model.WeekModel) WeekResponse {
	return WeekResponse{
		WeekID:     m.WeekID,
		WeekIndex:  m.WeekIndex,
		MondayDate: civil(m.WeekMondayDate),
		SundayDate: civil(m.WeekSundayDate),
	}
}

func NewWeekResponses(rows []model.WeekModel) []WeekResponse {
	out := make([]WeekResponse, 0, len(rows))
	for _, w := range rows {
		out = append(out, NewWeekResponse(w))
	}
	return out
}

type TermResponse struct {
	TermID         uuid.UUID      `json:"term_id"`
	TermCode       string         `json:"term_code"`
	TermIndex      int            `json:"term_index"`
	YearIndex      int            `json:"year_index,omitempty"`
	PreviousTermID *uuid.UUID     `json:"previous_term_id,omitempty"`
	Weeks          []WeekResponse `json:"weeks,omitempty"`
}

func NewTermResponse(m *model.TermModel) TermResponse {
	r := TermResponse{
		TermID:         m.TermID,
		TermCode:       m.Code(),
		TermIndex:      m.TermIndex,
		PreviousTermID: m.TermPreviousTermID,
	}
	if m.Year != nil {
		r.YearIndex = m.Year.YearIndex
	}
	if len(m.Weeks) > 0 {
		r.Weeks = NewWeekResponses(m.Weeks)
	}
	return r
}

func civil(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dbtime.DateLayout)
	return &s
}
