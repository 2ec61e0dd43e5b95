package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutoring_backend/internals/databases/dbtest"
	"tutoring_backend/internals/helpers/apperror"
	"tutoring_backend/internals/helpers/dbtime"
)

func newTerm(t *testing.T, svc *Service, year, index int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.GetYearByIndex(ctx, year); err != nil {
		_, err = svc.CreateYear(ctx, year)
		require.NoError(t, err)
	}
	term, err := svc.CreateTerm(ctx, CreateTermInput{YearIndex: year, Index: index})
	require.NoError(t, err)
	return term.TermID
}

func TestCreateTermMaterializesTenWeeks(t *testing.T) {
	svc := NewService(dbtest.Open(t))
	termID := newTerm(t, svc, 25, 4)

	weeks, err := svc.ListWeeks(context.Background(), termID)
	require.NoError(t, err)
	require.Len(t, weeks, 10)
	for i, w := range weeks {
		assert.Equal(t, i+1, w.WeekIndex)
		assert.False(t, w.Anchored())
	}
}

func TestCreateTermRejectsDuplicateIndex(t *testing.T) {
	svc := NewService(dbtest.Open(t))
	newTerm(t, svc, 25, 1)

	_, err := svc.CreateTerm(context.Background(), CreateTermInput{YearIndex: 25, Index: 1})
	require.ErrorIs(t, err, apperror.ErrDuplicateIndex)
	assert.True(t, apperror.IsValidation(err))

	// same index in another year is fine
	newTerm(t, svc, 26, 1)
}

func TestCreateYearRejectsDuplicateIndex(t *testing.T) {
	svc := NewService(dbtest.Open(t))
	_, err := svc.CreateYear(context.Background(), 24)
	require.NoError(t, err)
	_, err = svc.CreateYear(context.Background(), 24)
	assert.ErrorIs(t, err, apperror.ErrDuplicateIndex)
}

func TestCreateTermUnknownYear(t *testing.T) {
	svc := NewService(dbtest.Open(t))
	_, err := svc.CreateTerm(context.Background(), CreateTermInput{YearIndex: 99, Index: 1})
	assert.True(t, apperror.IsNotFound(err))
}

func TestAnchorTermAssignsWeekRanges(t *testing.T) {
	svc := NewService(dbtest.Open(t))
	ctx := context.Background()
	termID := newTerm(t, svc, 24, 1)
	monday := dbtime.Date(2024, 3, 4)

	n, err := svc.AnchorTerm(ctx, termID, monday)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	weeks, err := svc.ListWeeks(ctx, termID)
	require.NoError(t, err)
	for _, w := range weeks {
		wantMonday := monday.AddDate(0, 0, 7*(w.WeekIndex-1))
		require.True(t, w.Anchored())
		assert.True(t, w.WeekMondayDate.Equal(wantMonday), "week %d monday", w.WeekIndex)
		assert.True(t, w.WeekSundayDate.Equal(wantMonday.AddDate(0, 0, 6)), "week %d sunday", w.WeekIndex)
	}

	// idempotent
	_, err = svc.AnchorTerm(ctx, termID, monday)
	require.NoError(t, err)
	again, err := svc.ListWeeks(ctx, termID)
	require.NoError(t, err)
	for i := range weeks {
		assert.True(t, weeks[i].WeekMondayDate.Equal(*again[i].WeekMondayDate))
	}
}

func TestAnchorTermRejectsNonMonday(t *testing.T) {
	svc := NewService(dbtest.Open(t))
	ctx := context.Background()
	termID := newTerm(t, svc, 24, 1)

	_, err := svc.AnchorTerm(ctx, termID, dbtime.Date(2024, 3, 5))
	require.ErrorIs(t, err, apperror.ErrInvalidAnchor)
	assert.Contains(t, err.Error(), "not a Monday")

	weeks, err := svc.ListWeeks(ctx, termID)
	require.NoError(t, err)
	for _, w := range weeks {
		assert.False(t, w.Anchored())
	}
}

func TestAnchorTermUnknownTerm(t *testing.T) {
	svc := NewService(dbtest.Open(t))
	_, err := svc.AnchorTerm(context.Background(), uuid.New(), dbtime.Date(2024, 3, 4))
	assert.True(t, apperror.IsNotFound(err))
}

func TestWeekContainingAndCurrentWeek(t *testing.T) {
	svc := NewService(dbtest.Open(t))
	ctx := context.Background()
	termID := newTerm(t, svc, 24, 1)
	_, err := svc.AnchorTerm(ctx, termID, dbtime.Date(2024, 3, 4))
	require.NoError(t, err)

	w, err := svc.WeekContaining(ctx, termID, dbtime.Date(2024, 3, 31))
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 4, w.WeekIndex)

	w, err = svc.WeekContaining(ctx, termID, dbtime.Date(2024, 2, 1))
	require.NoError(t, err)
	assert.Nil(t, w)

	cases := []struct {
		name  string
		today string
		want  int // 0 means none
	}{
		{"before term", "2024-03-01", 1},
		{"first monday", "2024-03-04", 1},
		{"sunday of week 4", "2024-03-31", 4},
		{"monday of week 3", "2024-03-18", 3},
		{"last sunday", "2024-05-12", 10},
		{"after term", "2024-05-20", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			today, err := dbtime.ParseDate(tc.today)
			require.NoError(t, err)
			cur, err := svc.CurrentWeek(ctx, termID, today)
			require.NoError(t, err)
			if tc.want == 0 {
				assert.Nil(t, cur)
				return
			}
			require.NotNil(t, cur)
			assert.Equal(t, tc.want, cur.WeekIndex)
		})
	}
}

func TestParseTermCode(t *testing.T) {
	y, term, err := ParseTermCode("24T3")
	require.NoError(t, err)
	assert.Equal(t, 24, y)
	assert.Equal(t, 3, term)

	_, _, err = ParseTermCode("24t1")
	assert.NoError(t, err)

	for _, bad := range []string{"", "2024T3", "24T", "T3", "24X3"} {
		_, _, err := ParseTermCode(bad)
		assert.True(t, apperror.IsValidation(err), bad)
	}
}

func TestFindTermByCode(t *testing.T) {
	svc := NewService(dbtest.Open(t))
	ctx := context.Background()
	termID := newTerm(t, svc, 24, 3)

	got, err := svc.FindTermByCode(ctx, "24T3")
	require.NoError(t, err)
	assert.Equal(t, termID, got.TermID)

	_, err = svc.FindTermByCode(ctx, "24T4")
	assert.True(t, apperror.IsNotFound(err))
	_, err = svc.FindTermByCode(ctx, "23T3")
	assert.True(t, apperror.IsNotFound(err))
}

func TestLatestTermOrdersByYearThenIndex(t *testing.T) {
	svc := NewService(dbtest.Open(t))
	newTerm(t, svc, 25, 1)
	want := newTerm(t, svc, 25, 2)
	newTerm(t, svc, 24, 4)

	got, err := svc.LatestTerm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got.TermID)
}

func TestDeleteWeekOnlyTrailing(t *testing.T) {
	svc := NewService(dbtest.Open(t))
	ctx := context.Background()
	termID := newTerm(t, svc, 24, 1)

	assert.True(t, apperror.IsValidation(svc.DeleteWeek(ctx, termID, 5)))
	require.NoError(t, svc.DeleteWeek(ctx, termID, 10))
	require.NoError(t, svc.DeleteWeek(ctx, termID, 9))

	weeks, err := svc.ListWeeks(ctx, termID)
	require.NoError(t, err)
	assert.Len(t, weeks, 8)
}
