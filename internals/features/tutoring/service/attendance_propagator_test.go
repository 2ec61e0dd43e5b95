package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutoring_backend/internals/features/tutoring/model"
	"tutoring_backend/internals/helpers/apperror"
	"tutoring_backend/internals/helpers/dbtime"
)

func TestCreateLessonMaterializesRoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cust := f.customer(t, "cus_1")
	a := f.student(t, cust.CustomerID, "A")
	b := f.student(t, cust.CustomerID, "B")
	g := f.group(t, 0, "16:00")
	require.NoError(t, f.roster.Enrol(ctx, g.GroupID, a.StudentID))
	require.NoError(t, f.roster.Enrol(ctx, g.GroupID, b.StudentID))

	svc := NewAttendanceService(f.db)
	lesson := &model.LessonModel{LessonGroupID: g.GroupID, LessonStartAt: time.Now()}
	n, err := svc.CreateLesson(ctx, lesson)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := svc.ListForLesson(ctx, lesson.LessonID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestCreateLessonUnknownGroup(t *testing.T) {
	f := newFixture(t)
	_, err := NewAttendanceService(f.db).CreateLesson(context.Background(),
		&model.LessonModel{LessonGroupID: uuid.New(), LessonStartAt: time.Now()})
	assert.True(t, apperror.IsNotFound(err))
	assert.Zero(t, countRows(t, f.db, &model.LessonModel{}))
}

func TestEnsureStudentAttendanceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cust := f.customer(t, "cus_1")
	st := f.student(t, cust.CustomerID, "A")
	g := f.group(t, 0, "16:00")

	lesson := &model.LessonModel{LessonGroupID: g.GroupID, LessonStartAt: time.Now()}
	_, err := NewAttendanceService(f.db).CreateLesson(ctx, lesson)
	require.NoError(t, err)

	ok, err := EnsureStudentAttendance(f.db, lesson.LessonID, st.StudentID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = EnsureStudentAttendance(f.db, lesson.LessonID, st.StudentID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 1, countRows(t, f.db, &model.AttendanceModel{}))
}

func TestMarkAttendance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cust := f.customer(t, "cus_1")
	st := f.student(t, cust.CustomerID, "A")
	g := f.group(t, 0, "16:00")
	require.NoError(t, f.roster.Enrol(ctx, g.GroupID, st.StudentID))

	svc := NewAttendanceService(f.db)
	lesson := &model.LessonModel{LessonGroupID: g.GroupID, LessonStartAt: time.Now()}
	_, err := svc.CreateLesson(ctx, lesson)
	require.NoError(t, err)
	rows, err := svc.ListForLesson(ctx, lesson.LessonID)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	present := true
	got, err := svc.Mark(ctx, rows[0].AttendanceID, AttendancePatch{Present: &present})
	require.NoError(t, err)
	assert.True(t, got.AttendancePresent)
	assert.False(t, got.AttendanceHomeworkDone)

	var stored model.AttendanceModel
	require.NoError(t, f.db.First(&stored, "attendance_id = ?", rows[0].AttendanceID).Error)
	assert.True(t, stored.AttendancePresent)

	_, err = svc.Mark(ctx, uuid.New(), AttendancePatch{Present: &present})
	assert.True(t, apperror.IsNotFound(err))
}

func TestCreateLessonWithAttendanceLoadsExistingLesson(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	termID := f.term(t, 25, 1)
	weeks, err := f.cal.ListWeeks(ctx, termID)
	require.NoError(t, err)
	cust := f.customer(t, "cus_1")
	st := f.student(t, cust.CustomerID, "A")
	g := f.group(t, 0, "16:00")
	require.NoError(t, f.roster.Enrol(ctx, g.GroupID, st.StudentID))

	weekID := weeks[0].WeekID
	first := &model.LessonModel{LessonGroupID: g.GroupID, LessonWeekID: &weekID, LessonStartAt: time.Now()}
	created, n, err := CreateLessonWithAttendance(f.db, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, n)

	again := &model.LessonModel{LessonGroupID: g.GroupID, LessonWeekID: &weekID, LessonStartAt: time.Now()}
	created, n, err = CreateLessonWithAttendance(f.db, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Zero(t, n)
	assert.Equal(t, first.LessonID, again.LessonID)
	assert.EqualValues(t, 1, countRows(t, f.db, &model.LessonModel{}))
	assert.EqualValues(t, 1, countRows(t, f.db, &model.AttendanceModel{}))
}

func TestListLessonsByGroupAndWeek(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	termID := f.term(t, 25, 1)
	g := f.group(t, 0, "16:00")
	other := f.group(t, 2, "16:00")

	_, err := f.scheduler(time.Date(2025, 1, 20, 9, 0, 0, 0, f.loc)).ScheduleTerm(ctx, termID, dbtime.Date(2025, 2, 3))
	require.NoError(t, err)
	weeks, err := f.cal.ListWeeks(ctx, termID)
	require.NoError(t, err)

	svc := NewAttendanceService(f.db)
	rows, total, err := svc.ListLessons(ctx, LessonFilter{GroupID: &g.GroupID}, 3, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 10, total)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].LessonStartAt.Before(rows[1].LessonStartAt))

	rows, total, err = svc.ListLessons(ctx, LessonFilter{WeekID: &weeks[2].WeekID}, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, rows, 2)
	assert.Equal(t, g.GroupID, rows[0].LessonGroupID)
	assert.Equal(t, other.GroupID, rows[1].LessonGroupID)
}

func TestUpdateLesson(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.group(t, 0, "16:00")
	svc := NewAttendanceService(f.db)
	lesson := &model.LessonModel{LessonGroupID: g.GroupID, LessonStartAt: time.Date(2025, 2, 3, 5, 0, 0, 0, time.UTC)}
	_, err := svc.CreateLesson(ctx, lesson)
	require.NoError(t, err)

	moved := time.Date(2025, 2, 4, 6, 0, 0, 0, time.UTC)
	notes := "moved to Tuesday"
	got, err := svc.UpdateLesson(ctx, lesson.LessonID, LessonPatch{StartAt: &moved, Notes: &notes})
	require.NoError(t, err)
	assert.True(t, moved.Equal(got.LessonStartAt))
	require.NotNil(t, got.LessonNotes)
	assert.Equal(t, notes, *got.LessonNotes)
	assert.Equal(t, g.GroupID, got.LessonGroupID)

	var zero time.Time
	_, err = svc.UpdateLesson(ctx, lesson.LessonID, LessonPatch{StartAt: &zero})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.UpdateLesson(ctx, uuid.New(), LessonPatch{Notes: &notes})
	assert.True(t, apperror.IsNotFound(err))
}

func TestDeleteLessonKeepsBilledAttendance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cust := f.customer(t, "cus_1")
	st := f.student(t, cust.CustomerID, "A")
	g := f.group(t, 0, "16:00")
	require.NoError(t, f.roster.Enrol(ctx, g.GroupID, st.StudentID))
	svc := NewAttendanceService(f.db)

	free := &model.LessonModel{LessonGroupID: g.GroupID, LessonStartAt: time.Now()}
	_, err := svc.CreateLesson(ctx, free)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteLesson(ctx, free.LessonID))
	assert.Zero(t, countRows(t, f.db, &model.LessonModel{}))
	assert.Zero(t, countRows(t, f.db, &model.AttendanceModel{}))

	billed := &model.LessonModel{LessonGroupID: g.GroupID, LessonStartAt: time.Now()}
	_, err = svc.CreateLesson(ctx, billed)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.AttendanceModel{}).
		Where("attendance_lesson_id = ?", billed.LessonID).
		Update("attendance_paid", true).Error)

	err = svc.DeleteLesson(ctx, billed.LessonID)
	assert.True(t, apperror.IsConflict(err))
	assert.EqualValues(t, 1, countRows(t, f.db, &model.LessonModel{}))
	assert.EqualValues(t, 1, countRows(t, f.db, &model.AttendanceModel{}))

	assert.True(t, apperror.IsNotFound(svc.DeleteLesson(ctx, uuid.New())))
}

func TestListAttendancesFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	termID := f.term(t, 25, 1)
	cust := f.customer(t, "cus_1")
	a := f.student(t, cust.CustomerID, "A")
	b := f.student(t, cust.CustomerID, "B")
	g := f.group(t, 0, "16:00")
	require.NoError(t, f.roster.Enrol(ctx, g.GroupID, a.StudentID))
	require.NoError(t, f.roster.Enrol(ctx, g.GroupID, b.StudentID))

	_, err := f.scheduler(time.Date(2025, 1, 20, 9, 0, 0, 0, f.loc)).ScheduleTerm(ctx, termID, dbtime.Date(2025, 2, 3))
	require.NoError(t, err)
	weeks, err := f.cal.ListWeeks(ctx, termID)
	require.NoError(t, err)

	svc := NewAttendanceService(f.db)
	rows, total, err := svc.ListAttendances(ctx, AttendanceFilter{WeekID: &weeks[0].WeekID}, 50, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, rows, 2)

	rows, total, err = svc.ListAttendances(ctx, AttendanceFilter{StudentID: &a.StudentID}, 4, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 10, total)
	require.Len(t, rows, 4)
	for _, r := range rows {
		assert.Equal(t, a.StudentID, r.AttendanceStudentID)
	}

	rows, total, err = svc.ListAttendances(ctx, AttendanceFilter{StudentID: &b.StudentID, WeekID: &weeks[9].WeekID}, 50, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, b.StudentID, rows[0].AttendanceStudentID)
}

func TestBulkAddAttendance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cust := f.customer(t, "cus_1")
	enrolled := f.student(t, cust.CustomerID, "A")
	guest := f.student(t, cust.CustomerID, "B")
	g := f.group(t, 0, "16:00")
	require.NoError(t, f.roster.Enrol(ctx, g.GroupID, enrolled.StudentID))

	svc := NewAttendanceService(f.db)
	lesson := &model.LessonModel{LessonGroupID: g.GroupID, LessonStartAt: time.Now()}
	_, err := svc.CreateLesson(ctx, lesson)
	require.NoError(t, err)

	yes, no := true, false
	rows, created, err := svc.BulkAdd(ctx, []BulkAttendance{
		{LessonID: lesson.LessonID, StudentID: enrolled.StudentID, Present: &yes, HomeworkDone: &no},
		{LessonID: lesson.LessonID, StudentID: guest.StudentID, Present: &yes, HomeworkDone: &yes},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	require.Len(t, rows, 2)
	assert.Equal(t, enrolled.StudentID, rows[0].AttendanceStudentID)
	assert.Equal(t, guest.StudentID, rows[1].AttendanceStudentID)

	stored, err := svc.ListForLesson(ctx, lesson.LessonID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, r := range stored {
		assert.True(t, r.AttendancePresent)
		assert.Equal(t, r.AttendanceStudentID == guest.StudentID, r.AttendanceHomeworkDone)
	}

	// one bad item rolls back the whole batch
	late := f.student(t, cust.CustomerID, "C")
	_, _, err = svc.BulkAdd(ctx, []BulkAttendance{
		{LessonID: lesson.LessonID, StudentID: late.StudentID},
		{LessonID: uuid.New(), StudentID: late.StudentID},
	})
	assert.True(t, apperror.IsNotFound(err))
	assert.EqualValues(t, 2, countRows(t, f.db, &model.AttendanceModel{}))

	_, _, err = svc.BulkAdd(ctx, nil)
	assert.True(t, apperror.IsValidation(err))
}
