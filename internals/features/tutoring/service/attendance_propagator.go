package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tutoring_backend/internals/features/tutoring/model"
	"tutoring_backend/internals/helpers/apperror"
)

// CreateLessonWithAttendance inserts the lesson keyed on (group, week) and, when it
// is new, materialises one blank attendance per student on the group's roster.
// An existing lesson is loaded into lesson and nothing else changes. Callers own tx.
func CreateLessonWithAttendance(tx *gorm.DB, lesson *model.LessonModel) (created bool, attendances int, err error) {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(lesson)
	if res.Error != nil {
		return false, 0, res.Error
	}
	if res.RowsAffected == 0 {
		if lesson.LessonWeekID == nil {
			return false, 0, fmt.Errorf("lesson %s was not inserted", lesson.LessonID)
		}
		// lesson already carries the id BeforeCreate generated; look up into a fresh value
		var existing model.LessonModel
		if err := tx.Where("lesson_group_id = ? AND lesson_week_id = ?", lesson.LessonGroupID, *lesson.LessonWeekID).
			First(&existing).Error; err != nil {
			return false, 0, err
		}
		*lesson = existing
		return false, 0, nil
	}

	n, err := materializeAttendance(tx, lesson.LessonID, lesson.LessonGroupID)
	if err != nil {
		return true, 0, err
	}
	return true, n, nil
}

// materializeAttendance: roster snapshot at lesson creation; idempotent per (lesson, student)
func materializeAttendance(tx *gorm.DB, lessonID, groupID uuid.UUID) (int, error) {
	var studentIDs []uuid.UUID
	if err := tx.Model(&model.EnrolmentModel{}).
		Where("enrolment_group_id = ?", groupID).
		Order("enrolment_student_id").
		Pluck("enrolment_student_id", &studentIDs).Error; err != nil {
		return 0, err
	}
	if len(studentIDs) == 0 {
		return 0, nil
	}

	rows := make([]model.AttendanceModel, 0, len(studentIDs))
	for _, sid := range studentIDs {
		rows = append(rows, model.AttendanceModel{
			AttendanceLessonID:  lessonID,
			AttendanceStudentID: sid,
		})
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// EnsureStudentAttendance is get-or-create on (lesson, student).
func EnsureStudentAttendance(tx *gorm.DB, lessonID, studentID uuid.UUID) (bool, error) {
	row := model.AttendanceModel{
		AttendanceLessonID:  lessonID,
		AttendanceStudentID: studentID,
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

/* =========================
   Roll taking
========================= */

type AttendancePatch struct {
	Present      *bool
	HomeworkDone *bool
}

type AttendanceService struct {
	DB *gorm.DB
}

func NewAttendanceService(db *gorm.DB) *AttendanceService {
	return &AttendanceService{DB: db}
}

// CreateLesson is the manual path: one lesson plus its attendance, atomically.
func (s *AttendanceService) CreateLesson(ctx context.Context, lesson *model.LessonModel) (int, error) {
	var n int
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cnt int64
		if err := tx.Model(&model.GroupModel{}).Where("group_id = ?", lesson.LessonGroupID).Count(&cnt).Error; err != nil {
			return err
		}
		if cnt == 0 {
			return apperror.NotFound("group %s", lesson.LessonGroupID)
		}
		var err error
		_, n, err = CreateLessonWithAttendance(tx, lesson)
		return err
	})
	return n, err
}

func (s *AttendanceService) Mark(ctx context.Context, attendanceID uuid.UUID, p AttendancePatch) (*model.AttendanceModel, error) {
	var row model.AttendanceModel
	if err := s.DB.WithContext(ctx).First(&row, "attendance_id = ?", attendanceID).Error; err != nil {
		return nil, apperror.FromDB(err, fmt.Sprintf("attendance %s", attendanceID))
	}
	updates := map[string]any{}
	if p.Present != nil {
		updates["attendance_present"] = *p.Present
	}
	if p.HomeworkDone != nil {
		updates["attendance_homework_done"] = *p.HomeworkDone
	}
	if len(updates) == 0 {
		return &row, nil
	}
	if err := s.DB.WithContext(ctx).Model(&row).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *AttendanceService) ListForLesson(ctx context.Context, lessonID uuid.UUID) ([]model.AttendanceModel, error) {
	var rows []model.AttendanceModel
	err := s.DB.WithContext(ctx).
		Where("attendance_lesson_id = ?", lessonID).
		Order("attendance_created_at ASC").
		Find(&rows).Error
	return rows, err
}

/* =========================
   Lessons
========================= */

type LessonFilter struct {
	GroupID *uuid.UUID
	WeekID  *uuid.UUID
}

func (s *AttendanceService) GetLesson(ctx context.Context, id uuid.UUID) (*model.LessonModel, error) {
	var l model.LessonModel
	if err := s.DB.WithContext(ctx).First(&l, "lesson_id = ?", id).Error; err != nil {
		return nil, apperror.FromDB(err, fmt.Sprintf("lesson %s", id))
	}
	return &l, nil
}

// ListLessons pages lessons by start time.
func (s *AttendanceService) ListLessons(ctx context.Context, f LessonFilter, limit, offset int) ([]model.LessonModel, int64, error) {
	q := s.DB.WithContext(ctx).Model(&model.LessonModel{})
	if f.GroupID != nil {
		q = q.Where("lesson_group_id = ?", *f.GroupID)
	}
	if f.WeekID != nil {
		q = q.Where("lesson_week_id = ?", *f.WeekID)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []model.LessonModel
	err := q.Order("lesson_start_at ASC").Order("lesson_id ASC").Limit(limit).Offset(offset).Find(&out).Error
	return out, total, err
}

type LessonPatch struct {
	StartAt *time.Time
	Notes   *string
}

// UpdateLesson moves a lesson or edits its notes. Group and week stay fixed,
// they are the lesson's natural key.
func (s *AttendanceService) UpdateLesson(ctx context.Context, id uuid.UUID, p LessonPatch) (*model.LessonModel, error) {
	l, err := s.GetLesson(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if p.StartAt != nil {
		if p.StartAt.IsZero() {
			return nil, apperror.Validation("lesson start is required")
		}
		updates["lesson_start_at"] = *p.StartAt
	}
	if p.Notes != nil {
		updates["lesson_notes"] = *p.Notes
	}
	if len(updates) == 0 {
		return l, nil
	}
	if err := s.DB.WithContext(ctx).Model(l).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetLesson(ctx, id)
}

// DeleteLesson drops the lesson and its attendance unless any of it is
// already invoiced or paid.
func (s *AttendanceService) DeleteLesson(ctx context.Context, id uuid.UUID) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var l model.LessonModel
		if err := tx.First(&l, "lesson_id = ?", id).Error; err != nil {
			return apperror.FromDB(err, fmt.Sprintf("lesson %s", id))
		}
		var billed int64
		if err := tx.Model(&model.AttendanceModel{}).
			Where("attendance_lesson_id = ? AND (attendance_paid = ? OR attendance_local_invoice_id IS NOT NULL)", id, true).
			Count(&billed).Error; err != nil {
			return err
		}
		if billed > 0 {
			return apperror.Conflict("lesson %s has %d billed attendance(s)", id, billed)
		}
		if err := tx.Where("attendance_lesson_id = ?", id).Delete(&model.AttendanceModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&l).Error
	})
}

/* =========================
   Attendance listing / bulk
========================= */

type AttendanceFilter struct {
	LessonID  *uuid.UUID
	StudentID *uuid.UUID
	WeekID    *uuid.UUID
}

func (s *AttendanceService) ListAttendances(ctx context.Context, f AttendanceFilter, limit, offset int) ([]model.AttendanceModel, int64, error) {
	q := s.DB.WithContext(ctx).Model(&model.AttendanceModel{})
	if f.LessonID != nil {
		q = q.Where("attendances.attendance_lesson_id = ?", *f.LessonID)
	}
	if f.StudentID != nil {
		q = q.Where("attendances.attendance_student_id = ?", *f.StudentID)
	}
	if f.WeekID != nil {
		q = q.Joins("JOIN lessons ON lessons.lesson_id = attendances.attendance_lesson_id").
			Where("lessons.lesson_week_id = ?", *f.WeekID)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []model.AttendanceModel
	err := q.Order("attendances.attendance_created_at ASC").Order("attendances.attendance_id ASC").
		Limit(limit).Offset(offset).Find(&out).Error
	return out, total, err
}

type BulkAttendance struct {
	LessonID     uuid.UUID
	StudentID    uuid.UUID
	Present      *bool
	HomeworkDone *bool
}

// BulkAdd get-or-creates every (lesson, student) row and applies the given
// flags, all or nothing. Returns the rows in input order and how many were new.
func (s *AttendanceService) BulkAdd(ctx context.Context, items []BulkAttendance) ([]model.AttendanceModel, int, error) {
	if len(items) == 0 {
		return nil, 0, apperror.Validation("no attendances given")
	}
	out := make([]model.AttendanceModel, 0, len(items))
	created := 0
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lessons := map[uuid.UUID]bool{}
		students := map[uuid.UUID]bool{}
		for i, it := range items {
			if !lessons[it.LessonID] {
				if err := tx.Select("lesson_id").First(&model.LessonModel{}, "lesson_id = ?", it.LessonID).Error; err != nil {
					return apperror.FromDB(err, fmt.Sprintf("item %d: lesson %s", i, it.LessonID))
				}
				lessons[it.LessonID] = true
			}
			if !students[it.StudentID] {
				if err := tx.Select("student_id").First(&model.StudentModel{}, "student_id = ?", it.StudentID).Error; err != nil {
					return apperror.FromDB(err, fmt.Sprintf("item %d: student %s", i, it.StudentID))
				}
				students[it.StudentID] = true
			}

			isNew, err := EnsureStudentAttendance(tx, it.LessonID, it.StudentID)
			if err != nil {
				return err
			}
			if isNew {
				created++
			}
			var row model.AttendanceModel
			if err := tx.Where("attendance_lesson_id = ? AND attendance_student_id = ?", it.LessonID, it.StudentID).
				First(&row).Error; err != nil {
				return err
			}
			updates := map[string]any{}
			if it.Present != nil {
				updates["attendance_present"] = *it.Present
			}
			if it.HomeworkDone != nil {
				updates["attendance_homework_done"] = *it.HomeworkDone
			}
			if len(updates) > 0 {
				if err := tx.Model(&row).Updates(updates).Error; err != nil {
					return err
				}
			}
			out = append(out, row)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return out, created, nil
}
