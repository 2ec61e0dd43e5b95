package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	calModel "tutoring_backend/internals/features/calendar/model"
	calService "tutoring_backend/internals/features/calendar/service"
	"tutoring_backend/internals/features/tutoring/model"
	"tutoring_backend/internals/helpers/apperror"
	"tutoring_backend/internals/helpers/dbtime"
)

// ScheduleResult counts what a scheduling run wrote.
type ScheduleResult struct {
	WeeksAnchored      int `json:"weeks_anchored"`
	LessonsCreated     int `json:"lessons_created"`
	LessonsExisting    int `json:"lessons_existing"`
	AttendancesCreated int `json:"attendances_created"`
	GroupsSkipped      int `json:"groups_skipped"`
}

type Scheduler struct {
	DB       *gorm.DB
	Calendar *calService.Service
	Clock    dbtime.Clock
	Loc      *time.Location
}

func NewScheduler(db *gorm.DB, clock dbtime.Clock, loc *time.Location) *Scheduler {
	if clock == nil {
		clock = dbtime.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		DB:       db,
		Calendar: calService.NewService(db),
		Clock:    clock,
		Loc:      loc,
	}
}

// ScheduleTerm anchors the term at firstMonday and creates one lesson per
// schedulable group per week, each with attendance for the group's roster.
// Re-running it for the same term writes nothing new.
func (s *Scheduler) ScheduleTerm(ctx context.Context, termID uuid.UUID, firstMonday time.Time) (ScheduleResult, error) {
	var res ScheduleResult

	n, err := s.Calendar.AnchorTerm(ctx, termID, firstMonday)
	if err != nil {
		return res, err
	}
	res.WeeksAnchored = n

	weeks, err := s.Calendar.ListWeeks(ctx, termID)
	if err != nil {
		return res, err
	}

	var groups []model.GroupModel
	if err := s.DB.WithContext(ctx).Order("group_created_at ASC").Find(&groups).Error; err != nil {
		return res, err
	}

	for _, g := range groups {
		if !g.Schedulable() {
			log.Printf("[WARN] schedule: group %s (%s) has no weekly slot, skipped", g.GroupID, g.Label())
			res.GroupsSkipped++
			continue
		}
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, w := range weeks {
				lesson := s.lessonFor(g, w)
				created, att, err := CreateLessonWithAttendance(tx, &lesson)
				if err != nil {
					return err
				}
				if created {
					res.LessonsCreated++
					res.AttendancesCreated += att
				} else {
					res.LessonsExisting++
				}
			}
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("schedule group %s: %w", g.GroupID, err)
		}
	}

	log.Printf("[INFO] schedule: term %s lessons=%d existing=%d attendances=%d skipped=%d",
		termID, res.LessonsCreated, res.LessonsExisting, res.AttendancesCreated, res.GroupsSkipped)
	return res, nil
}

// ScheduleTermForStudent is the mid-term enrolment path: from the current week
// on, the student's groups get their lessons created if missing and the student
// gets an attendance row for each of them.
func (s *Scheduler) ScheduleTermForStudent(ctx context.Context, termID uuid.UUID, firstMonday time.Time, studentID uuid.UUID) (ScheduleResult, error) {
	var res ScheduleResult

	var student model.StudentModel
	if err := s.DB.WithContext(ctx).First(&student, "student_id = ?", studentID).Error; err != nil {
		return res, apperror.FromDB(err, fmt.Sprintf("student %s", studentID))
	}

	n, err := s.Calendar.AnchorTerm(ctx, termID, firstMonday)
	if err != nil {
		return res, err
	}
	res.WeeksAnchored = n

	weeks, err := s.Calendar.ListWeeks(ctx, termID)
	if err != nil {
		return res, err
	}
	today := dbtime.Today(s.Clock, s.Loc)
	current := calService.CurrentWeekOf(weeks, today)
	if current == nil {
		log.Printf("[WARN] schedule: term %s is over on %s, nothing to schedule for student %s",
			termID, today.Format("2006-01-02"), studentID)
		return res, nil
	}

	groups, err := s.studentGroups(ctx, studentID)
	if err != nil {
		return res, err
	}

	for _, g := range groups {
		if !g.Schedulable() {
			log.Printf("[WARN] schedule: group %s (%s) has no weekly slot, skipped", g.GroupID, g.Label())
			res.GroupsSkipped++
			continue
		}
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, w := range weeks {
				if w.WeekIndex < current.WeekIndex {
					continue
				}
				lesson := s.lessonFor(g, w)
				created, att, err := CreateLessonWithAttendance(tx, &lesson)
				if err != nil {
					return err
				}
				if created {
					res.LessonsCreated++
					res.AttendancesCreated += att
					continue
				}
				res.LessonsExisting++
				ok, err := EnsureStudentAttendance(tx, lesson.LessonID, studentID)
				if err != nil {
					return err
				}
				if ok {
					res.AttendancesCreated++
				}
			}
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("schedule group %s for student %s: %w", g.GroupID, studentID, err)
		}
	}

	log.Printf("[INFO] schedule: student %s from week %d lessons=%d attendances=%d",
		studentID, current.WeekIndex, res.LessonsCreated, res.AttendancesCreated)
	return res, nil
}

// lessonFor places the group's slot inside week w, in the configured zone.
func (s *Scheduler) lessonFor(g model.GroupModel, w calModel.WeekModel) model.LessonModel {
	date := w.WeekMondayDate.AddDate(0, 0, *g.GroupDayOfWeek-dbtime.MondayIndexed(*w.WeekMondayDate))
	weekID := w.WeekID
	return model.LessonModel{
		LessonGroupID: g.GroupID,
		LessonWeekID:  &weekID,
		LessonStartAt: dbtime.At(date, *g.GroupTimeOfDay, s.Loc),
	}
}

func (s *Scheduler) studentGroups(ctx context.Context, studentID uuid.UUID) ([]model.GroupModel, error) {
	var groups []model.GroupModel
	err := s.DB.WithContext(ctx).
		Joins("JOIN group_enrolments ON group_enrolments.enrolment_group_id = tutoring_groups.group_id").
		Where("group_enrolments.enrolment_student_id = ?", studentID).
		Order("tutoring_groups.group_created_at ASC").
		Find(&groups).Error
	return groups, err
}
