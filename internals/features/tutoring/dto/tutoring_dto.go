package dto

import (
	"time"

	"github.com/google/uuid"

	"tutoring_backend/internals/features/tutoring/model"
	"tutoring_backend/internals/features/tutoring/service"
	"tutoring_backend/internals/helpers/dbtime"
)

/* ===================== SCHEDULING ===================== */

type ScheduleTermRequest struct {
	FirstMonday string `json:"first_monday" validate:"required,datetime=2006-01-02"`
}

/* ===================== ROSTER ===================== */

type UpsertCustomerRequest struct {
	CustomerLedgerID string `json:"customer_ledger_id" validate:"required,max=100"`
	CustomerName     string `json:"customer_name" validate:"required,max=100"`
	CustomerIsActive *bool  `json:"customer_is_active"`
	CustomerCadence  string `json:"customer_cadence" validate:"omitempty,oneof=weekly fortnightly half-termly termly"`
}

func (r *UpsertCustomerRequest) ToModel() *model.CustomerModel {
	active := true
	if r.CustomerIsActive != nil {
		active = *r.CustomerIsActive
	}
	return &model.CustomerModel{
		CustomerLedgerID: r.CustomerLedgerID,
		CustomerName:     r.CustomerName,
		CustomerIsActive: active,
		CustomerCadence:  model.Cadence(r.CustomerCadence),
	}
}

type SetCadenceRequest struct {
	CustomerCadence string `json:"customer_cadence" validate:"required"`
}

type CreateStudentRequest struct {
	StudentCustomerID uuid.UUID `json:"student_customer_id" validate:"required"`
	StudentName       string    `json:"student_name" validate:"required,max=100"`
	StudentStartDate  string    `json:"student_start_date" validate:"omitempty,datetime=2006-01-02"`
	StudentIsActive   *bool     `json:"student_is_active"`
}

func (r *CreateStudentRequest) ToModel() (*model.StudentModel, error) {
	m := &model.StudentModel{
		StudentCustomerID: r.StudentCustomerID,
		StudentName:       r.StudentName,
		StudentIsActive:   r.StudentIsActive == nil || *r.StudentIsActive,
	}
	if r.StudentStartDate != "" {
		d, err := dbtime.ParseDate(r.StudentStartDate)
		if err != nil {
			return nil, err
		}
		m.StudentStartDate = d
	}
	return m, nil
}

type CreateGroupRequest struct {
	GroupTutor        string     `json:"group_tutor" validate:"required,max=50"`
	GroupCourse       *string    `json:"group_course" validate:"omitempty,max=20"`
	GroupDayOfWeek    *int       `json:"group_day_of_week" validate:"omitempty,min=0,max=6"`
	GroupTimeOfDay    *string    `json:"group_time_of_day" validate:"omitempty"`
	GroupLessonLength int        `json:"group_lesson_length" validate:"min=0,max=12"`
	GroupProductID    *uuid.UUID `json:"group_product_id"`
}

func (r *CreateGroupRequest) ToModel() (*model.GroupModel, error) {
	m := &model.GroupModel{
		GroupTutor:        r.GroupTutor,
		GroupDayOfWeek:    r.GroupDayOfWeek,
		GroupLessonLength: r.GroupLessonLength,
		GroupProductID:    r.GroupProductID,
	}
	if r.GroupCourse != nil {
		c := model.Course(*r.GroupCourse)
		m.GroupCourse = &c
	}
	if r.GroupTimeOfDay != nil {
		tod, err := dbtime.Parse(*r.GroupTimeOfDay)
		if err != nil {
			return nil, err
		}
		m.GroupTimeOfDay = &tod
	}
	return m, nil
}

type UpdateGroupRequest struct {
	GroupTutor        *string    `json:"group_tutor" validate:"omitempty,max=50"`
	GroupCourse       *string    `json:"group_course" validate:"omitempty,max=20"`
	GroupDayOfWeek    *int       `json:"group_day_of_week" validate:"omitempty,min=0,max=6"`
	GroupTimeOfDay    *string    `json:"group_time_of_day"`
	GroupLessonLength *int       `json:"group_lesson_length" validate:"omitempty,min=0,max=12"`
	GroupProductID    *uuid.UUID `json:"group_product_id"`
}

func (r *UpdateGroupRequest) ToPatch() (service.GroupPatch, error) {
	p := service.GroupPatch{
		Tutor:        r.GroupTutor,
		DayOfWeek:    r.GroupDayOfWeek,
		LessonLength: r.GroupLessonLength,
		ProductID:    r.GroupProductID,
	}
	if r.GroupCourse != nil {
		c := model.Course(*r.GroupCourse)
		p.Course = &c
	}
	if r.GroupTimeOfDay != nil {
		tod, err := dbtime.Parse(*r.GroupTimeOfDay)
		if err != nil {
			return p, err
		}
		p.TimeOfDay = &tod
	}
	return p, nil
}

type GroupDetailResponse struct {
	model.GroupModel
	Students []model.StudentModel `json:"students"`
}

type StudentDetailResponse struct {
	model.StudentModel
	Groups []model.GroupModel `json:"groups"`
}

/* ===================== LESSONS / ROLL ===================== */

type CreateLessonRequest struct {
	LessonGroupID uuid.UUID  `json:"lesson_group_id" validate:"required"`
	LessonWeekID  *uuid.UUID `json:"lesson_week_id"`
	LessonStartAt time.Time  `json:"lesson_start_at" validate:"required"`
	LessonNotes   *string    `json:"lesson_notes" validate:"omitempty,max=100"`
}

func (r *CreateLessonRequest) ToModel() *model.LessonModel {
	return &model.LessonModel{
		LessonGroupID: r.LessonGroupID,
		LessonWeekID:  r.LessonWeekID,
		LessonStartAt: r.LessonStartAt,
		LessonNotes:   r.LessonNotes,
	}
}

type UpdateLessonRequest struct {
	LessonStartAt *time.Time `json:"lesson_start_at"`
	LessonNotes   *string    `json:"lesson_notes" validate:"omitempty,max=100"`
}

func (r *UpdateLessonRequest) ToPatch() service.LessonPatch {
	return service.LessonPatch{StartAt: r.LessonStartAt, Notes: r.LessonNotes}
}

type LessonDetailResponse struct {
	model.LessonModel
	Attendances []model.AttendanceModel `json:"attendances"`
}

type BulkAttendanceItem struct {
	AttendanceLessonID     uuid.UUID `json:"attendance_lesson_id" validate:"required"`
	AttendanceStudentID    uuid.UUID `json:"attendance_student_id" validate:"required"`
	AttendancePresent      *bool     `json:"attendance_present"`
	AttendanceHomeworkDone *bool     `json:"attendance_homework_done"`
}

type BulkAttendanceRequest struct {
	Attendances []BulkAttendanceItem `json:"attendances" validate:"required,min=1,max=500,dive"`
}

func (r *BulkAttendanceRequest) ToItems() []service.BulkAttendance {
	out := make([]service.BulkAttendance, 0, len(r.Attendances))
	for _, a := range r.Attendances {
		out = append(out, service.BulkAttendance{
			LessonID:     a.AttendanceLessonID,
			StudentID:    a.AttendanceStudentID,
			Present:      a.AttendancePresent,
			HomeworkDone: a.AttendanceHomeworkDone,
		})
	}
	return out
}

type MarkAttendanceRequest struct {
	AttendancePresent      *bool `json:"attendance_present"`
	AttendanceHomeworkDone *bool `json:"attendance_homework_done"`
}

func (r MarkAttendanceRequest) Empty() bool {
	return r.AttendancePresent == nil && r.AttendanceHomeworkDone == nil
}
