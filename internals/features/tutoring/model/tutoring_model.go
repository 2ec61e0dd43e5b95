package model

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"tutoring_backend/internals/helpers/dbtime"
)

/* =========================
   Customer (payer)
========================= */

type CustomerModel struct {
	CustomerID       uuid.UUID `gorm:"type:uuid;primaryKey;column:customer_id" json:"customer_id"`
	CustomerLedgerID string    `gorm:"type:varchar(100);not null;uniqueIndex:uq_customers_ledger_id;column:customer_ledger_id" json:"customer_ledger_id"`
	CustomerName     string    `gorm:"type:varchar(100);not null;column:customer_name" json:"customer_name"`
	CustomerIsActive bool      `gorm:"not null;column:customer_is_active" json:"customer_is_active"`
	CustomerCadence  Cadence   `gorm:"type:varchar(20);not null;default:'half-termly';column:customer_cadence" json:"customer_cadence"`

	CustomerCreatedAt time.Time `gorm:"not null;autoCreateTime;column:customer_created_at" json:"customer_created_at"`
	CustomerUpdatedAt time.Time `gorm:"not null;autoUpdateTime;column:customer_updated_at" json:"customer_updated_at"`
}

func (CustomerModel) TableName() string { return "customers" }

func (m *CustomerModel) BeforeCreate(tx *gorm.DB) error {
	if m.CustomerID == uuid.Nil {
		m.CustomerID = uuid.New()
	}
	if strings.TrimSpace(m.CustomerLedgerID) == "" {
		return errors.New("customer_ledger_id is required")
	}
	if m.CustomerCadence == "" {
		m.CustomerCadence = CadenceHalfTermly
	}
	return nil
}

func (m *CustomerModel) BeforeSave(tx *gorm.DB) error {
	// map updates through Model(&CustomerModel{}) run this on a zero value
	m.CustomerName = NormalizeName(m.CustomerName)
	if m.CustomerCadence != "" && !m.CustomerCadence.Valid() {
		return errors.New("customer_cadence must be weekly, fortnightly, half-termly or termly")
	}
	return nil
}

/* =========================
   Student
========================= */

type StudentModel struct {
	StudentID         uuid.UUID  `gorm:"type:uuid;primaryKey;column:student_id" json:"student_id"`
	StudentCustomerID uuid.UUID  `gorm:"type:uuid;not null;index:idx_students_customer;column:student_customer_id" json:"student_customer_id"`
	StudentName       string     `gorm:"type:varchar(100);not null;column:student_name" json:"student_name"`
	StudentIsActive   bool       `gorm:"not null;column:student_is_active" json:"student_is_active"`
	StudentStartDate  time.Time  `gorm:"type:date;not null;column:student_start_date" json:"student_start_date"`
	StudentEndDate    *time.Time `gorm:"type:date;column:student_end_date" json:"student_end_date,omitempty"`

	StudentCreatedAt time.Time `gorm:"not null;autoCreateTime;column:student_created_at" json:"student_created_at"`
}

func (StudentModel) TableName() string { return "students" }

func (m *StudentModel) BeforeCreate(tx *gorm.DB) error {
	if m.StudentID == uuid.Nil {
		m.StudentID = uuid.New()
	}
	if m.StudentStartDate.IsZero() {
		m.StudentStartDate = dbtime.DateOf(time.Now(), time.UTC)
	}
	return nil
}

func (m *StudentModel) BeforeSave(tx *gorm.DB) error {
	m.StudentName = NormalizeName(m.StudentName)
	if m.StudentEndDate != nil && !m.StudentStartDate.IsZero() && m.StudentEndDate.Before(m.StudentStartDate) {
		return errors.New("student_end_date must be >= student_start_date")
	}
	return nil
}

/* =========================
   Group (recurring weekly slot)
========================= */

type GroupModel struct {
	GroupID     uuid.UUID `gorm:"type:uuid;primaryKey;column:group_id" json:"group_id"`
	GroupTutor  string    `gorm:"type:varchar(50);not null;column:group_tutor" json:"group_tutor"`
	GroupCourse *Course   `gorm:"type:varchar(20);column:group_course" json:"group_course,omitempty"`

	// 0 = Monday .. 6 = Sunday
	GroupDayOfWeek *int        `gorm:"column:group_day_of_week" json:"group_day_of_week,omitempty"`
	GroupTimeOfDay *dbtime.Tod `gorm:"type:time;column:group_time_of_day" json:"group_time_of_day,omitempty"`

	// billed hours per lesson
	GroupLessonLength int        `gorm:"not null;column:group_lesson_length" json:"group_lesson_length"`
	GroupProductID    *uuid.UUID `gorm:"type:uuid;index:idx_groups_product;column:group_product_id" json:"group_product_id,omitempty"`

	GroupCreatedAt time.Time `gorm:"not null;autoCreateTime;column:group_created_at" json:"group_created_at"`
}

func (GroupModel) TableName() string { return "tutoring_groups" }

func (m *GroupModel) BeforeCreate(tx *gorm.DB) error {
	if m.GroupID == uuid.Nil {
		m.GroupID = uuid.New()
	}
	return nil
}

func (m *GroupModel) BeforeSave(tx *gorm.DB) error {
	if m.GroupDayOfWeek != nil && (*m.GroupDayOfWeek < 0 || *m.GroupDayOfWeek > 6) {
		return errors.New("group_day_of_week must be between 0 (Monday) and 6 (Sunday)")
	}
	if m.GroupLessonLength < 0 {
		return errors.New("group_lesson_length must be >= 0")
	}
	return nil
}

// Schedulable is false when the group has no weekly slot.
func (m GroupModel) Schedulable() bool {
	return m.GroupDayOfWeek != nil && m.GroupTimeOfDay != nil
}

// Label is the human readable name used in dashboards.
func (m GroupModel) Label() string {
	course := "Group"
	if m.GroupCourse != nil {
		course = string(*m.GroupCourse)
	}
	return course + " with " + m.GroupTutor
}

/* =========================
   Enrolment (group roster)
========================= */

type EnrolmentModel struct {
	EnrolmentGroupID   uuid.UUID `gorm:"type:uuid;primaryKey;column:enrolment_group_id" json:"enrolment_group_id"`
	EnrolmentStudentID uuid.UUID `gorm:"type:uuid;primaryKey;index:idx_enrolments_student;column:enrolment_student_id" json:"enrolment_student_id"`

	EnrolmentCreatedAt time.Time `gorm:"not null;autoCreateTime;column:enrolment_created_at" json:"enrolment_created_at"`
}

func (EnrolmentModel) TableName() string { return "group_enrolments" }

/* =========================
   Lesson
========================= */

type LessonModel struct {
	LessonID      uuid.UUID  `gorm:"type:uuid;primaryKey;column:lesson_id" json:"lesson_id"`
	LessonGroupID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_lessons_group_week,priority:1;column:lesson_group_id" json:"lesson_group_id"`
	LessonWeekID  *uuid.UUID `gorm:"type:uuid;uniqueIndex:uq_lessons_group_week,priority:2;column:lesson_week_id" json:"lesson_week_id,omitempty"`
	LessonStartAt time.Time  `gorm:"not null;column:lesson_start_at" json:"lesson_start_at"`
	LessonNotes   *string    `gorm:"type:varchar(100);column:lesson_notes" json:"lesson_notes,omitempty"`

	LessonCreatedAt time.Time `gorm:"not null;autoCreateTime;column:lesson_created_at" json:"lesson_created_at"`
}

func (LessonModel) TableName() string { return "lessons" }

func (m *LessonModel) BeforeCreate(tx *gorm.DB) error {
	if m.LessonID == uuid.Nil {
		m.LessonID = uuid.New()
	}
	return nil
}

/* =========================
   Attendance
========================= */

type AttendanceModel struct {
	AttendanceID             uuid.UUID  `gorm:"type:uuid;primaryKey;column:attendance_id" json:"attendance_id"`
	AttendanceLessonID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_attendances_lesson_student,priority:1;column:attendance_lesson_id" json:"attendance_lesson_id"`
	AttendanceStudentID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_attendances_lesson_student,priority:2;index:idx_attendances_student;column:attendance_student_id" json:"attendance_student_id"`
	AttendancePresent        bool       `gorm:"not null;column:attendance_present" json:"attendance_present"`
	AttendanceHomeworkDone   bool       `gorm:"not null;column:attendance_homework_done" json:"attendance_homework_done"`
	AttendancePaid           bool       `gorm:"not null;column:attendance_paid" json:"attendance_paid"`
	AttendanceLocalInvoiceID *uuid.UUID `gorm:"type:uuid;index:idx_attendances_invoice;column:attendance_local_invoice_id" json:"attendance_local_invoice_id,omitempty"`

	AttendanceCreatedAt time.Time `gorm:"not null;autoCreateTime;column:attendance_created_at" json:"attendance_created_at"`
	AttendanceUpdatedAt time.Time `gorm:"not null;autoUpdateTime;column:attendance_updated_at" json:"attendance_updated_at"`
}

func (AttendanceModel) TableName() string { return "attendances" }

func (m *AttendanceModel) BeforeCreate(tx *gorm.DB) error {
	if m.AttendanceID == uuid.Nil {
		m.AttendanceID = uuid.New()
	}
	return nil
}

// NormalizeName trims and NFC-normalises names coming from the ledger or the API.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}
