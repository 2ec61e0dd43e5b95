package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tutoring_backend/internals/features/tutoring/model"
	"tutoring_backend/internals/helpers/apperror"
	"tutoring_backend/internals/helpers/dbtime"
)

type RosterService struct {
	DB *gorm.DB
}

func NewRosterService(db *gorm.DB) *RosterService {
	return &RosterService{DB: db}
}

/* =========================
   Customers
========================= */

// UpsertCustomer keys on the ledger id; name, active flag and cadence are
// overwritten. An empty cadence keeps what is stored.
func (s *RosterService) UpsertCustomer(ctx context.Context, c *model.CustomerModel) error {
	if strings.TrimSpace(c.CustomerLedgerID) == "" {
		return apperror.Validation("customer ledger id is required")
	}
	if c.CustomerCadence != "" && !c.CustomerCadence.Valid() {
		return apperror.Validation("unknown cadence %q", c.CustomerCadence)
	}
	cols := []string{"customer_name", "customer_is_active", "customer_updated_at"}
	if c.CustomerCadence != "" {
		cols = append(cols, "customer_cadence")
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "customer_ledger_id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(c).Error
	if err != nil {
		return err
	}
	// the conflict path leaves the generated id on c; reload the stored row
	var stored model.CustomerModel
	if err := s.DB.WithContext(ctx).Where("customer_ledger_id = ?", c.CustomerLedgerID).First(&stored).Error; err != nil {
		return err
	}
	*c = stored
	return nil
}

func (s *RosterService) GetCustomer(ctx context.Context, id uuid.UUID) (*model.CustomerModel, error) {
	var c model.CustomerModel
	if err := s.DB.WithContext(ctx).First(&c, "customer_id = ?", id).Error; err != nil {
		return nil, apperror.FromDB(err, fmt.Sprintf("customer %s", id))
	}
	return &c, nil
}

func (s *RosterService) GetCustomerByLedgerID(ctx context.Context, ledgerID string) (*model.CustomerModel, error) {
	var c model.CustomerModel
	if err := s.DB.WithContext(ctx).First(&c, "customer_ledger_id = ?", ledgerID).Error; err != nil {
		return nil, apperror.FromDB(err, fmt.Sprintf("customer %s", ledgerID))
	}
	return &c, nil
}

func (s *RosterService) SetCadence(ctx context.Context, id uuid.UUID, cadence model.Cadence) (*model.CustomerModel, error) {
	if !cadence.Valid() {
		return nil, apperror.Validation("unknown cadence %q", cadence)
	}
	c, err := s.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(c).Update("customer_cadence", cadence).Error; err != nil {
		return nil, err
	}
	c.CustomerCadence = cadence
	return c, nil
}

func (s *RosterService) ListCustomers(ctx context.Context, activeOnly bool) ([]model.CustomerModel, error) {
	q := s.DB.WithContext(ctx).Model(&model.CustomerModel{})
	if activeOnly {
		q = q.Where("customer_is_active = ?", true)
	}
	var out []model.CustomerModel
	err := q.Order("customer_name ASC").Find(&out).Error
	return out, err
}

/* =========================
   Students
========================= */

func (s *RosterService) CreateStudent(ctx context.Context, st *model.StudentModel) error {
	if strings.TrimSpace(st.StudentName) == "" {
		return apperror.Validation("student name is required")
	}
	if _, err := s.GetCustomer(ctx, st.StudentCustomerID); err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Create(st).Error
}

func (s *RosterService) GetStudent(ctx context.Context, id uuid.UUID) (*model.StudentModel, error) {
	var st model.StudentModel
	if err := s.DB.WithContext(ctx).First(&st, "student_id = ?", id).Error; err != nil {
		return nil, apperror.FromDB(err, fmt.Sprintf("student %s", id))
	}
	return &st, nil
}

type StudentFilter struct {
	CustomerID *uuid.UUID
	ActiveOnly bool
}

// ListStudents pages students by name; total ignores limit/offset.
func (s *RosterService) ListStudents(ctx context.Context, f StudentFilter, limit, offset int) ([]model.StudentModel, int64, error) {
	q := s.DB.WithContext(ctx).Model(&model.StudentModel{})
	if f.CustomerID != nil {
		q = q.Where("student_customer_id = ?", *f.CustomerID)
	}
	if f.ActiveOnly {
		q = q.Where("student_is_active = ?", true)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []model.StudentModel
	err := q.Order("student_name ASC").Order("student_id ASC").Limit(limit).Offset(offset).Find(&out).Error
	return out, total, err
}

// StudentGroups lists the groups the student is enrolled in.
func (s *RosterService) StudentGroups(ctx context.Context, studentID uuid.UUID) ([]model.GroupModel, error) {
	var out []model.GroupModel
	err := s.DB.WithContext(ctx).
		Joins("JOIN group_enrolments ON group_enrolments.enrolment_group_id = tutoring_groups.group_id").
		Where("group_enrolments.enrolment_student_id = ?", studentID).
		Order("tutoring_groups.group_created_at ASC").
		Find(&out).Error
	return out, err
}

/* =========================
   Groups
========================= */

func (s *RosterService) CreateGroup(ctx context.Context, g *model.GroupModel) error {
	if strings.TrimSpace(g.GroupTutor) == "" {
		return apperror.Validation("group tutor is required")
	}
	if g.GroupDayOfWeek != nil && (*g.GroupDayOfWeek < 0 || *g.GroupDayOfWeek > 6) {
		return apperror.Validation("day of week must be 0 (Monday) to 6 (Sunday), got %d", *g.GroupDayOfWeek)
	}
	return s.DB.WithContext(ctx).Create(g).Error
}

func (s *RosterService) GetGroup(ctx context.Context, id uuid.UUID) (*model.GroupModel, error) {
	var g model.GroupModel
	if err := s.DB.WithContext(ctx).First(&g, "group_id = ?", id).Error; err != nil {
		return nil, apperror.FromDB(err, fmt.Sprintf("group %s", id))
	}
	return &g, nil
}

func (s *RosterService) ListGroups(ctx context.Context) ([]model.GroupModel, error) {
	var out []model.GroupModel
	err := s.DB.WithContext(ctx).Order("group_created_at ASC").Find(&out).Error
	return out, err
}

// GroupPatch: nil fields stay as stored.
type GroupPatch struct {
	Tutor        *string
	Course       *model.Course
	DayOfWeek    *int
	TimeOfDay    *dbtime.Tod
	LessonLength *int
	ProductID    *uuid.UUID
}

func (p GroupPatch) Empty() bool {
	return p.Tutor == nil && p.Course == nil && p.DayOfWeek == nil &&
		p.TimeOfDay == nil && p.LessonLength == nil && p.ProductID == nil
}

// UpdateGroup changes the slot or billing of a group. Lessons already
// scheduled keep their start times.
func (s *RosterService) UpdateGroup(ctx context.Context, id uuid.UUID, p GroupPatch) (*model.GroupModel, error) {
	g, err := s.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if p.Tutor != nil {
		tutor := model.NormalizeName(*p.Tutor)
		if tutor == "" {
			return nil, apperror.Validation("group tutor is required")
		}
		updates["group_tutor"] = tutor
	}
	if p.Course != nil {
		updates["group_course"] = *p.Course
	}
	if p.DayOfWeek != nil {
		if *p.DayOfWeek < 0 || *p.DayOfWeek > 6 {
			return nil, apperror.Validation("day of week must be 0 (Monday) to 6 (Sunday), got %d", *p.DayOfWeek)
		}
		updates["group_day_of_week"] = *p.DayOfWeek
	}
	if p.TimeOfDay != nil {
		updates["group_time_of_day"] = *p.TimeOfDay
	}
	if p.LessonLength != nil {
		if *p.LessonLength < 0 {
			return nil, apperror.Validation("lesson length must be >= 0")
		}
		updates["group_lesson_length"] = *p.LessonLength
	}
	if p.ProductID != nil {
		updates["group_product_id"] = *p.ProductID
	}
	if len(updates) == 0 {
		return g, nil
	}
	if err := s.DB.WithContext(ctx).Model(g).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetGroup(ctx, id)
}

// DeleteGroup removes a group and its roster. A group that already has
// lessons is kept, since its attendance may be billed.
func (s *RosterService) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var g model.GroupModel
		if err := tx.First(&g, "group_id = ?", id).Error; err != nil {
			return apperror.FromDB(err, fmt.Sprintf("group %s", id))
		}
		var lessons int64
		if err := tx.Model(&model.LessonModel{}).Where("lesson_group_id = ?", id).Count(&lessons).Error; err != nil {
			return err
		}
		if lessons > 0 {
			return apperror.Conflict("group %s has %d lesson(s); delete them first", id, lessons)
		}
		if err := tx.Where("enrolment_group_id = ?", id).Delete(&model.EnrolmentModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&g).Error
	})
}

// Enrol adds the student to the group's roster. Enrolling twice is a no-op.
func (s *RosterService) Enrol(ctx context.Context, groupID, studentID uuid.UUID) error {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if _, err := s.GetStudent(ctx, studentID); err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.EnrolmentModel{EnrolmentGroupID: groupID, EnrolmentStudentID: studentID}).Error
}

// Unenrol drops the roster entry; attendance already materialised stays.
func (s *RosterService) Unenrol(ctx context.Context, groupID, studentID uuid.UUID) error {
	res := s.DB.WithContext(ctx).
		Where("enrolment_group_id = ? AND enrolment_student_id = ?", groupID, studentID).
		Delete(&model.EnrolmentModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("student %s is not enrolled in group %s", studentID, groupID)
	}
	return nil
}

func (s *RosterService) Roster(ctx context.Context, groupID uuid.UUID) ([]model.StudentModel, error) {
	var out []model.StudentModel
	err := s.DB.WithContext(ctx).
		Joins("JOIN group_enrolments ON group_enrolments.enrolment_student_id = students.student_id").
		Where("group_enrolments.enrolment_group_id = ?", groupID).
		Order("students.student_name ASC").
		Find(&out).Error
	return out, err
}
