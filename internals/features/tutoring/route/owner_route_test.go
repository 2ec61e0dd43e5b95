package route

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tutoring_backend/internals/databases/dbtest"
	"tutoring_backend/internals/features/tutoring/model"
	"tutoring_backend/internals/features/tutoring/service"
	"tutoring_backend/internals/helpers/dbtime"
)

func newOwnerApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	app := fiber.New()
	TutoringOwnerRoutes(app.Group("/api/o"), db, dbtime.FixedClock{T: time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)}, time.UTC)
	return app, db
}

func call(t *testing.T, app *fiber.App, method, url string, body any) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := sonic.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, url, rd)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, sonic.Unmarshal(raw, &out))
	return resp.StatusCode, out
}

type seeded struct {
	group   *model.GroupModel
	lesson  *model.LessonModel
	student *model.StudentModel
	guest   *model.StudentModel
}

func seed(t *testing.T, db *gorm.DB) seeded {
	t.Helper()
	ctx := context.Background()
	roster := service.NewRosterService(db)
	cust := &model.CustomerModel{CustomerLedgerID: "cus_1", CustomerName: "Parent", CustomerIsActive: true}
	require.NoError(t, roster.UpsertCustomer(ctx, cust))
	st := &model.StudentModel{StudentCustomerID: cust.CustomerID, StudentName: "Ada", StudentIsActive: true}
	require.NoError(t, roster.CreateStudent(ctx, st))
	guest := &model.StudentModel{StudentCustomerID: cust.CustomerID, StudentName: "Ben", StudentIsActive: true}
	require.NoError(t, roster.CreateStudent(ctx, guest))
	day := 0
	at := dbtime.MustParse("16:00")
	g := &model.GroupModel{GroupTutor: "Tutor", GroupDayOfWeek: &day, GroupTimeOfDay: &at, GroupLessonLength: 2}
	require.NoError(t, roster.CreateGroup(ctx, g))
	require.NoError(t, roster.Enrol(ctx, g.GroupID, st.StudentID))

	lesson := &model.LessonModel{LessonGroupID: g.GroupID, LessonStartAt: time.Date(2025, 2, 3, 5, 0, 0, 0, time.UTC)}
	_, err := service.NewAttendanceService(db).CreateLesson(ctx, lesson)
	require.NoError(t, err)
	return seeded{group: g, lesson: lesson, student: st, guest: guest}
}

func TestStudentEndpoints(t *testing.T) {
	app, db := newOwnerApp(t)
	s := seed(t, db)

	status, out := call(t, app, fiber.MethodGet, "/api/o/students?per_page=1", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, out["data"], 1)
	page := out["pagination"].(map[string]any)
	assert.EqualValues(t, 2, page["total"])
	assert.Equal(t, true, page["has_next"])

	status, out = call(t, app, fiber.MethodGet, "/api/o/students/"+s.student.StudentID.String(), nil)
	require.Equal(t, fiber.StatusOK, status)
	data := out["data"].(map[string]any)
	assert.Equal(t, "Ada", data["student_name"])
	assert.Len(t, data["groups"], 1)

	status, _ = call(t, app, fiber.MethodGet, "/api/o/students?customer_id=nope", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestGroupEndpoints(t *testing.T) {
	app, db := newOwnerApp(t)
	s := seed(t, db)
	url := "/api/o/groups/" + s.group.GroupID.String()

	status, out := call(t, app, fiber.MethodGet, url, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, out["data"].(map[string]any)["students"], 1)

	status, out = call(t, app, fiber.MethodPatch, url, map[string]any{"group_tutor": "Mary", "group_time_of_day": "17:30"})
	require.Equal(t, fiber.StatusOK, status)
	data := out["data"].(map[string]any)
	assert.Equal(t, "Mary", data["group_tutor"])
	assert.Equal(t, "17:30:00", data["group_time_of_day"])

	status, _ = call(t, app, fiber.MethodPatch, url, map[string]any{})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = call(t, app, fiber.MethodDelete, url, nil)
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = call(t, app, fiber.MethodDelete, "/api/o/lessons/"+s.lesson.LessonID.String(), nil)
	require.Equal(t, fiber.StatusOK, status)
	status, _ = call(t, app, fiber.MethodDelete, url, nil)
	assert.Equal(t, fiber.StatusOK, status)
	status, _ = call(t, app, fiber.MethodGet, url, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestLessonEndpoints(t *testing.T) {
	app, db := newOwnerApp(t)
	s := seed(t, db)
	url := "/api/o/lessons/" + s.lesson.LessonID.String()

	status, out := call(t, app, fiber.MethodGet, "/api/o/lessons?group_id="+s.group.GroupID.String(), nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, out["data"], 1)

	status, out = call(t, app, fiber.MethodGet, url, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, out["data"].(map[string]any)["attendances"], 1)

	status, out = call(t, app, fiber.MethodPatch, url, map[string]any{"lesson_notes": "bring calculator"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "bring calculator", out["data"].(map[string]any)["lesson_notes"])

	status, _ = call(t, app, fiber.MethodPatch, url, map[string]any{})
	assert.Equal(t, fiber.StatusBadRequest, status)

	require.NoError(t, db.Model(&model.AttendanceModel{}).
		Where("attendance_lesson_id = ?", s.lesson.LessonID).
		Update("attendance_paid", true).Error)
	status, _ = call(t, app, fiber.MethodDelete, url, nil)
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestBulkAttendanceEndpoint(t *testing.T) {
	app, db := newOwnerApp(t)
	s := seed(t, db)

	body := map[string]any{"attendances": []map[string]any{
		{"attendance_lesson_id": s.lesson.LessonID, "attendance_student_id": s.student.StudentID, "attendance_present": true},
		{"attendance_lesson_id": s.lesson.LessonID, "attendance_student_id": s.guest.StudentID, "attendance_present": true},
	}}
	status, out := call(t, app, fiber.MethodPost, "/api/o/attendances/bulk", body)
	require.Equal(t, fiber.StatusCreated, status)
	data := out["data"].(map[string]any)
	assert.EqualValues(t, 1, data["attendances_created"])
	assert.Len(t, data["attendances"], 2)

	status, out = call(t, app, fiber.MethodGet, "/api/o/attendances?lesson_id="+s.lesson.LessonID.String(), nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 2, out["pagination"].(map[string]any)["total"])

	status, _ = call(t, app, fiber.MethodPost, "/api/o/attendances/bulk", map[string]any{"attendances": []any{}})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
}
