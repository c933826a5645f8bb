package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-api/internal/dto"
	"github.com/noah-isme/tutoring-api/internal/models"
	"github.com/noah-isme/tutoring-api/internal/service"
	appErrors "github.com/noah-isme/tutoring-api/pkg/errors"
)

type userAdminMock struct {
	createResp *models.User
	createErr  error
	deleteResp *dto.DeleteUserResponse
	deleteErr  error
	lastCreate dto.CreateUserRequest
	lastUpdate dto.UpdateUserRequest
	lastFilter models.UserFilter
	lastID     string
}

func (m *userAdminMock) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	m.lastFilter = filter
	return []models.User{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (m *userAdminMock) CreateUser(ctx context.Context, req dto.CreateUserRequest, actor *models.JWTClaims) (*models.User, error) {
	m.lastCreate = req
	return m.createResp, m.createErr
}

func (m *userAdminMock) UpdateUser(ctx context.Context, id string, req dto.UpdateUserRequest, actor *models.JWTClaims) (*models.User, error) {
	m.lastID = id
	m.lastUpdate = req
	return &models.User{ID: id}, nil
}

func (m *userAdminMock) DeleteUser(ctx context.Context, id string, actor *models.JWTClaims, ip, userAgent string) (*dto.DeleteUserResponse, error) {
	m.lastID = id
	return m.deleteResp, m.deleteErr
}

type assignmentAdminMock struct {
	last dto.ReplaceAssignmentsRequest
}

func (m *assignmentAdminMock) Replace(ctx context.Context, studentID string, req dto.ReplaceAssignmentsRequest, actor *models.JWTClaims) (*models.User, error) {
	m.last = req
	return &models.User{ID: studentID}, nil
}

type exporterMock struct {
	file       *service.ExportFile
	err        error
	lastFormat string
}

func (m *exporterMock) ExportStudentSessions(ctx context.Context, studentID, format string, actor *models.JWTClaims) (*service.ExportFile, error) {
	m.lastFormat = format
	return m.file, m.err
}

func newAdminHandlerUnderTest() (*AdminHandler, *userAdminMock, *assignmentAdminMock, *sessionServiceMock, *exporterMock) {
	users := &userAdminMock{}
	assignments := &assignmentAdminMock{}
	sessions := &sessionServiceMock{}
	exporter := &exporterMock{}
	return NewAdminHandler(users, assignments, sessions, exporter), users, assignments, sessions, exporter
}

func TestAdminHandlerCreateUserReturnsIdentifiers(t *testing.T) {
	handler, users, _, _, _ := newAdminHandlerUnderTest()
	users.createResp = &models.User{ID: "uid-1", CustomID: "STU-ABCD1234"}

	body := `{"role":"student","name":"Sara","email":"sara@example.com","password":"secret1","timezone":"America/New_York","assignments":[{"subject":"Physics","tutor_id":"T"}]}`
	c, w := newTestContext(http.MethodPost, "/admin/create-user", body, adminClaims())
	c.Request.Header.Set("User-Agent", "relay-test")
	handler.CreateUser(c)

	require.Equal(t, http.StatusCreated, w.Code)
	var res dto.CreateUserResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &res))
	assert.Equal(t, dto.CreateUserResponse{UID: "uid-1", CustomID: "STU-ABCD1234"}, res)
	assert.Equal(t, models.RoleStudent, users.lastCreate.Role)
	assert.Equal(t, "relay-test", users.lastCreate.UserAgent)
	require.Len(t, users.lastCreate.Assignments, 1)
}

func TestAdminHandlerCreateUserEmailInUse(t *testing.T) {
	handler, users, _, _, _ := newAdminHandlerUnderTest()
	users.createErr = appErrors.ErrEmailInUse

	c, w := newTestContext(http.MethodPost, "/admin/create-user", `{"role":"tutor","name":"Tom","email":"tom@example.com","password":"secret1"}`, adminClaims())
	handler.CreateUser(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EMAIL_IN_USE", decodeEnvelope(t, w).Error.Code)
}

func TestAdminHandlerUpdateUserKeepsAbsentFieldsNil(t *testing.T) {
	handler, users, _, _, _ := newAdminHandlerUnderTest()

	c, w := newTestContext(http.MethodPut, "/admin/update-user/uid-1", `{"name":"Sara K"}`, adminClaims())
	c.Params = gin.Params{{Key: "uid", Value: "uid-1"}}
	handler.UpdateUser(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "uid-1", users.lastID)
	require.NotNil(t, users.lastUpdate.Name)
	assert.Equal(t, "Sara K", *users.lastUpdate.Name)
	assert.Nil(t, users.lastUpdate.Email)
	assert.Nil(t, users.lastUpdate.Assignments)
	assert.Nil(t, users.lastUpdate.Subjects)
}

func TestAdminHandlerUpdateUserBindsTutorFields(t *testing.T) {
	handler, users, _, _, _ := newAdminHandlerUnderTest()

	body := `{"subjects":["Physics","Astronomy"],"qualifications":"MSc","hourly_rate":"900","medium_of_communication":"Zoom"}`
	c, w := newTestContext(http.MethodPut, "/admin/update-user/T", body, adminClaims())
	c.Params = gin.Params{{Key: "uid", Value: "T"}}
	handler.UpdateUser(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, users.lastUpdate.Subjects)
	assert.Equal(t, []string{"Physics", "Astronomy"}, *users.lastUpdate.Subjects)
	assert.Equal(t, "900", *users.lastUpdate.HourlyRate)
	assert.Equal(t, "Zoom", *users.lastUpdate.MediumOfCommunication)
	assert.Nil(t, users.lastUpdate.EmergencyContact)
}

func TestAdminHandlerDeleteSelfIsForbidden(t *testing.T) {
	handler, users, _, _, _ := newAdminHandlerUnderTest()
	users.deleteErr = appErrors.Clone(appErrors.ErrForbidden, "Cannot delete the currently signed-in admin user.")

	c, w := newTestContext(http.MethodDelete, "/admin/delete-user/admin-1", "", adminClaims())
	c.Params = gin.Params{{Key: "uid", Value: "admin-1"}}
	handler.DeleteUser(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "admin-1", users.lastID)
}

func TestAdminHandlerReplaceAssignments(t *testing.T) {
	handler, _, assignments, _, _ := newAdminHandlerUnderTest()

	c, w := newTestContext(http.MethodPut, "/students/S/assignments", `{"assignments":[{"subject":"Physics","tutor_id":"T"},{"subject":"Chemistry","tutor_id":"U"}]}`, adminClaims())
	c.Params = gin.Params{{Key: "id", Value: "S"}}
	handler.ReplaceAssignments(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, assignments.last.Assignments, 2)
}

func TestAdminHandlerScheduleAndDeleteClass(t *testing.T) {
	handler, _, _, sessions, _ := newAdminHandlerUnderTest()
	sessions.scheduleResp = &models.Session{ID: "r7"}

	c, w := newTestContext(http.MethodPost, "/admin/schedule-class", `{"student_id":"S","subject":"Physics","tutor_id":"T","class_date":"2024-03-10","class_time":"15:00"}`, adminClaims())
	handler.ScheduleClass(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, string(decodeEnvelope(t, w).Data), `"class_id":"r7"`)

	c, _ = newTestContext(http.MethodDelete, "/admin/class/r7", "", adminClaims())
	c.Params = gin.Params{{Key: "classId", Value: "r7"}}
	handler.DeleteClass(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "r7", sessions.lastID)
}

func TestAdminHandlerExportSessions(t *testing.T) {
	handler, _, _, _, exporter := newAdminHandlerUnderTest()
	exporter.file = &service.ExportFile{Filename: "sessions_STU-AAAA1111_20240310_090000.csv", ContentType: "text/csv", Payload: []byte("Date,Time\n")}

	c, w := newTestContext(http.MethodGet, "/admin/students/S/sessions/export?format=csv", "", adminClaims())
	c.Params = gin.Params{{Key: "id", Value: "S"}}
	handler.ExportSessions(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", exporter.lastFormat)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="sessions_STU-AAAA1111_20240310_090000.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "Date,Time\n", w.Body.String())
}

func TestAdminHandlerListUsersParsesQuery(t *testing.T) {
	handler, users, _, _, _ := newAdminHandlerUnderTest()

	c, w := newTestContext(http.MethodGet, "/admin/users?role=tutor&page=2&page_size=5&search=tom", "", adminClaims())
	handler.ListUsers(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, users.lastFilter.Role)
	assert.Equal(t, models.RoleTutor, *users.lastFilter.Role)
	assert.Equal(t, 2, users.lastFilter.Page)
	assert.Equal(t, 5, users.lastFilter.PageSize)
	assert.Equal(t, "tom", users.lastFilter.Search)
}
