package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusdesk/student-admin-api/internal/models"
)

func seedStudents(t *testing.T, env *testEnv, count int) {
	t.Helper()
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		err := env.students.Create(context.Background(), &models.Student{
			Name:           "Student " + string(rune('A'+i)),
			Email:          "student" + string(rune('a'+i)) + "@example.com",
			Course:         models.DefaultCourse,
			EnrollmentDate: base.AddDate(0, 0, i),
		})
		require.NoError(t, err)
	}
}

func TestListRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/students", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListRejectsStudents(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "Ada", "ada@example.com", "student")

	w := env.do(t, http.MethodGet, "/api/students", "", token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListReturnsMeta(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "Root", "root@example.com", "admin")
	seedStudents(t, env, 5)

	w := env.do(t, http.MethodGet, "/api/students?page=1&limit=2", "", token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res models.StudentList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Len(t, res.Students, 2)
	assert.Equal(t, 5, res.Meta.Total)
	assert.Equal(t, 1, res.Meta.Page)
	assert.Equal(t, 3, res.Meta.Pages)
}

func TestCreateStudent(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "Root", "root@example.com", "admin")

	w := env.do(t, http.MethodPost, "/api/students", `{"name":"Ada","email":"ada@example.com"}`, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var student models.Student
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &student))
	assert.NotEmpty(t, student.ID)
	assert.Equal(t, models.DefaultCourse, student.Course)
	assert.False(t, student.EnrollmentDate.IsZero())
}

func TestCreateStudentDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "Root", "root@example.com", "admin")
	env.do(t, http.MethodPost, "/api/students", `{"name":"Ada","email":"ada@example.com"}`, token)

	w := env.do(t, http.MethodPost, "/api/students", `{"name":"Twin","email":"ada@example.com"}`, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Student email already exists")
}

func TestUpdateStudentNotFound(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "Root", "root@example.com", "admin")

	w := env.do(t, http.MethodPut, "/api/students/ghost", `{"name":"New"}`, token)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Not found")
}

func TestUpdateStudentPartial(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "Root", "root@example.com", "admin")
	require.NoError(t, env.students.Create(context.Background(), &models.Student{ID: "s1", Name: "Ada", Email: "ada@example.com", Course: "Go Basics"}))

	w := env.do(t, http.MethodPut, "/api/students/s1", `{"course":"Networking"}`, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var student models.Student
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &student))
	assert.Equal(t, "Ada", student.Name)
	assert.Equal(t, "Networking", student.Course)
}

func TestDeleteStudent(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "Root", "root@example.com", "admin")
	require.NoError(t, env.students.Create(context.Background(), &models.Student{ID: "s1", Name: "Ada", Email: "ada@example.com"}))

	w := env.do(t, http.MethodDelete, "/api/students/s1", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Deleted"}`, w.Body.String())

	w = env.do(t, http.MethodDelete, "/api/students/s1", "", token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClearAllStudents(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "Root", "root@example.com", "admin")
	seedStudents(t, env, 3)

	w := env.do(t, http.MethodDelete, "/api/students", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"All students deleted"}`, w.Body.String())
	assert.Empty(t, env.students.students)
}

func TestSearchStudents(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "Root", "root@example.com", "admin")
	require.NoError(t, env.students.Create(context.Background(), &models.Student{Name: "Ada Lovelace", Email: "ada@example.com", Course: "Go Basics"}))
	require.NoError(t, env.students.Create(context.Background(), &models.Student{Name: "Grace Hopper", Email: "grace@example.com", Course: "Compilers"}))

	w := env.do(t, http.MethodGet, "/api/students/search?name=ada", "", token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var students []models.Student
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &students))
	require.Len(t, students, 1)
	assert.Equal(t, "Ada Lovelace", students[0].Name)
}

func TestGetMineResolvesOwnProfile(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "Ada", "ada@example.com", "student")

	w := env.do(t, http.MethodGet, "/api/students/me", "", token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var student models.Student
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &student))
	assert.Equal(t, "ada@example.com", student.Email)
	assert.NotNil(t, student.LinkedUserID)
}

func TestGetMineNoProfile(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "Root", "root@example.com", "admin")

	w := env.do(t, http.MethodGet, "/api/students/me", "", token)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Student profile not found")
}

func TestGetMineAdminOverride(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "Ada", "ada@example.com", "student")
	adminToken := env.signup(t, "Root", "root@example.com", "admin")

	user := env.users.byEmail["ada@example.com"]
	require.NotNil(t, user)

	w := env.do(t, http.MethodGet, "/api/students/me?userId="+user.ID, "", adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var student models.Student
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &student))
	assert.Equal(t, "ada@example.com", student.Email)
}

func TestUpdateMineSyncsAccountEmail(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "Ada", "ada@example.com", "student")

	w := env.do(t, http.MethodPut, "/api/students/me", `{"name":"Ada Lovelace","email":"lovelace@example.com"}`, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var student models.Student
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &student))
	assert.Equal(t, "Ada Lovelace", student.Name)

	user := env.users.byEmail["lovelace@example.com"]
	require.NotNil(t, user)
	assert.Equal(t, "Ada Lovelace", user.Name)
}

func TestUploadProfilePicture(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "Ada", "ada@example.com", "student")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("profilePic", "selfie.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("img-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, "/api/students/me/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "Profile picture uploaded", res.Message)
	assert.True(t, strings.HasPrefix(res.Path, "/uploads/"))
	assert.True(t, strings.HasSuffix(res.Path, ".png"))
}

func TestUploadRejectsAdmins(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "Root", "root@example.com", "admin")

	w := env.do(t, http.MethodPost, "/api/students/me/upload", "", token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestExportCSVStreamsAttachment(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "Root", "root@example.com", "admin")
	require.NoError(t, env.students.Create(context.Background(), &models.Student{
		Name:           "Ada",
		Email:          "ada@example.com",
		Course:         "Go Basics",
		EnrollmentDate: time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC),
	}))

	w := env.do(t, http.MethodGet, "/api/students/export/csv", "", token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "students_export.csv")
	assert.Contains(t, w.Body.String(), "Name,Email,Course,Enrollment Date")
	assert.Contains(t, w.Body.String(), "Ada,ada@example.com,Go Basics,3/5/2024")
}

func TestExportPDFStreams(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "Root", "root@example.com", "admin")
	seedStudents(t, env, 2)

	w := env.do(t, http.MethodGet, "/api/students/export/pdf", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}
