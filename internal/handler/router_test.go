package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusdesk/student-admin-api/internal/middleware"
	"github.com/campusdesk/student-admin-api/internal/models"
	"github.com/campusdesk/student-admin-api/internal/service"
	"github.com/campusdesk/student-admin-api/pkg/storage"
)

type fakeUserRepo struct {
	byEmail map[string]*models.User
	byID    map[string]*models.User
	seq     int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byEmail: map[string]*models.User{}, byID: map[string]*models.User{}}
}

func (r *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := r.byEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := r.byID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (r *fakeUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, ok := r.byEmail[email]
	return ok, nil
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	r.seq++
	if user.ID == "" {
		user.ID = fmt.Sprintf("u%d", r.seq)
	}
	r.byEmail[user.Email] = user
	r.byID[user.ID] = user
	return nil
}

func (r *fakeUserRepo) UpdateProfile(ctx context.Context, id, name, email string) error {
	u, ok := r.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	delete(r.byEmail, u.Email)
	u.Name = name
	u.Email = email
	r.byEmail[email] = u
	return nil
}

type fakeStudentRepo struct {
	students map[string]*models.Student
	seq      int
}

func newFakeStudentRepo() *fakeStudentRepo {
	return &fakeStudentRepo{students: map[string]*models.Student{}}
}

func (r *fakeStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var all []models.Student
	for _, s := range r.students {
		if filter.Search != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(filter.Search)) {
			continue
		}
		all = append(all, *s)
	}
	total := len(all)
	start := (filter.Page - 1) * filter.Limit
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *fakeStudentRepo) Search(ctx context.Context, name, course string) ([]models.Student, error) {
	var out []models.Student
	for _, s := range r.students {
		if name != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(name)) {
			continue
		}
		if course != "" && s.Course != course {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *fakeStudentRepo) All(ctx context.Context) ([]models.Student, error) {
	var out []models.Student
	for _, s := range r.students {
		out = append(out, *s)
	}
	return out, nil
}

func (r *fakeStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := r.students[id]; ok {
		clone := *s
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (r *fakeStudentRepo) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	for _, s := range r.students {
		if s.Email == email {
			clone := *s
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeStudentRepo) FindByLinkedUser(ctx context.Context, userID string) (*models.Student, error) {
	for _, s := range r.students {
		if s.LinkedUserID != nil && *s.LinkedUserID == userID {
			clone := *s
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeStudentRepo) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	for _, s := range r.students {
		if s.Email == email && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeStudentRepo) Create(ctx context.Context, student *models.Student) error {
	r.seq++
	if student.ID == "" {
		student.ID = fmt.Sprintf("s%d", r.seq)
	}
	if student.EnrollmentDate.IsZero() {
		student.EnrollmentDate = time.Now().UTC()
	}
	clone := *student
	r.students[student.ID] = &clone
	return nil
}

func (r *fakeStudentRepo) Update(ctx context.Context, student *models.Student) error {
	if _, ok := r.students[student.ID]; !ok {
		return sql.ErrNoRows
	}
	clone := *student
	r.students[student.ID] = &clone
	return nil
}

func (r *fakeStudentRepo) UpdateProfilePic(ctx context.Context, id, path string) error {
	s, ok := r.students[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.ProfilePic = path
	return nil
}

func (r *fakeStudentRepo) Delete(ctx context.Context, id string) error {
	delete(r.students, id)
	return nil
}

func (r *fakeStudentRepo) DeleteAll(ctx context.Context) error {
	r.students = map[string]*models.Student{}
	return nil
}

type testEnv struct {
	router   *gin.Engine
	users    *fakeUserRepo
	students *fakeStudentRepo
	auth     *service.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := newFakeUserRepo()
	studentsRepo := newFakeStudentRepo()

	authSvc := service.NewAuthService(users, studentsRepo, nil, nil, service.AuthConfig{
		TokenSecret: "test-secret",
		TokenExpiry: time.Hour,
		BcryptCost:  bcrypt.MinCost,
	})

	uploads, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	exports, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	studentSvc := service.NewStudentService(studentsRepo, users, nil, uploads, exports, nil, nil, nil, service.StudentConfig{})

	authHandler := NewAuthHandler(authSvc)
	studentHandler := NewStudentHandler(studentSvc)

	r := gin.New()
	api := r.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/signup", authHandler.Signup)
	auth.POST("/login", authHandler.Login)

	students := api.Group("/students", middleware.JWT(authSvc))
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	anyRole := middleware.RequireRoles(models.RoleAdmin, models.RoleStudent)

	students.GET("", adminOnly, studentHandler.List)
	students.POST("", adminOnly, studentHandler.Create)
	students.DELETE("", adminOnly, studentHandler.ClearAll)
	students.GET("/search", adminOnly, studentHandler.Search)
	students.GET("/export/csv", adminOnly, studentHandler.ExportCSV)
	students.GET("/export/pdf", adminOnly, studentHandler.ExportPDF)
	students.GET("/me", anyRole, studentHandler.GetMine)
	students.PUT("/me", anyRole, studentHandler.UpdateMine)
	students.POST("/me/upload", middleware.RequireRoles(models.RoleStudent), studentHandler.UploadPicture)
	students.PUT("/:id", adminOnly, studentHandler.Update)
	students.DELETE("/:id", adminOnly, studentHandler.Delete)

	return &testEnv{router: r, users: users, students: studentsRepo, auth: authSvc}
}

// signup registers an account through the HTTP surface and returns the token.
func (e *testEnv) signup(t *testing.T, name, email, role string) string {
	t.Helper()
	body := fmt.Sprintf(`{"name":%q,"email":%q,"password":"secret","role":%q}`, name, email, role)
	w := e.do(t, http.MethodPost, "/api/auth/signup", body, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res models.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotEmpty(t, res.Token)
	return res.Token
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}
