package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campusdesk/student-admin-api/internal/models"
	appErrors "github.com/campusdesk/student-admin-api/pkg/errors"
	"github.com/campusdesk/student-admin-api/pkg/export"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	Search(ctx context.Context, name, course string) ([]models.Student, error)
	All(ctx context.Context) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
	FindByLinkedUser(ctx context.Context, userID string) (*models.Student, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	UpdateProfilePic(ctx context.Context, id, path string) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}

type profileUserRepository interface {
	UpdateProfile(ctx context.Context, id, name, email string) error
}

type listCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type fileStore interface {
	Save(filename string, data []byte) (string, error)
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// CreateStudentRequest holds payload for creating students.
type CreateStudentRequest struct {
	Name           string     `json:"name" validate:"required"`
	Email          string     `json:"email" validate:"required,email"`
	Course         string     `json:"course"`
	EnrollmentDate *time.Time `json:"enrollmentDate"`
}

// UpdateStudentRequest holds the admin partial-update payload. Only provided
// fields are replaced.
type UpdateStudentRequest struct {
	Name           *string    `json:"name"`
	Email          *string    `json:"email"`
	Course         *string    `json:"course"`
	EnrollmentDate *time.Time `json:"enrollmentDate"`
}

// UpdateProfileRequest holds the self-service payload. Students may only
// change name, email and course on their own record.
type UpdateProfileRequest struct {
	Name   *string `json:"name"`
	Email  *string `json:"email"`
	Course *string `json:"course"`
}

// ExportFormat selects the roster export renderer.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult captures a rendered roster artifact awaiting download.
type ExportResult struct {
	RelativePath string
	Filename     string
	ContentType  string
}

// StudentConfig tunes roster behaviour.
type StudentConfig struct {
	UploadPublicPath string
	ListCacheTTL     time.Duration
}

const listCachePrefix = "students:list:"

// StudentService handles roster management and student self-service.
type StudentService struct {
	repo      studentRepository
	users     profileUserRepository
	cache     listCache
	uploads   fileStore
	exports   fileStore
	csv       csvRenderer
	pdf       pdfRenderer
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    StudentConfig
}

// NewStudentService constructs the student service. Cache and metrics may be
// nil; the service then skips those concerns.
func NewStudentService(repo studentRepository, users profileUserRepository, cache listCache, uploads, exports fileStore, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config StudentConfig) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.UploadPublicPath == "" {
		config.UploadPublicPath = "/uploads"
	}
	if config.ListCacheTTL <= 0 {
		config.ListCacheTTL = 5 * time.Minute
	}
	return &StudentService{
		repo:      repo,
		users:     users,
		cache:     cache,
		uploads:   uploads,
		exports:   exports,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// List returns a roster page plus pagination metadata. Limit is clamped to
// [1,100] with a default of 10; pages below 1 read as the first page.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) (*models.StudentList, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 10
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}

	key := fmt.Sprintf("%sp%d:l%d:q%s", listCachePrefix, filter.Page, filter.Limit, strings.ToLower(filter.Search))
	if s.cache != nil {
		var cached models.StudentList
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}

	pages := (total + filter.Limit - 1) / filter.Limit
	result := &models.StudentList{
		Students: students,
		Meta:     models.ListMeta{Total: total, Page: filter.Page, Pages: pages},
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, s.config.ListCacheTTL); err != nil {
			s.logger.Warn("failed to cache student list", zap.Error(err))
		}
	}

	return result, nil
}

// Create registers a new student record.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	exists, err := s.repo.ExistsByEmail(ctx, req.Email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "Student email already exists")
	}

	student := &models.Student{
		Name:   req.Name,
		Email:  req.Email,
		Course: req.Course,
	}
	if student.Course == "" {
		student.Course = models.DefaultCourse
	}
	if req.EnrollmentDate != nil {
		student.EnrollmentDate = *req.EnrollmentDate
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.invalidateListCache(ctx)
	return student, nil
}

// Update replaces the provided fields on an existing record. Email
// uniqueness is not re-checked on this path; the unique index is the only
// guard (kept from the previous system).
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	student, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		student.Name = *req.Name
	}
	if req.Email != nil {
		student.Email = *req.Email
	}
	if req.Course != nil {
		student.Course = *req.Course
	}
	if req.EnrollmentDate != nil {
		student.EnrollmentDate = *req.EnrollmentDate
	}

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}

	s.invalidateListCache(ctx)
	return student, nil
}

// Delete removes a single record.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if _, err := s.findByID(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.invalidateListCache(ctx)
	return nil
}

// ClearAll unconditionally empties the roster.
func (s *StudentService) ClearAll(ctx context.Context) error {
	if err := s.repo.DeleteAll(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear students")
	}
	s.invalidateListCache(ctx)
	return nil
}

// Search returns the full set matching name substring and exact course.
func (s *StudentService) Search(ctx context.Context, name, course string) ([]models.Student, error) {
	students, err := s.repo.Search(ctx, name, course)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search students")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, nil
}

// Export renders the full roster in the requested format and stores the
// artifact for download. Callers stream it and then call RemoveExport.
func (s *StudentService) Export(ctx context.Context, format ExportFormat) (*ExportResult, error) {
	students, err := s.repo.All(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}

	dataset := export.Dataset{
		Headers: []string{"Name", "Email", "Course", "Enrollment Date"},
		Rows:    make([][]string, 0, len(students)),
	}
	for _, st := range students {
		dataset.Rows = append(dataset.Rows, []string{st.Name, st.Email, st.Course, formatEnrollmentDate(st.EnrollmentDate)})
	}

	var payload []byte
	var contentType string
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Student Roster")
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	stored := fmt.Sprintf("students_%s.%s", time.Now().UTC().Format("20060102_150405.000000000"), format)
	relPath, err := s.exports.Save(stored, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	s.metrics.ObserveExport(string(format))
	return &ExportResult{
		RelativePath: relPath,
		Filename:     "students_export." + string(format),
		ContentType:  contentType,
	}, nil
}

// OpenExport returns a read handle for a stored export artifact.
func (s *StudentService) OpenExport(relPath string) (*os.File, error) {
	return s.exports.Open(relPath)
}

// RemoveExport deletes a stored export artifact once its download completed
// or failed.
func (s *StudentService) RemoveExport(relPath string) {
	if err := s.exports.Delete(relPath); err != nil {
		s.logger.Warn("failed to remove export artifact", zap.String("path", relPath), zap.Error(err))
	}
}

// GetMine resolves a profile for the caller. Admins may pass a target id,
// resolved by account link first and record id second. Everyone else gets
// their own profile by link, falling back to email for records created
// before linking existed.
func (s *StudentService) GetMine(ctx context.Context, caller *models.User, targetID string) (*models.Student, error) {
	if caller.Role == models.RoleAdmin && targetID != "" {
		student, err := s.repo.FindByLinkedUser(ctx, targetID)
		if err == nil {
			return student, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		student, err = s.repo.FindByID(ctx, targetID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "Student profile not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		return student, nil
	}

	return s.resolveOwn(ctx, caller)
}

// UpdateMine updates name/email/course on the caller's own profile and
// propagates name and email back to the account. The profile and account
// writes are independent; a failure on the second surfaces as a server
// error with the profile already updated.
func (s *StudentService) UpdateMine(ctx context.Context, caller *models.User, req UpdateProfileRequest) (*models.Student, error) {
	student, err := s.resolveOwn(ctx, caller)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		student.Name = *req.Name
	}
	if req.Email != nil {
		student.Email = *req.Email
	}
	if req.Course != nil {
		student.Course = *req.Course
	}

	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	if req.Name != nil || req.Email != nil {
		name := caller.Name
		if req.Name != nil {
			name = *req.Name
		}
		email := caller.Email
		if req.Email != nil {
			email = *req.Email
		}
		if err := s.users.UpdateProfile(ctx, caller.ID, name, email); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "profile updated but account sync failed")
		}
	}

	s.invalidateListCache(ctx)
	return student, nil
}

// UploadPicture stores the uploaded image and records its public path on the
// caller's linked profile. Only linked profiles qualify; there is no email
// fallback on this path.
func (s *StudentService) UploadPicture(ctx context.Context, caller *models.User, filename string, file io.Reader) (*models.Student, error) {
	student, err := s.repo.FindByLinkedUser(ctx, caller.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	stored := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	if _, err := s.uploads.SaveStream(stored, file); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}

	publicPath := strings.TrimRight(s.config.UploadPublicPath, "/") + "/" + stored
	if err := s.repo.UpdateProfilePic(ctx, student.ID, publicPath); err != nil {
		// The stored file is orphaned at this point; the next upload simply
		// writes a new one.
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record upload")
	}
	student.ProfilePic = publicPath

	s.invalidateListCache(ctx)
	s.metrics.ObserveUpload()
	return student, nil
}

func (s *StudentService) findByID(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *StudentService) resolveOwn(ctx context.Context, caller *models.User) (*models.Student, error) {
	student, err := s.repo.FindByLinkedUser(ctx, caller.ID)
	if err == nil {
		return student, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	student, err = s.repo.FindByEmail(ctx, caller.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *StudentService) invalidateListCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, listCachePrefix+"*"); err != nil {
		s.logger.Warn("failed to invalidate student list cache", zap.Error(err))
	}
}

// formatEnrollmentDate renders dates the way the export consumers expect,
// as a short locale date string. Zero dates render empty.
func formatEnrollmentDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("1/2/2006")
}
